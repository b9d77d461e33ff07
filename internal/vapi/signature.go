package vapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw webhook body.
const SignatureHeader = "X-Vapi-Signature"

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches the body. It is always false
// when no webhook secret is configured.
func VerifySignature(secret []byte, signature string, body []byte) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// VerifySignature checks a delivery against the client's configured webhook secret.
func (c *Client) VerifySignature(signature string, body []byte) bool {
	return VerifySignature(c.secret, signature, body)
}
