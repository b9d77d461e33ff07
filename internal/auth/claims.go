package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// DealershipID scopes every dashboard read; super admins carry a home dealership too.
type Claims struct {
	jwt.RegisteredClaims

	UserID       string    `json:"user_id"`
	DealershipID int64     `json:"dealership_id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Role         string    `json:"role,omitempty"`
	TokenType    TokenType `json:"token_type"`
}

// Identity is the authenticated principal extracted from an access token.
type Identity struct {
	UserID       string
	DealershipID int64
	TenantID     string
	Role         string
}

func (c Claims) Identity() Identity {
	return Identity{
		UserID:       c.UserID,
		DealershipID: c.DealershipID,
		TenantID:     c.TenantID,
		Role:         c.Role,
	}
}
