package audit

import (
	"encoding/json"
	"time"
)

// Event is an immutable, append-only audit record.
//
// Every inbound webhook delivery produces one EventTypeWebhookDelivery record before
// any parsing, and one EventTypeWebhookOutcome record once processing finished.
type Event struct {
	ID   string    `json:"id"`
	Type EventType `json:"type"`

	// DealershipID is set once the delivery has been attributed to a dealership.
	DealershipID *int64 `json:"dealership_id,omitempty"`
	CallID       string `json:"call_id,omitempty"`

	Path     string `json:"path,omitempty"`
	Method   string `json:"method,omitempty"`
	RemoteIP string `json:"remote_ip,omitempty"`

	Headers json.RawMessage `json:"headers,omitempty"`
	// Payload holds the body when it is valid JSON; RawBody holds it otherwise.
	Payload json.RawMessage `json:"payload,omitempty"`
	RawBody string          `json:"raw_body,omitempty"`

	Outcome string `json:"outcome,omitempty"`
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type EventType string

const (
	EventTypeWebhookDelivery EventType = "webhook_delivery"
	EventTypeWebhookOutcome  EventType = "webhook_outcome"
)
