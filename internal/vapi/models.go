package vapi

import (
	"encoding/json"
	"time"
)

// Call is the subset of the provider's call object the CRM reads.
type Call struct {
	ID            string     `json:"id"`
	AssistantID   string     `json:"assistantId,omitempty"`
	PhoneNumberID string     `json:"phoneNumberId,omitempty"`
	Type          string     `json:"type,omitempty"` // inboundPhoneCall, outboundPhoneCall, webCall
	Status        string     `json:"status,omitempty"`
	EndedReason   string     `json:"endedReason,omitempty"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	EndedAt       *time.Time `json:"endedAt,omitempty"`
	CreatedAt     *time.Time `json:"createdAt,omitempty"`

	Customer    *PhoneParty `json:"customer,omitempty"`
	PhoneNumber *PhoneParty `json:"phoneNumber,omitempty"`

	Cost               *float64        `json:"cost,omitempty"`
	Transcript         string          `json:"transcript,omitempty"`
	Summary            string          `json:"summary,omitempty"`
	RecordingURL       string          `json:"recordingUrl,omitempty"`
	StereoRecordingURL string          `json:"stereoRecordingUrl,omitempty"`
	Analysis           json.RawMessage `json:"analysis,omitempty"`
	Metadata           json.RawMessage `json:"metadata,omitempty"`
}

type PhoneParty struct {
	Number string `json:"number,omitempty"`
	Name   string `json:"name,omitempty"`
}

type Assistant struct {
	ID           string          `json:"id"`
	Name         string          `json:"name,omitempty"`
	FirstMessage string          `json:"firstMessage,omitempty"`
	Model        json.RawMessage `json:"model,omitempty"`
	Voice        json.RawMessage `json:"voice,omitempty"`
	CreatedAt    *time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time      `json:"updatedAt,omitempty"`
}

// CreateCallRequest starts an outbound call from one of the account's numbers.
type CreateCallRequest struct {
	AssistantID   string          `json:"assistantId,omitempty"`
	PhoneNumberID string          `json:"phoneNumberId,omitempty"`
	Customer      *PhoneParty     `json:"customer,omitempty"`
	Name          string          `json:"name,omitempty"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}
