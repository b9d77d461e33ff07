package calllogs

import (
	"encoding/json"
	"time"
)

// Patch is a partial call log. Nil fields are left untouched on update and take
// their default on insert.
type Patch struct {
	CallID string

	Status          *Status
	Direction       *Direction
	CallerNumber    *string
	RecipientNumber *string
	Duration        *int
	AssistantID     *string
	Department      *Department
	CallStartedAt   *time.Time
	CallEndedAt     *time.Time
	DealershipID    *int64
	Transcript      *string
	RecordingURL    *string

	Metadata               json.RawMessage
	VapiSummary            json.RawMessage
	VapiSuccessEvaluation  *bool
	VapiAnalysis           json.RawMessage
	VapiRecordingURL       *string
	VapiStereoRecordingURL *string
	VapiCost               *float64
	VapiDurationSeconds    *int
}

// NewFromPatch builds a fresh row: status initiated, direction inbound, no department,
// zero duration, overridden by whatever the patch carries.
func NewFromPatch(p Patch) CallLog {
	c := CallLog{
		CallID:    p.CallID,
		Status:    StatusInitiated,
		Direction: DirectionInbound,
	}
	p.ApplyTo(&c)
	return c
}

// ApplyTo overrides the fields of c present in p.
func (p Patch) ApplyTo(c *CallLog) {
	if p.Status != nil && p.Status.Valid() {
		c.Status = *p.Status
	}
	if p.Direction != nil && p.Direction.Valid() {
		c.Direction = *p.Direction
	}
	setString(&c.CallerNumber, p.CallerNumber)
	setString(&c.RecipientNumber, p.RecipientNumber)
	if p.Duration != nil {
		c.Duration = *p.Duration
	}
	setString(&c.AssistantID, p.AssistantID)
	if p.Department != nil {
		d := *p.Department
		c.Department = &d
	}
	if p.CallStartedAt != nil {
		t := *p.CallStartedAt
		c.CallStartedAt = &t
	}
	if p.CallEndedAt != nil {
		t := *p.CallEndedAt
		c.CallEndedAt = &t
	}
	if p.DealershipID != nil {
		id := *p.DealershipID
		c.DealershipID = &id
	}
	setString(&c.Transcript, p.Transcript)
	setString(&c.RecordingURL, p.RecordingURL)

	setJSON(&c.Metadata, p.Metadata)
	setJSON(&c.VapiSummary, p.VapiSummary)
	if p.VapiSuccessEvaluation != nil {
		b := *p.VapiSuccessEvaluation
		c.VapiSuccessEvaluation = &b
	}
	setJSON(&c.VapiAnalysis, p.VapiAnalysis)
	setString(&c.VapiRecordingURL, p.VapiRecordingURL)
	setString(&c.VapiStereoRecordingURL, p.VapiStereoRecordingURL)
	if p.VapiCost != nil {
		v := *p.VapiCost
		c.VapiCost = &v
	}
	if p.VapiDurationSeconds != nil {
		v := *p.VapiDurationSeconds
		c.VapiDurationSeconds = &v
	}

	c.normalize()
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setJSON(dst *json.RawMessage, src json.RawMessage) {
	if len(src) > 0 {
		*dst = append(json.RawMessage(nil), src...)
	}
}
