package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"dealer-crm/internal/calllogs"
)

// EventEndOfCallReport is sent once the provider has finished a call.
const EventEndOfCallReport = "end-of-call-report"

// Payload is the typed view of a provider webhook body. Every field is optional.
// Three shapes are accepted: the test shape {"event", "message": {"call_id", ...}},
// a flat body with the message fields at the top level {"call_id", "status", ...}
// and the provider's native {"message": {"type", "call": {"id", ...}}}.
type Payload struct {
	Event        flexString `json:"event"`
	Type         flexString `json:"type"`
	TopCallID    flexString `json:"call_id"`
	DealershipID flexInt    `json:"dealership_id"`
	Message      *Message   `json:"message"`

	// fields is the message object decoded over the top-level one, so a value
	// under "message" wins and a flat body still fills every field.
	fields Message
}

type Message struct {
	Type   flexString `json:"type"`
	CallID flexString `json:"call_id"`
	Status flexString `json:"status"`

	Direction       flexString `json:"direction"`
	CallerNumber    flexString `json:"caller_number"`
	RecipientNumber flexString `json:"recipient_number"`
	AssistantID     flexString `json:"assistant_id"`
	DealershipID    flexInt    `json:"dealership_id"`

	Department         flexString `json:"department"`
	CallClassification flexString `json:"call_classification"`

	Duration        flexInt  `json:"duration"`
	DurationSeconds flexInt  `json:"durationSeconds"`
	CallStartedAt   flexTime `json:"call_started_at"`
	CallEndedAt     flexTime `json:"call_ended_at"`
	StartedAt       flexTime `json:"startedAt"`
	EndedAt         flexTime `json:"endedAt"`

	Summary            flexString      `json:"summary"`
	Transcript         flexString      `json:"transcript"`
	RecordingURL       flexString      `json:"recording_url"`
	ProviderRecording  flexString      `json:"recordingUrl"`
	StereoRecordingURL flexString      `json:"stereoRecordingUrl"`
	Cost               flexFloat       `json:"cost"`
	Success            flexBool        `json:"success"`
	Analysis           json.RawMessage `json:"analysis"`
	EndedReason        flexString      `json:"endedReason"`
	Frustration        flexString      `json:"frustration"`
	Metadata           json.RawMessage `json:"metadata"`

	Call *CallObject `json:"call"`
}

// CallObject is the provider's nested call description.
type CallObject struct {
	ID          flexString      `json:"id"`
	Type        flexString      `json:"type"`
	Status      flexString      `json:"status"`
	AssistantID flexString      `json:"assistantId"`
	StartedAt   flexTime        `json:"startedAt"`
	EndedAt     flexTime        `json:"endedAt"`
	Cost        flexFloat       `json:"cost"`
	Customer    *party          `json:"customer"`
	PhoneNumber *party          `json:"phoneNumber"`
	Metadata    json.RawMessage `json:"metadata"`
}

type party struct {
	Number flexString `json:"number"`
}

// Decode never fails: invalid JSON yields an empty payload and values of the wrong
// type are skipped while the rest of the body is kept.
func Decode(body []byte) Payload {
	var p Payload
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return p
	}
	if !unmarshalLenient(body, &p) {
		return Payload{}
	}
	unmarshalLenient(body, &p.fields)
	if p.Message != nil {
		var env struct {
			Message json.RawMessage `json:"message"`
		}
		unmarshalLenient(body, &env)
		unmarshalLenient(env.Message, &p.fields)
	}
	return p
}

// unmarshalLenient reports false only for bodies that are not JSON at all.
func unmarshalLenient(b []byte, v any) bool {
	if err := json.Unmarshal(b, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		return errors.As(err, &typeErr)
	}
	return true
}

func (p Payload) msg() Message {
	return p.fields
}

func (p Payload) call() CallObject {
	m := p.msg()
	if m.Call == nil {
		return CallObject{}
	}
	return *m.Call
}

// CallID resolution order: message.call_id, message.call.id, call_id.
func (p Payload) CallID() string {
	var nested flexString
	if p.Message != nil {
		nested = p.Message.CallID
	}
	return firstString(nested, p.call().ID, p.TopCallID)
}

// EventType is the top-level event or, failing that, the message type.
func (p Payload) EventType() string {
	return firstString(p.Event, p.Type, p.msg().Type)
}

// ExplicitDealershipID is message.dealership_id or dealership_id, if positive.
func (p Payload) ExplicitDealershipID() *int64 {
	v := firstInt(p.msg().DealershipID, p.DealershipID)
	if !v.Set || v.V <= 0 {
		return nil
	}
	id := int64(v.V)
	return &id
}

// CallerNumber is message.caller_number, else message.call.customer.number.
func (p Payload) CallerNumber() string {
	c := p.call()
	var nested flexString
	if c.Customer != nil {
		nested = c.Customer.Number
	}
	return firstString(p.msg().CallerNumber, nested)
}

// RecipientNumber is message.recipient_number, else message.call.phoneNumber.number.
func (p Payload) RecipientNumber() string {
	c := p.call()
	var nested flexString
	if c.PhoneNumber != nil {
		nested = c.PhoneNumber.Number
	}
	return firstString(p.msg().RecipientNumber, nested)
}

// Status maps provider statuses onto the stored enum. An end-of-call report with
// no readable status means the call completed.
func (p Payload) Status() (calllogs.Status, bool) {
	raw := strings.ToLower(firstString(p.msg().Status, p.call().Status))
	switch raw {
	case "initiated", "queued", "ringing", "scheduled":
		return calllogs.StatusInitiated, true
	case "in-progress", "in_progress", "inprogress", "forwarding":
		return calllogs.StatusInProgress, true
	case "completed", "ended":
		return calllogs.StatusCompleted, true
	case "failed", "busy", "no-answer", "canceled", "cancelled":
		return calllogs.StatusFailed, true
	}
	if p.EventType() == EventEndOfCallReport {
		return calllogs.StatusCompleted, true
	}
	return "", false
}

// Direction reads message.direction, else the provider call type
// (inboundPhoneCall / outboundPhoneCall).
func (p Payload) Direction() (calllogs.Direction, bool) {
	raw := strings.ToLower(firstString(p.msg().Direction, p.call().Type))
	switch {
	case raw == "inbound" || strings.HasPrefix(raw, "inbound"):
		return calllogs.DirectionInbound, true
	case raw == "outbound" || strings.HasPrefix(raw, "outbound"):
		return calllogs.DirectionOutbound, true
	}
	return "", false
}

// Patch converts the payload into a call log patch. Absent fields stay nil so an
// update never erases what an earlier delivery stored. Department and dealership are
// resolved by the caller.
//
// Every message field falls back to the same key at the top level of the body.
//
// Field rules:
//   - duration: message.duration, else message.durationSeconds
//   - call_started_at: message.call_started_at, message.startedAt, message.call.startedAt
//   - call_ended_at: message.call_ended_at, message.endedAt, message.call.endedAt
//   - recording_url: message.recording_url, else message.recordingUrl
//   - vapi_summary: message.summary stored as a JSON string
//   - vapi_success_evaluation: message.success
//   - vapi_cost: message.cost, else message.call.cost
//   - vapi_duration_seconds: message.durationSeconds
//   - metadata: message.metadata, else message.call.metadata, plus frustration,
//     endedReason and call_classification when present
func (p Payload) Patch(region string) calllogs.Patch {
	m := p.msg()
	c := p.call()

	out := calllogs.Patch{CallID: p.CallID()}

	if s, ok := p.Status(); ok {
		out.Status = &s
	}
	if d, ok := p.Direction(); ok {
		out.Direction = &d
	}
	if n := p.CallerNumber(); n != "" {
		e := NormalizePhone(n, region)
		out.CallerNumber = &e
	}
	if n := p.RecipientNumber(); n != "" {
		e := NormalizePhone(n, region)
		out.RecipientNumber = &e
	}
	out.Duration = firstInt(m.Duration, m.DurationSeconds).ptr()
	out.VapiDurationSeconds = m.DurationSeconds.ptr()
	if a := firstString(m.AssistantID, c.AssistantID); a != "" {
		out.AssistantID = &a
	}
	out.CallStartedAt = firstTime(m.CallStartedAt, m.StartedAt, c.StartedAt).ptr()
	out.CallEndedAt = firstTime(m.CallEndedAt, m.EndedAt, c.EndedAt).ptr()

	out.Transcript = strPtr(m.Transcript)
	if u := firstString(m.RecordingURL, m.ProviderRecording); u != "" {
		out.RecordingURL = &u
	}
	out.VapiRecordingURL = strPtr(m.ProviderRecording)
	out.VapiStereoRecordingURL = strPtr(m.StereoRecordingURL)

	if s := strings.TrimSpace(string(m.Summary)); s != "" {
		b, _ := json.Marshal(s)
		out.VapiSummary = b
	}
	if m.Success.Set {
		v := m.Success.V
		out.VapiSuccessEvaluation = &v
	}
	if isJSONValue(m.Analysis) {
		out.VapiAnalysis = m.Analysis
	}
	if m.Cost.Set {
		v := m.Cost.V
		out.VapiCost = &v
	} else if c.Cost.Set {
		v := c.Cost.V
		out.VapiCost = &v
	}
	out.Metadata = p.metadata()
	return out
}

func (p Payload) metadata() json.RawMessage {
	m := p.msg()
	base := m.Metadata
	if !isJSONValue(base) {
		base = p.call().Metadata
	}

	extra := map[string]string{}
	if v := strings.TrimSpace(string(m.Frustration)); v != "" {
		extra["frustration"] = v
	}
	if v := strings.TrimSpace(string(m.EndedReason)); v != "" {
		extra["ended_reason"] = v
	}
	if v := strings.TrimSpace(string(m.CallClassification)); v != "" {
		extra["call_classification"] = v
	}
	if len(extra) == 0 {
		if isJSONValue(base) {
			return base
		}
		return nil
	}

	merged := map[string]any{}
	if isJSONValue(base) {
		if err := json.Unmarshal(base, &merged); err != nil {
			// not an object; keep it under its own key
			merged = map[string]any{"provider": base}
		}
	}
	for k, v := range extra {
		merged[k] = v
	}
	b, err := json.Marshal(merged)
	if err != nil {
		return nil
	}
	return b
}

func isJSONValue(b json.RawMessage) bool {
	t := bytes.TrimSpace(b)
	return len(t) > 0 && !bytes.Equal(t, []byte("null"))
}

func strPtr(s flexString) *string {
	v := strings.TrimSpace(string(s))
	if v == "" {
		return nil
	}
	return &v
}
