package calllogs

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound        = errors.New("calllogs: not found")
	ErrInvalidArgument = errors.New("calllogs: invalid argument")
)

type Status string

const (
	StatusInitiated  Status = "initiated"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusInitiated, StatusInProgress, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

func (d Direction) Valid() bool { return d == DirectionInbound || d == DirectionOutbound }

// Department is the business line a call was routed to. A call with no department
// counts as "other" in dashboard stats.
type Department string

const (
	DepartmentSales   Department = "sales"
	DepartmentService Department = "service"
	DepartmentParts   Department = "parts"
)

var Departments = []Department{DepartmentSales, DepartmentService, DepartmentParts}

func (d Department) Valid() bool {
	return d == DepartmentSales || d == DepartmentService || d == DepartmentParts
}

// ParseDepartment accepts the known departments case-insensitively.
func ParseDepartment(s string) (Department, bool) {
	d := Department(strings.ToLower(strings.TrimSpace(s)))
	if !d.Valid() {
		return "", false
	}
	return d, true
}

type CallLog struct {
	ID              int64       `json:"id"`
	CallID          string      `json:"call_id"`
	Status          Status      `json:"status"`
	Direction       Direction   `json:"direction"`
	CallerNumber    string      `json:"caller_number,omitempty"`
	RecipientNumber string      `json:"recipient_number,omitempty"`
	Duration        int         `json:"duration"`
	AssistantID     string      `json:"assistant_id,omitempty"`
	Department      *Department `json:"department"`
	CallStartedAt   *time.Time  `json:"call_started_at,omitempty"`
	CallEndedAt     *time.Time  `json:"call_ended_at,omitempty"`
	DealershipID    *int64      `json:"dealership_id"`
	Transcript      string      `json:"transcript,omitempty"`
	RecordingURL    string      `json:"recording_url,omitempty"`

	Metadata               json.RawMessage `json:"metadata,omitempty"`
	VapiSummary            json.RawMessage `json:"vapi_summary,omitempty"`
	VapiSuccessEvaluation  *bool           `json:"vapi_success_evaluation,omitempty"`
	VapiAnalysis           json.RawMessage `json:"vapi_analysis,omitempty"`
	VapiRecordingURL       string          `json:"vapi_recording_url,omitempty"`
	VapiStereoRecordingURL string          `json:"vapi_stereo_recording_url,omitempty"`
	VapiCost               *float64        `json:"vapi_cost,omitempty"`
	VapiDurationSeconds    *int            `json:"vapi_duration_seconds,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// normalize enforces the row invariants that hold after any merge.
func (c *CallLog) normalize() {
	if c.Duration < 0 {
		c.Duration = 0
	}
	if c.CallStartedAt != nil && c.CallEndedAt != nil && c.CallEndedAt.Before(*c.CallStartedAt) {
		c.CallEndedAt = nil
	}
}

type ListFilter struct {
	Department *Department
	Page       int
	PerPage    int
}

const DefaultPerPage = 10

func (f ListFilter) withDefaults() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	return f
}

func (f ListFilter) offset() int { return (f.Page - 1) * f.PerPage }

type Page struct {
	Items    []CallLog `json:"data"`
	Total    int       `json:"total"`
	Page     int       `json:"current_page"`
	PerPage  int       `json:"per_page"`
	LastPage int       `json:"last_page"`
}

func newPage(items []CallLog, total int, f ListFilter) Page {
	last := (total + f.PerPage - 1) / f.PerPage
	if last < 1 {
		last = 1
	}
	if items == nil {
		items = []CallLog{}
	}
	return Page{Items: items, Total: total, Page: f.Page, PerPage: f.PerPage, LastPage: last}
}

type DepartmentTotals struct {
	Calls           int
	DurationSeconds int64
}

// Aggregate holds counters over every call log of one dealership.
type Aggregate struct {
	Total           int
	Completed       int
	InProgress      int
	Failed          int
	DurationSeconds int64
	ByDepartment    map[Department]DepartmentTotals
}
