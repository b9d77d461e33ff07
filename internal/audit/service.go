package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It has no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records audit events. Callers treat it as best-effort and must not fail
// a request because an append failed.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Delivery describes one raw inbound webhook request.
type Delivery struct {
	Path     string
	Method   string
	RemoteIP string
	Headers  http.Header
	Body     []byte
}

// LogWebhookDelivery stores the untouched request. The body is kept as JSON when it
// parses and as text otherwise, so nothing the provider sent is lost.
func (s *Service) LogWebhookDelivery(ctx context.Context, d Delivery) error {
	e := Event{
		Type:     EventTypeWebhookDelivery,
		Path:     d.Path,
		Method:   d.Method,
		RemoteIP: d.RemoteIP,
	}
	if len(d.Headers) > 0 {
		h, err := json.Marshal(d.Headers)
		if err != nil {
			return err
		}
		e.Headers = h
	}
	if len(d.Body) > 0 {
		if json.Valid(d.Body) {
			e.Payload = append(json.RawMessage(nil), d.Body...)
		} else {
			e.RawBody = string(d.Body)
		}
	}
	return s.Append(ctx, e)
}

// LogWebhookOutcome records how a delivery was processed.
func (s *Service) LogWebhookOutcome(ctx context.Context, callID string, dealershipID *int64, outcome, message string) error {
	return s.Append(ctx, Event{
		Type:         EventTypeWebhookOutcome,
		CallID:       callID,
		DealershipID: dealershipID,
		Outcome:      outcome,
		Message:      message,
	})
}
