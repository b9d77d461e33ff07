package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"dealer-crm/internal/audit"
	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/metrics"
	"dealer-crm/pkg/logger"
)

type Outcome string

const (
	// OutcomeProcessed: the call log was created or updated.
	OutcomeProcessed Outcome = "processed"
	// OutcomePartial: the delivery was accepted but carried no call id, so nothing was written.
	OutcomePartial Outcome = "partial"
	// OutcomeWriteFailed: the store rejected the write. The provider still gets a 200.
	OutcomeWriteFailed Outcome = "write_failed"
	// OutcomeRejected: signature verification is enabled and the signature did not match.
	OutcomeRejected Outcome = "rejected"
	// OutcomeTooLarge: the body went past the read limit and was not parsed.
	OutcomeTooLarge Outcome = "body_too_large"
)

// Result is the internal view of one delivery. The HTTP response does not depend on
// it except for OutcomeRejected.
type Result struct {
	Outcome      Outcome
	CallID       string
	CallLogID    int64
	Created      bool
	DealershipID *int64
	Err          error
}

// Delivery is one raw webhook request.
type Delivery struct {
	Body      []byte
	Headers   http.Header
	Path      string
	Method    string
	RemoteIP  string
	Signature string
	// Truncated is set when Body holds only the first part of a larger request.
	Truncated bool
}

// StatsInvalidator drops cached dashboard numbers after a write.
type StatsInvalidator interface {
	Invalidate(ctx context.Context, dealershipID int64) error
}

type Deps struct {
	Logs        calllogs.Repository
	Audit       *audit.Service
	Dealerships DealershipLookup
	Classifier  DepartmentClassifier
	Stats       StatsInvalidator
	Metrics     *metrics.Metrics
	// Verify, when set, must accept the delivery's signature before anything is parsed.
	Verify func(signature string, body []byte) bool
	Region string
}

type Service struct {
	logs       calllogs.Repository
	audit      *audit.Service
	resolver   *DealershipResolver
	classifier DepartmentClassifier
	stats      StatsInvalidator
	metrics    *metrics.Metrics
	verify     func(string, []byte) bool
	region     string
}

func NewService(d Deps) *Service {
	classifier := d.Classifier
	if classifier == nil {
		classifier = ExplicitClassifier{}
	}
	region := d.Region
	if region == "" {
		region = "US"
	}
	return &Service{
		logs:       d.Logs,
		audit:      d.Audit,
		resolver:   NewDealershipResolver(d.Dealerships),
		classifier: classifier,
		stats:      d.Stats,
		metrics:    d.Metrics,
		verify:     d.Verify,
		region:     region,
	}
}

// Ingest records the delivery in the audit trail, then upserts the call log it
// describes. It never returns an error; failures are reported through Result,
// logs and metrics.
func (s *Service) Ingest(ctx context.Context, d Delivery) Result {
	log := logger.From(ctx).With("path", d.Path, "method", d.Method)

	log.InfoContext(ctx, "webhook received",
		"payload", string(d.Body),
		"headers", redactHeaders(d.Headers),
		"remote_ip", d.RemoteIP,
	)
	if s.audit != nil {
		err := s.audit.LogWebhookDelivery(ctx, audit.Delivery{
			Path:     d.Path,
			Method:   d.Method,
			RemoteIP: d.RemoteIP,
			Headers:  redactHeaders(d.Headers),
			Body:     d.Body,
		})
		if err != nil {
			log.WarnContext(ctx, "webhook audit append failed", "error", err)
		}
	}

	if d.Truncated {
		return s.finish(ctx, log, Result{Outcome: OutcomeTooLarge}, fmt.Sprintf("body exceeds %d bytes", len(d.Body)))
	}
	if s.verify != nil && !s.verify(d.Signature, d.Body) {
		return s.finish(ctx, log, Result{Outcome: OutcomeRejected}, "signature mismatch")
	}

	p := Decode(d.Body)
	callID := p.CallID()
	if callID == "" {
		return s.finish(ctx, log, Result{Outcome: OutcomePartial}, "no call id in payload")
	}

	patch := p.Patch(s.region)
	patch.Department = s.classifier.Classify(p)

	var recipient string
	if patch.RecipientNumber != nil {
		recipient = *patch.RecipientNumber
	}
	dealershipID, err := s.resolver.Resolve(ctx, p.ExplicitDealershipID(), recipient)
	if err != nil {
		// Attribution is best-effort; the row is still worth keeping.
		log.WarnContext(ctx, "dealership resolution failed", "call_id", callID, "error", err)
	}
	patch.DealershipID = dealershipID

	if s.logs == nil {
		err := errors.New("ingest: call log repository not configured")
		return s.finish(ctx, log, Result{Outcome: OutcomeWriteFailed, CallID: callID, Err: err}, err.Error())
	}

	// A reassigned call moves between dashboards, so both owners lose their cached stats.
	var previous *int64
	if s.stats != nil {
		prev, err := s.logs.GetByCallID(ctx, callID)
		switch {
		case err == nil:
			previous = prev.DealershipID
		case !errors.Is(err, calllogs.ErrNotFound):
			log.WarnContext(ctx, "previous call log lookup failed", "call_id", callID, "error", err)
		}
	}

	row, created, err := s.logs.Upsert(ctx, patch)
	if err != nil {
		res := Result{Outcome: OutcomeWriteFailed, CallID: callID, DealershipID: dealershipID, Err: err}
		return s.finish(ctx, log, res, err.Error())
	}
	s.metrics.RecordUpsert(created)

	s.invalidate(ctx, log, row.DealershipID)
	if previous != nil && (row.DealershipID == nil || *previous != *row.DealershipID) {
		s.invalidate(ctx, log, previous)
	}

	msg := "updated"
	if created {
		msg = "created"
	}
	return s.finish(ctx, log, Result{
		Outcome:      OutcomeProcessed,
		CallID:       callID,
		CallLogID:    row.ID,
		Created:      created,
		DealershipID: row.DealershipID,
	}, msg)
}

func (s *Service) invalidate(ctx context.Context, log *slog.Logger, dealershipID *int64) {
	if dealershipID == nil || s.stats == nil {
		return
	}
	if err := s.stats.Invalidate(ctx, *dealershipID); err != nil {
		log.WarnContext(ctx, "stats cache invalidation failed", "dealership_id", *dealershipID, "error", err)
	}
}

func (s *Service) finish(ctx context.Context, log *slog.Logger, res Result, message string) Result {
	s.metrics.RecordWebhook(string(res.Outcome))

	attrs := []any{"outcome", res.Outcome, "call_id", res.CallID, "message", message}
	switch res.Outcome {
	case OutcomeWriteFailed:
		log.ErrorContext(ctx, "webhook call log write failed", append(attrs, "error", res.Err)...)
	case OutcomeProcessed:
		log.InfoContext(ctx, "webhook processed", append(attrs, "call_log_id", res.CallLogID, "created", res.Created)...)
	default:
		log.WarnContext(ctx, "webhook not processed", attrs...)
	}

	if s.audit != nil {
		if err := s.audit.LogWebhookOutcome(ctx, res.CallID, res.DealershipID, string(res.Outcome), message); err != nil {
			log.WarnContext(ctx, "webhook outcome audit failed", "error", err)
		}
	}
	return res
}

var sensitiveHeaders = map[string]struct{}{
	"Authorization": {},
	"Cookie":        {},
}

// redactHeaders masks credentials; everything else is kept for the audit trail.
func redactHeaders(h http.Header) http.Header {
	if len(h) == 0 {
		return h
	}
	out := make(http.Header, len(h))
	for k, v := range h {
		if _, ok := sensitiveHeaders[http.CanonicalHeaderKey(k)]; ok {
			out[k] = []string{"[redacted]"}
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	return out
}
