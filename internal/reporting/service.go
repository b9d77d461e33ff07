package reporting

import (
	"context"
	"errors"
	"time"

	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/metrics"
	"dealer-crm/internal/tenancy"
	"dealer-crm/pkg/logger"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

const recentLimit = 5

// DashboardRequest selects the page of call logs shown under the stats. Department
// only filters the page; stats always cover every call of the dealership.
type DashboardRequest struct {
	Department *calllogs.Department
	Page       int
}

type Dashboard struct {
	Stats      DashboardStats       `json:"stats"`
	CallLogs   calllogs.Page        `json:"call_logs"`
	Department *calllogs.Department `json:"department"`
}

// RecentCall is the compact row shown on the dashboard widget.
type RecentCall struct {
	ID            int64              `json:"id"`
	CallID        string             `json:"call_id"`
	Status        calllogs.Status    `json:"status"`
	Direction     calllogs.Direction `json:"direction"`
	CallerNumber  string             `json:"caller_number"`
	Duration      int                `json:"duration"`
	CallStartedAt *time.Time         `json:"call_started_at"`
	CallEndedAt   *time.Time         `json:"call_ended_at"`
}

type StatusCounts struct {
	Total      int `json:"total"`
	Completed  int `json:"completed"`
	InProgress int `json:"in_progress"`
	Failed     int `json:"failed"`
}

type Summary struct {
	CallLogs []RecentCall `json:"call_logs"`
	Stats    StatusCounts `json:"stats"`
}

type Service struct {
	logs    calllogs.Repository
	cache   StatsCache
	metrics *metrics.Metrics
}

// NewService wires reporting over the call log store. A nil cache disables caching.
func NewService(logs calllogs.Repository, cache StatsCache, m *metrics.Metrics) *Service {
	if cache == nil {
		cache = NoopStatsCache{}
	}
	return &Service{logs: logs, cache: cache, metrics: m}
}

// Stats returns the dashboard numbers for scope, from cache when possible.
// Cache failures fall through to the store.
func (s *Service) Stats(ctx context.Context, scope tenancy.Scope) (DashboardStats, error) {
	if !scope.Valid() {
		return DashboardStats{}, tenancy.ErrInvalidScope
	}
	id := scope.DealershipID()
	log := logger.From(ctx)

	cached, ok, err := s.cache.Get(ctx, id)
	switch {
	case err != nil:
		s.metrics.RecordStatsCache("error")
		log.WarnContext(ctx, "stats cache read failed", "dealership_id", id, "error", err)
	case ok:
		s.metrics.RecordStatsCache("hit")
		return cached, nil
	default:
		s.metrics.RecordStatsCache("miss")
	}

	agg, err := s.logs.Aggregate(ctx, scope)
	if err != nil {
		return DashboardStats{}, err
	}
	stats := ComputeStats(agg)
	if err := s.cache.Set(ctx, id, stats); err != nil {
		log.WarnContext(ctx, "stats cache write failed", "dealership_id", id, "error", err)
	}
	return stats, nil
}

func (s *Service) Dashboard(ctx context.Context, scope tenancy.Scope, req DashboardRequest) (Dashboard, error) {
	if req.Department != nil && !req.Department.Valid() {
		return Dashboard{}, ErrInvalidRequest
	}
	stats, err := s.Stats(ctx, scope)
	if err != nil {
		return Dashboard{}, err
	}
	page, err := s.logs.List(ctx, scope, calllogs.ListFilter{Department: req.Department, Page: req.Page})
	if err != nil {
		return Dashboard{}, err
	}
	return Dashboard{Stats: stats, CallLogs: page, Department: req.Department}, nil
}

// Summary is the dashboard widget: the five newest calls and status counts.
func (s *Service) Summary(ctx context.Context, scope tenancy.Scope) (Summary, error) {
	rows, err := s.logs.Recent(ctx, scope, recentLimit)
	if err != nil {
		return Summary{}, err
	}
	agg, err := s.logs.Aggregate(ctx, scope)
	if err != nil {
		return Summary{}, err
	}

	out := Summary{
		CallLogs: make([]RecentCall, 0, len(rows)),
		Stats: StatusCounts{
			Total:      agg.Total,
			Completed:  agg.Completed,
			InProgress: agg.InProgress,
			Failed:     agg.Failed,
		},
	}
	for _, c := range rows {
		out.CallLogs = append(out.CallLogs, RecentCall{
			ID:            c.ID,
			CallID:        c.CallID,
			Status:        c.Status,
			Direction:     c.Direction,
			CallerNumber:  c.CallerNumber,
			Duration:      c.Duration,
			CallStartedAt: c.CallStartedAt,
			CallEndedAt:   c.CallEndedAt,
		})
	}
	return out, nil
}

// Invalidate drops cached stats after a write. It satisfies ingest.StatsInvalidator.
func (s *Service) Invalidate(ctx context.Context, dealershipID int64) error {
	return s.cache.Invalidate(ctx, dealershipID)
}

// DetachDealership satisfies tenancy.Detacher: a deleted dealership's cached stats
// must not outlive its call logs.
func (s *Service) DetachDealership(ctx context.Context, dealershipID int64) error {
	return s.Invalidate(ctx, dealershipID)
}
