package calllogs

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dealer-crm/internal/tenancy"
)

// MemoryRepo is an in-memory Repository. A single mutex serializes upserts, which
// gives the same one-row-per-call_id guarantee the unique index gives in Postgres.
type MemoryRepo struct {
	mu sync.Mutex

	now      func() time.Time
	nextID   int64
	rows     map[int64]CallLog
	byCallID map[string]int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		now:      time.Now,
		rows:     map[int64]CallLog{},
		byCallID: map[string]int64{},
	}
}

// SetClock replaces the timestamp source; tests use it to order rows.
func (r *MemoryRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepo) Upsert(ctx context.Context, p Patch) (CallLog, bool, error) {
	p.CallID = strings.TrimSpace(p.CallID)
	if p.CallID == "" {
		return CallLog{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	if id, ok := r.byCallID[p.CallID]; ok {
		c := r.rows[id]
		p.ApplyTo(&c)
		c.UpdatedAt = now
		r.rows[id] = c
		return c, false, nil
	}

	c := NewFromPatch(p)
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt, c.UpdatedAt = now, now
	r.rows[c.ID] = c
	r.byCallID[c.CallID] = c.ID
	return c, true, nil
}

func (r *MemoryRepo) GetByCallID(ctx context.Context, callID string) (CallLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byCallID[callID]
	if !ok {
		return CallLog{}, ErrNotFound
	}
	return r.rows[id], nil
}

func (r *MemoryRepo) Get(ctx context.Context, scope tenancy.Scope, id int64) (CallLog, error) {
	if !scope.Valid() {
		return CallLog{}, tenancy.ErrInvalidScope
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok || !scope.Owns(c.DealershipID) {
		return CallLog{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, scope tenancy.Scope, f ListFilter) (Page, error) {
	if !scope.Valid() {
		return Page{}, tenancy.ErrInvalidScope
	}
	f = f.withDefaults()
	all := r.scoped(scope, f.Department)

	start := f.offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + f.PerPage
	if end > len(all) {
		end = len(all)
	}
	return newPage(all[start:end], len(all), f), nil
}

func (r *MemoryRepo) Recent(ctx context.Context, scope tenancy.Scope, n int) ([]CallLog, error) {
	if !scope.Valid() {
		return nil, tenancy.ErrInvalidScope
	}
	all := r.scoped(scope, nil)
	if n >= 0 && len(all) > n {
		all = all[:n]
	}
	return all, nil
}

func (r *MemoryRepo) Aggregate(ctx context.Context, scope tenancy.Scope) (Aggregate, error) {
	if !scope.Valid() {
		return Aggregate{}, tenancy.ErrInvalidScope
	}
	agg := Aggregate{ByDepartment: map[Department]DepartmentTotals{}}
	for _, c := range r.scoped(scope, nil) {
		agg.Total++
		agg.DurationSeconds += int64(c.Duration)
		switch c.Status {
		case StatusCompleted:
			agg.Completed++
		case StatusInProgress:
			agg.InProgress++
		case StatusFailed:
			agg.Failed++
		}
		if c.Department != nil {
			t := agg.ByDepartment[*c.Department]
			t.Calls++
			t.DurationSeconds += int64(c.Duration)
			agg.ByDepartment[*c.Department] = t
		}
	}
	return agg, nil
}

// DetachDealership orphans the dealership's call logs, mirroring ON DELETE SET NULL.
func (r *MemoryRepo) DetachDealership(ctx context.Context, dealershipID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.rows {
		if c.DealershipID != nil && *c.DealershipID == dealershipID {
			c.DealershipID = nil
			r.rows[id] = c
		}
	}
	return nil
}

// Len is a test helper.
func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// scoped returns the dealership's rows newest first.
func (r *MemoryRepo) scoped(scope tenancy.Scope, dept *Department) []CallLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallLog, 0)
	for _, c := range r.rows {
		if !scope.Owns(c.DealershipID) {
			continue
		}
		if dept != nil && (c.Department == nil || *c.Department != *dept) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
