package tenancy

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Detacher is notified when a dealership is deleted so stores outside this package can
// drop or orphan their rows. The Postgres schema does this with foreign keys.
type Detacher interface {
	DetachDealership(ctx context.Context, dealershipID int64) error
}

// MemoryRepo is an in-memory Repository for tests and local runs.
type MemoryRepo struct {
	mu sync.Mutex

	now       func() time.Time
	nextID    int64
	nextCust  int64
	tenants   map[string]Tenant
	byID      map[int64]Dealership
	customers map[int64]Customer
	detachers []Detacher
}

func NewMemoryRepo(detachers ...Detacher) *MemoryRepo {
	return &MemoryRepo{
		now:       time.Now,
		tenants:   map[string]Tenant{},
		byID:      map[int64]Dealership{},
		customers: map[int64]Customer{},
		detachers: detachers,
	}
}

func (r *MemoryRepo) CreateTenant(ctx context.Context, t Tenant) (Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = r.now().UTC()
	}
	r.tenants[t.ID] = t
	return t, nil
}

func (r *MemoryRepo) Create(ctx context.Context, d Dealership) (Dealership, error) {
	if err := validateDealership(d); err != nil {
		return Dealership{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.now().UTC()
	d.ID = r.nextID
	d.CreatedAt, d.UpdatedAt = now, now
	r.byID[d.ID] = d
	return d, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Dealership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return Dealership{}, ErrNotFound
	}
	return d, nil
}

func (r *MemoryRepo) ListByTenant(ctx context.Context, tenantID string) ([]Dealership, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Dealership, 0)
	for _, d := range r.byID {
		if d.TenantID == tenantID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryRepo) FindByPhone(ctx context.Context, e164 string) (Dealership, bool, error) {
	if e164 == "" {
		return Dealership{}, false, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		found Dealership
		ok    bool
	)
	for _, d := range r.byID {
		// lowest id wins, matching the ORDER BY in the SQL implementation
		if d.Phone == e164 && (!ok || d.ID < found.ID) {
			found, ok = d, true
		}
	}
	return found, ok, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	if _, ok := r.byID[id]; !ok {
		r.mu.Unlock()
		return ErrNotFound
	}
	delete(r.byID, id)
	for cid, c := range r.customers {
		if c.DealershipID == id {
			delete(r.customers, cid)
		}
	}
	detachers := r.detachers
	r.mu.Unlock()

	for _, d := range detachers {
		if err := d.DetachDealership(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepo) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[c.DealershipID]; !ok {
		return Customer{}, ErrNotFound
	}
	r.nextCust++
	c.ID = r.nextCust
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.now().UTC()
	}
	r.customers[c.ID] = c
	return c, nil
}

// CustomerCount is a test helper.
func (r *MemoryRepo) CustomerCount(dealershipID int64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.customers {
		if c.DealershipID == dealershipID {
			n++
		}
	}
	return n
}
