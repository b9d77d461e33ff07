package knowledge

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dealer-crm/internal/tenancy"
)

type MemoryRepo struct {
	mu     sync.Mutex
	now    func() time.Time
	nextID int64
	rows   map[int64]KnowledgeBase
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{now: time.Now, rows: map[int64]KnowledgeBase{}}
}

func (r *MemoryRepo) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

func (r *MemoryRepo) Create(ctx context.Context, kb KnowledgeBase) (KnowledgeBase, error) {
	if kb.DealershipID <= 0 {
		return KnowledgeBase{}, tenancy.ErrInvalidScope
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	now := r.now().UTC()
	kb.ID = r.nextID
	kb.Name = strings.TrimSpace(kb.Name)
	kb.CreatedAt, kb.UpdatedAt = now, now
	r.rows[kb.ID] = kb
	return kb, nil
}

func (r *MemoryRepo) SetFilePath(ctx context.Context, scope tenancy.Scope, id int64, path string) (KnowledgeBase, error) {
	if !scope.Valid() {
		return KnowledgeBase{}, tenancy.ErrInvalidScope
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kb, ok := r.rows[id]
	if !ok || kb.DealershipID != scope.DealershipID() {
		return KnowledgeBase{}, ErrNotFound
	}
	kb.FilePath = path
	kb.UpdatedAt = r.now().UTC()
	r.rows[id] = kb
	return kb, nil
}

func (r *MemoryRepo) Get(ctx context.Context, scope tenancy.Scope, id int64) (KnowledgeBase, error) {
	if !scope.Valid() {
		return KnowledgeBase{}, tenancy.ErrInvalidScope
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kb, ok := r.rows[id]
	if !ok || kb.DealershipID != scope.DealershipID() {
		return KnowledgeBase{}, ErrNotFound
	}
	return kb, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, scope tenancy.Scope, id int64) error {
	if !scope.Valid() {
		return tenancy.ErrInvalidScope
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kb, ok := r.rows[id]
	if !ok || kb.DealershipID != scope.DealershipID() {
		return ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, scope tenancy.Scope, page, perPage int) (Page, error) {
	if !scope.Valid() {
		return Page{}, tenancy.ErrInvalidScope
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	r.mu.Lock()
	var all []KnowledgeBase
	for _, kb := range r.rows {
		if kb.DealershipID == scope.DealershipID() {
			all = append(all, kb)
		}
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID > all[j].ID
	})
	start := (page - 1) * perPage
	if start > len(all) {
		start = len(all)
	}
	end := start + perPage
	if end > len(all) {
		end = len(all)
	}
	return newPage(all[start:end], len(all), page, perPage), nil
}
