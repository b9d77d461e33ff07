package users

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryRepo struct {
	mu      sync.Mutex
	byEmail map[string]User
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{byEmail: map[string]User{}} }

func (r *MemoryRepo) Create(ctx context.Context, u User) (User, error) {
	if err := validate(u); err != nil {
		return User{}, err
	}
	u.Email = normalizeEmail(u.Email)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[u.Email]; ok {
		return User{}, ErrEmailTaken
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.byEmail[u.Email] = u
	return u, nil
}

func (r *MemoryRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}
