package users

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("users: not found")
	ErrEmailTaken   = errors.New("users: email already registered")
	ErrInvalidInput = errors.New("users: invalid input")
)

type User struct {
	ID           string    `json:"id"`
	DealershipID int64     `json:"dealership_id"`
	TenantID     string    `json:"tenant_id,omitempty"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Repository interface {
	Create(ctx context.Context, u User) (User, error)
	FindByEmail(ctx context.Context, email string) (User, error)
}

func normalizeEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

func validate(u User) error {
	if u.DealershipID <= 0 || normalizeEmail(u.Email) == "" || u.PasswordHash == "" || u.Role == "" {
		return ErrInvalidInput
	}
	return nil
}
