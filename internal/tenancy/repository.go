package tenancy

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNotFound        = errors.New("tenancy: not found")
	ErrInvalidArgument = errors.New("tenancy: invalid argument")
)

type Repository interface {
	CreateTenant(ctx context.Context, t Tenant) (Tenant, error)
	Create(ctx context.Context, d Dealership) (Dealership, error)
	Get(ctx context.Context, id int64) (Dealership, error)
	ListByTenant(ctx context.Context, tenantID string) ([]Dealership, error)
	// FindByPhone matches an E.164 number against dealership phones.
	FindByPhone(ctx context.Context, e164 string) (Dealership, bool, error)
	// Delete removes the dealership and its owned records. Call logs survive with no dealership.
	Delete(ctx context.Context, id int64) error

	CreateCustomer(ctx context.Context, c Customer) (Customer, error)
}

func validateDealership(d Dealership) error {
	if strings.TrimSpace(d.Name) == "" {
		return errors.Join(ErrInvalidArgument, errors.New("name is required"))
	}
	return nil
}
