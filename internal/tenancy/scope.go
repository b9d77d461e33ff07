package tenancy

import (
	"context"
	"errors"
	"fmt"

	"dealer-crm/internal/auth"
)

var ErrInvalidScope = errors.New("tenancy: invalid dealership scope")

// Scope identifies the dealership a read is restricted to. The zero value is
// invalid, so a repository receiving one refuses the read.
type Scope struct {
	dealershipID int64
}

func NewScope(dealershipID int64) (Scope, error) {
	if dealershipID <= 0 {
		return Scope{}, fmt.Errorf("%w: %d", ErrInvalidScope, dealershipID)
	}
	return Scope{dealershipID: dealershipID}, nil
}

// ScopeFromContext builds the scope of the authenticated caller.
func ScopeFromContext(ctx context.Context) (Scope, error) {
	id, err := auth.DealershipID(ctx)
	if err != nil {
		return Scope{}, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	return NewScope(id)
}

func (s Scope) DealershipID() int64 { return s.dealershipID }

func (s Scope) Valid() bool { return s.dealershipID > 0 }

func (s Scope) Owns(dealershipID *int64) bool {
	return s.Valid() && dealershipID != nil && *dealershipID == s.dealershipID
}
