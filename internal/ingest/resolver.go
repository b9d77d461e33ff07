package ingest

import (
	"context"
	"errors"

	"dealer-crm/internal/tenancy"
)

// DealershipLookup is the read side of the dealership store ingestion needs.
type DealershipLookup interface {
	Get(ctx context.Context, id int64) (tenancy.Dealership, error)
	FindByPhone(ctx context.Context, e164 string) (tenancy.Dealership, bool, error)
}

// DealershipResolver attributes a delivery to a dealership: an explicit id that
// exists wins, otherwise the dialed number is matched against dealership phones.
type DealershipResolver struct {
	repo DealershipLookup
}

func NewDealershipResolver(repo DealershipLookup) *DealershipResolver {
	return &DealershipResolver{repo: repo}
}

// Resolve returns nil when the delivery cannot be attributed.
func (r *DealershipResolver) Resolve(ctx context.Context, explicit *int64, recipientE164 string) (*int64, error) {
	if r == nil || r.repo == nil {
		return nil, nil
	}
	if explicit != nil {
		d, err := r.repo.Get(ctx, *explicit)
		switch {
		case err == nil:
			id := d.ID
			return &id, nil
		case !errors.Is(err, tenancy.ErrNotFound):
			return nil, err
		}
	}
	if recipientE164 == "" {
		return nil, nil
	}
	d, ok, err := r.repo.FindByPhone(ctx, recipientE164)
	if err != nil || !ok {
		return nil, err
	}
	id := d.ID
	return &id, nil
}
