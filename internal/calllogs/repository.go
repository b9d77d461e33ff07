package calllogs

import (
	"context"

	"dealer-crm/internal/tenancy"
)

// Repository stores call logs. Every read that can reach the dashboard takes a
// tenancy.Scope; GetByCallID and Upsert are reserved for ingestion.
type Repository interface {
	// Upsert merges p into the row with p.CallID, creating it if needed.
	// created reports whether a new row was inserted.
	Upsert(ctx context.Context, p Patch) (log CallLog, created bool, err error)
	GetByCallID(ctx context.Context, callID string) (CallLog, error)

	Get(ctx context.Context, scope tenancy.Scope, id int64) (CallLog, error)
	List(ctx context.Context, scope tenancy.Scope, f ListFilter) (Page, error)
	Recent(ctx context.Context, scope tenancy.Scope, n int) ([]CallLog, error)
	Aggregate(ctx context.Context, scope tenancy.Scope) (Aggregate, error)
}
