package audit

import (
	"context"
	"database/sql"

	"dealer-crm/pkg/utils"
)

// PostgresRepo writes to audit_events. It only ever INSERTs.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, dealership_id, call_id, path, method, remote_ip,
  headers, payload, raw_body, outcome, message, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8::jsonb,$9::jsonb,$10,$11,$12,$13
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		utils.NullInt64(e.DealershipID),
		e.CallID,
		e.Path,
		e.Method,
		e.RemoteIP,
		utils.NullString(string(e.Headers)),
		utils.NullString(string(e.Payload)),
		e.RawBody,
		e.Outcome,
		e.Message,
		e.CreatedAt,
	)
	return err
}
