package calllogs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"dealer-crm/internal/tenancy"
	"dealer-crm/pkg/utils"
)

const callIDConstraint = "call_logs_call_id_key"

// PostgresRepo assumes the call_logs table from internal/database/migrations,
// including UNIQUE (call_id) named call_logs_call_id_key.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callLogColumns = `
id, call_id, status, direction, caller_number, recipient_number, duration, assistant_id,
department, call_started_at, call_ended_at, dealership_id, transcript, recording_url,
metadata, vapi_summary, vapi_success_evaluation, vapi_analysis, vapi_recording_url,
vapi_stereo_recording_url, vapi_cost, vapi_duration_seconds, created_at, updated_at`

func (r *PostgresRepo) Upsert(ctx context.Context, p Patch) (CallLog, bool, error) {
	p.CallID = strings.TrimSpace(p.CallID)
	if p.CallID == "" {
		return CallLog{}, false, ErrInvalidArgument
	}

	// A concurrent insert of the same call_id loses on the unique index; the retry
	// then finds the winner's row and merges into it.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		out, created, err := r.upsertOnce(ctx, p)
		if err == nil {
			return out, created, nil
		}
		if !utils.IsUniqueViolation(err, callIDConstraint) {
			return CallLog{}, false, err
		}
		lastErr = err
	}
	return CallLog{}, false, fmt.Errorf("upsert call log %s: %w", p.CallID, lastErr)
}

func (r *PostgresRepo) upsertOnce(ctx context.Context, p Patch) (CallLog, bool, error) {
	var (
		out     CallLog
		created bool
	)
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		q := `SELECT ` + callLogColumns + ` FROM call_logs WHERE call_id = $1 FOR UPDATE`
		existing, err := scanCallLog(tx.QueryRowContext(ctx, q, p.CallID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			c := NewFromPatch(p)
			out, err = insertCallLog(ctx, tx, c)
			created = true
			return err
		case err != nil:
			return err
		}

		p.ApplyTo(&existing)
		out, err = updateCallLog(ctx, tx, existing)
		return err
	})
	if err != nil {
		return CallLog{}, false, err
	}
	return out, created, nil
}

func insertCallLog(ctx context.Context, tx *sql.Tx, c CallLog) (CallLog, error) {
	q := `
INSERT INTO call_logs (
  call_id, status, direction, caller_number, recipient_number, duration, assistant_id,
  department, call_started_at, call_ended_at, dealership_id, transcript, recording_url,
  metadata, vapi_summary, vapi_success_evaluation, vapi_analysis, vapi_recording_url,
  vapi_stereo_recording_url, vapi_cost, vapi_duration_seconds
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14::jsonb,$15::jsonb,$16,$17::jsonb,$18,$19,$20,$21
)
RETURNING ` + callLogColumns
	return scanCallLog(tx.QueryRowContext(ctx, q, writeArgs(c)...))
}

func updateCallLog(ctx context.Context, tx *sql.Tx, c CallLog) (CallLog, error) {
	q := `
UPDATE call_logs SET
  status = $2, direction = $3, caller_number = $4, recipient_number = $5, duration = $6,
  assistant_id = $7, department = $8, call_started_at = $9, call_ended_at = $10,
  dealership_id = $11, transcript = $12, recording_url = $13, metadata = $14::jsonb,
  vapi_summary = $15::jsonb, vapi_success_evaluation = $16, vapi_analysis = $17::jsonb,
  vapi_recording_url = $18, vapi_stereo_recording_url = $19, vapi_cost = $20,
  vapi_duration_seconds = $21, updated_at = now()
WHERE call_id = $1
RETURNING ` + callLogColumns
	return scanCallLog(tx.QueryRowContext(ctx, q, writeArgs(c)...))
}

func writeArgs(c CallLog) []any {
	var dept sql.NullString
	if c.Department != nil {
		dept = sql.NullString{String: string(*c.Department), Valid: true}
	}
	var success sql.NullBool
	if c.VapiSuccessEvaluation != nil {
		success = sql.NullBool{Bool: *c.VapiSuccessEvaluation, Valid: true}
	}
	var cost sql.NullFloat64
	if c.VapiCost != nil {
		cost = sql.NullFloat64{Float64: *c.VapiCost, Valid: true}
	}
	var vapiDur sql.NullInt64
	if c.VapiDurationSeconds != nil {
		vapiDur = sql.NullInt64{Int64: int64(*c.VapiDurationSeconds), Valid: true}
	}
	return []any{
		c.CallID,
		string(c.Status),
		string(c.Direction),
		utils.NullString(c.CallerNumber),
		utils.NullString(c.RecipientNumber),
		c.Duration,
		utils.NullString(c.AssistantID),
		dept,
		utils.NullTime(c.CallStartedAt),
		utils.NullTime(c.CallEndedAt),
		utils.NullInt64(c.DealershipID),
		utils.NullString(c.Transcript),
		utils.NullString(c.RecordingURL),
		utils.NullString(string(c.Metadata)),
		utils.NullString(string(c.VapiSummary)),
		success,
		utils.NullString(string(c.VapiAnalysis)),
		utils.NullString(c.VapiRecordingURL),
		utils.NullString(c.VapiStereoRecordingURL),
		cost,
		vapiDur,
	}
}

func scanCallLog(row interface{ Scan(...any) error }) (CallLog, error) {
	var (
		c                            CallLog
		status, direction            string
		caller, recipient, assistant sql.NullString
		dept, transcript, recording  sql.NullString
		vapiRecording, vapiStereo    sql.NullString
		started, ended               sql.NullTime
		dealershipID, vapiDur        sql.NullInt64
		success                      sql.NullBool
		cost                         sql.NullFloat64
		metadata, summary, analysis  []byte
	)
	err := row.Scan(
		&c.ID,
		&c.CallID,
		&status,
		&direction,
		&caller,
		&recipient,
		&c.Duration,
		&assistant,
		&dept,
		&started,
		&ended,
		&dealershipID,
		&transcript,
		&recording,
		&metadata,
		&summary,
		&success,
		&analysis,
		&vapiRecording,
		&vapiStereo,
		&cost,
		&vapiDur,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return CallLog{}, err
	}

	c.Status = Status(status)
	c.Direction = Direction(direction)
	c.CallerNumber = caller.String
	c.RecipientNumber = recipient.String
	c.AssistantID = assistant.String
	if dept.Valid {
		d := Department(dept.String)
		c.Department = &d
	}
	if started.Valid {
		t := started.Time
		c.CallStartedAt = &t
	}
	if ended.Valid {
		t := ended.Time
		c.CallEndedAt = &t
	}
	if dealershipID.Valid {
		id := dealershipID.Int64
		c.DealershipID = &id
	}
	c.Transcript = transcript.String
	c.RecordingURL = recording.String
	c.Metadata = rawJSON(metadata)
	c.VapiSummary = rawJSON(summary)
	if success.Valid {
		b := success.Bool
		c.VapiSuccessEvaluation = &b
	}
	c.VapiAnalysis = rawJSON(analysis)
	c.VapiRecordingURL = vapiRecording.String
	c.VapiStereoRecordingURL = vapiStereo.String
	if cost.Valid {
		v := cost.Float64
		c.VapiCost = &v
	}
	if vapiDur.Valid {
		v := int(vapiDur.Int64)
		c.VapiDurationSeconds = &v
	}
	return c, nil
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}

func (r *PostgresRepo) GetByCallID(ctx context.Context, callID string) (CallLog, error) {
	q := `SELECT ` + callLogColumns + ` FROM call_logs WHERE call_id = $1`
	c, err := scanCallLog(r.db.QueryRowContext(ctx, q, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, err
	}
	return c, nil
}

func (r *PostgresRepo) Get(ctx context.Context, scope tenancy.Scope, id int64) (CallLog, error) {
	if !scope.Valid() {
		return CallLog{}, tenancy.ErrInvalidScope
	}
	q := `SELECT ` + callLogColumns + ` FROM call_logs WHERE dealership_id = $1 AND id = $2`
	c, err := scanCallLog(r.db.QueryRowContext(ctx, q, scope.DealershipID(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CallLog{}, ErrNotFound
		}
		return CallLog{}, err
	}
	return c, nil
}

func (r *PostgresRepo) List(ctx context.Context, scope tenancy.Scope, f ListFilter) (Page, error) {
	if !scope.Valid() {
		return Page{}, tenancy.ErrInvalidScope
	}
	f = f.withDefaults()

	var dept sql.NullString
	if f.Department != nil {
		dept = sql.NullString{String: string(*f.Department), Valid: true}
	}

	var total int
	const countQ = `
SELECT count(*) FROM call_logs
WHERE dealership_id = $1 AND ($2::text IS NULL OR department = $2)
`
	if err := r.db.QueryRowContext(ctx, countQ, scope.DealershipID(), dept).Scan(&total); err != nil {
		return Page{}, err
	}

	q := `SELECT ` + callLogColumns + `
FROM call_logs
WHERE dealership_id = $1 AND ($2::text IS NULL OR department = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`
	items, err := r.query(ctx, q, scope.DealershipID(), dept, f.PerPage, f.offset())
	if err != nil {
		return Page{}, err
	}
	return newPage(items, total, f), nil
}

func (r *PostgresRepo) Recent(ctx context.Context, scope tenancy.Scope, n int) ([]CallLog, error) {
	if !scope.Valid() {
		return nil, tenancy.ErrInvalidScope
	}
	q := `SELECT ` + callLogColumns + `
FROM call_logs
WHERE dealership_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`
	return r.query(ctx, q, scope.DealershipID(), n)
}

func (r *PostgresRepo) Aggregate(ctx context.Context, scope tenancy.Scope) (Aggregate, error) {
	if !scope.Valid() {
		return Aggregate{}, tenancy.ErrInvalidScope
	}
	const q = `
SELECT
  count(*),
  count(*) FILTER (WHERE status = 'completed'),
  count(*) FILTER (WHERE status = 'in-progress'),
  count(*) FILTER (WHERE status = 'failed'),
  COALESCE(sum(duration), 0),
  count(*) FILTER (WHERE department = 'sales'),
  COALESCE(sum(duration) FILTER (WHERE department = 'sales'), 0),
  count(*) FILTER (WHERE department = 'service'),
  COALESCE(sum(duration) FILTER (WHERE department = 'service'), 0),
  count(*) FILTER (WHERE department = 'parts'),
  COALESCE(sum(duration) FILTER (WHERE department = 'parts'), 0)
FROM call_logs
WHERE dealership_id = $1
`
	var (
		agg                  Aggregate
		sales, service, part DepartmentTotals
	)
	err := r.db.QueryRowContext(ctx, q, scope.DealershipID()).Scan(
		&agg.Total,
		&agg.Completed,
		&agg.InProgress,
		&agg.Failed,
		&agg.DurationSeconds,
		&sales.Calls,
		&sales.DurationSeconds,
		&service.Calls,
		&service.DurationSeconds,
		&part.Calls,
		&part.DurationSeconds,
	)
	if err != nil {
		return Aggregate{}, err
	}
	agg.ByDepartment = map[Department]DepartmentTotals{
		DepartmentSales:   sales,
		DepartmentService: service,
		DepartmentParts:   part,
	}
	return agg, nil
}

func (r *PostgresRepo) query(ctx context.Context, q string, args ...any) ([]CallLog, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]CallLog, 0)
	for rows.Next() {
		c, err := scanCallLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
