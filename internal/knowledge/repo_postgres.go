package knowledge

import (
	"context"
	"database/sql"
	"errors"

	"dealer-crm/internal/tenancy"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const kbColumns = `id, dealership_id, COALESCE(user_id::text, ''), name, description, source_type, source_url, content, file_path, created_at, updated_at`

func scanKnowledgeBase(row interface{ Scan(...any) error }) (KnowledgeBase, error) {
	var kb KnowledgeBase
	err := row.Scan(
		&kb.ID,
		&kb.DealershipID,
		&kb.UserID,
		&kb.Name,
		&kb.Description,
		&kb.SourceType,
		&kb.SourceURL,
		&kb.Content,
		&kb.FilePath,
		&kb.CreatedAt,
		&kb.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return KnowledgeBase{}, ErrNotFound
	}
	return kb, err
}

func (r *PostgresRepo) Create(ctx context.Context, kb KnowledgeBase) (KnowledgeBase, error) {
	if kb.DealershipID <= 0 {
		return KnowledgeBase{}, tenancy.ErrInvalidScope
	}
	const q = `
INSERT INTO knowledge_bases (dealership_id, user_id, name, description, source_type, source_url, content, file_path)
VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8)
RETURNING ` + kbColumns
	return scanKnowledgeBase(r.db.QueryRowContext(ctx, q,
		kb.DealershipID,
		kb.UserID,
		kb.Name,
		kb.Description,
		string(kb.SourceType),
		kb.SourceURL,
		kb.Content,
		kb.FilePath,
	))
}

func (r *PostgresRepo) SetFilePath(ctx context.Context, scope tenancy.Scope, id int64, path string) (KnowledgeBase, error) {
	if !scope.Valid() {
		return KnowledgeBase{}, tenancy.ErrInvalidScope
	}
	const q = `
UPDATE knowledge_bases SET file_path = $3, updated_at = now()
WHERE dealership_id = $1 AND id = $2
RETURNING ` + kbColumns
	return scanKnowledgeBase(r.db.QueryRowContext(ctx, q, scope.DealershipID(), id, path))
}

func (r *PostgresRepo) Get(ctx context.Context, scope tenancy.Scope, id int64) (KnowledgeBase, error) {
	if !scope.Valid() {
		return KnowledgeBase{}, tenancy.ErrInvalidScope
	}
	q := `SELECT ` + kbColumns + ` FROM knowledge_bases WHERE dealership_id = $1 AND id = $2`
	return scanKnowledgeBase(r.db.QueryRowContext(ctx, q, scope.DealershipID(), id))
}

func (r *PostgresRepo) Delete(ctx context.Context, scope tenancy.Scope, id int64) error {
	if !scope.Valid() {
		return tenancy.ErrInvalidScope
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM knowledge_bases WHERE dealership_id = $1 AND id = $2`, scope.DealershipID(), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, scope tenancy.Scope, page, perPage int) (Page, error) {
	if !scope.Valid() {
		return Page{}, tenancy.ErrInvalidScope
	}
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT count(*) FROM knowledge_bases WHERE dealership_id = $1`, scope.DealershipID(),
	).Scan(&total); err != nil {
		return Page{}, err
	}

	q := `SELECT ` + kbColumns + ` FROM knowledge_bases
WHERE dealership_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, q, scope.DealershipID(), perPage, (page-1)*perPage)
	if err != nil {
		return Page{}, err
	}
	defer rows.Close()

	var items []KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return Page{}, err
		}
		items = append(items, kb)
	}
	if err := rows.Err(); err != nil {
		return Page{}, err
	}
	return newPage(items, total, page, perPage), nil
}
