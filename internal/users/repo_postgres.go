package users

import (
	"context"
	"database/sql"
	"errors"

	"dealer-crm/pkg/utils"
)

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Create(ctx context.Context, u User) (User, error) {
	if err := validate(u); err != nil {
		return User{}, err
	}
	const q = `
INSERT INTO users (dealership_id, tenant_id, name, email, role, password_hash)
VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6)
RETURNING id::text, created_at
`
	u.Email = normalizeEmail(u.Email)
	err := r.db.QueryRowContext(ctx, q, u.DealershipID, u.TenantID, u.Name, u.Email, u.Role, u.PasswordHash).
		Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if utils.IsUniqueViolation(err, "users_email_key") {
			return User{}, ErrEmailTaken
		}
		return User{}, err
	}
	return u, nil
}

func (r *PostgresRepo) FindByEmail(ctx context.Context, email string) (User, error) {
	const q = `
SELECT id::text, dealership_id, COALESCE(tenant_id::text, ''), name, email, role, password_hash, created_at
FROM users
WHERE email = $1
`
	var u User
	err := r.db.QueryRowContext(ctx, q, normalizeEmail(email)).Scan(
		&u.ID,
		&u.DealershipID,
		&u.TenantID,
		&u.Name,
		&u.Email,
		&u.Role,
		&u.PasswordHash,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}
	return u, nil
}
