package tenancy

import (
	"context"
	"database/sql"
	"errors"

	"dealer-crm/pkg/utils"
)

// PostgresRepo assumes the schema in internal/database/migrations.
// Dealership deletion relies on the FKs: ON DELETE CASCADE for owned records and
// ON DELETE SET NULL for call_logs.dealership_id.
// Detachers still run after a delete for state the database does not hold.
type PostgresRepo struct {
	db        *sql.DB
	detachers []Detacher
}

func NewPostgresRepo(db *sql.DB, detachers ...Detacher) *PostgresRepo {
	return &PostgresRepo{db: db, detachers: detachers}
}

const dealershipColumns = `id, COALESCE(tenant_id::text, ''), name, address, city, state, zip_code, phone, email, website, created_at, updated_at`

func scanDealership(row interface{ Scan(...any) error }) (Dealership, error) {
	var d Dealership
	err := row.Scan(
		&d.ID,
		&d.TenantID,
		&d.Name,
		&d.Address,
		&d.City,
		&d.State,
		&d.ZipCode,
		&d.Phone,
		&d.Email,
		&d.Website,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	return d, err
}

func (r *PostgresRepo) CreateTenant(ctx context.Context, t Tenant) (Tenant, error) {
	const q = `
INSERT INTO tenants (id, name)
VALUES (COALESCE(NULLIF($1, '')::uuid, gen_random_uuid()), $2)
RETURNING id::text, name, created_at
`
	var out Tenant
	if err := r.db.QueryRowContext(ctx, q, t.ID, t.Name).Scan(&out.ID, &out.Name, &out.CreatedAt); err != nil {
		return Tenant{}, err
	}
	return out, nil
}

func (r *PostgresRepo) Create(ctx context.Context, d Dealership) (Dealership, error) {
	if err := validateDealership(d); err != nil {
		return Dealership{}, err
	}
	const q = `
INSERT INTO dealerships (tenant_id, name, address, city, state, zip_code, phone, email, website)
VALUES (NULLIF($1, '')::uuid, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + dealershipColumns
	return scanDealership(r.db.QueryRowContext(ctx, q,
		d.TenantID,
		d.Name,
		d.Address,
		d.City,
		d.State,
		d.ZipCode,
		d.Phone,
		d.Email,
		d.Website,
	))
}

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Dealership, error) {
	q := `SELECT ` + dealershipColumns + ` FROM dealerships WHERE id = $1`
	d, err := scanDealership(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Dealership{}, ErrNotFound
		}
		return Dealership{}, err
	}
	return d, nil
}

func (r *PostgresRepo) ListByTenant(ctx context.Context, tenantID string) ([]Dealership, error) {
	q := `SELECT ` + dealershipColumns + ` FROM dealerships WHERE tenant_id = $1::uuid ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Dealership, 0)
	for rows.Next() {
		d, err := scanDealership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) FindByPhone(ctx context.Context, e164 string) (Dealership, bool, error) {
	if e164 == "" {
		return Dealership{}, false, nil
	}
	q := `SELECT ` + dealershipColumns + ` FROM dealerships WHERE phone = $1 ORDER BY id LIMIT 1`
	d, err := scanDealership(r.db.QueryRowContext(ctx, q, e164))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Dealership{}, false, nil
		}
		return Dealership{}, false, err
	}
	return d, true, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dealerships WHERE id = $1`, id)
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
	for _, d := range r.detachers {
		if err := d.DetachDealership(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresRepo) CreateCustomer(ctx context.Context, c Customer) (Customer, error) {
	const q = `
INSERT INTO customers (dealership_id, first_name, last_name, email, phone, address, city, state, zip_code, notes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at
`
	err := r.db.QueryRowContext(ctx, q,
		c.DealershipID,
		c.FirstName,
		c.LastName,
		utils.NullString(c.Email),
		utils.NullString(c.Phone),
		utils.NullString(c.Address),
		utils.NullString(c.City),
		utils.NullString(c.State),
		utils.NullString(c.ZipCode),
		utils.NullString(c.Notes),
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return Customer{}, err
	}
	return c, nil
}
