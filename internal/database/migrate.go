package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"dealer-crm/pkg/utils"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

type Migration struct {
	Version string
	SQL     string
}

// Migrations returns the embedded schema files in version order.
func Migrations() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return nil, err
	}
	out := make([]Migration, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		b, err := migrationFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate applies pending migrations, each in its own transaction, and returns the
// versions it applied.
func Migrate(ctx context.Context, db *sql.DB) ([]string, error) {
	const bootstrap = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`
	if _, err := db.ExecContext(ctx, bootstrap); err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	ms, err := Migrations()
	if err != nil {
		return nil, err
	}

	applied := make([]string, 0)
	for _, m := range ms {
		var done bool
		err := utils.WithTx(ctx, db, nil, func(ctx context.Context, tx *sql.Tx) error {
			// Serialize concurrent migrators.
			if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(727001)`); err != nil {
				return err
			}
			var n int
			if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE version = $1`, m.Version).Scan(&n); err != nil {
				return err
			}
			if n > 0 {
				done = true
				return nil
			}
			if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return applied, fmt.Errorf("migration %s: %w", m.Version, err)
		}
		if !done {
			applied = append(applied, m.Version)
		}
	}
	return applied, nil
}
