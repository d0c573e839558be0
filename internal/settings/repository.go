package settings

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ouptel/ouptel-admin/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for the settings table,
// keyed (group_name, key) with a text value column.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetGroup returns all stored key/value pairs for a group.
func (r *Repository) GetGroup(ctx context.Context, group string) (map[string]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT key, value FROM settings WHERE group_name = $1`, group)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	values := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		values[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

// UpsertFields writes exactly the submitted keys for a group in one
// transaction. Keys not present in fields are left untouched.
func (r *Repository) UpsertFields(ctx context.Context, group string, fields map[string]string) error {
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, key := range keys {
			if _, err := tx.Exec(ctx, `
				INSERT INTO settings (group_name, key, value, updated_at)
				VALUES ($1, $2, $3, NOW())
				ON CONFLICT (group_name, key)
				DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
				group, key, fields[key],
			); err != nil {
				return err
			}
		}
		return nil
	})
}
