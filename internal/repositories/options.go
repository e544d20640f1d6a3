package repositories

import (
	"context"
	"fmt"

	"github.com/kinship/backend/internal/db"
)

// PostgresOptionStore keeps named settings blobs, such as the rewrite slugs
// and directory page assignments.
type PostgresOptionStore struct {
	pool db.Pool
}

// NewPostgresOptionStore constructs an option store backed by PostgreSQL.
func NewPostgresOptionStore(pool db.Pool) *PostgresOptionStore {
	return &PostgresOptionStore{pool: pool}
}

// GetOption returns the stored value or ErrNotFound.
func (s *PostgresOptionStore) GetOption(ctx context.Context, name string) ([]byte, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var value []byte
	if err := conn.QueryRow(ctx, `SELECT value FROM options WHERE name = $1`, name).Scan(&value); err != nil {
		return nil, translate(err, "select option")
	}
	return value, nil
}

// SetOption creates or replaces an option.
func (s *PostgresOptionStore) SetOption(ctx context.Context, name string, value []byte) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO options (name, value, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (name)
        DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at
    `, name, value)
	return translate(err, "upsert option")
}
