package ingest

import (
	"context"
	"database/sql"
)

// PostgresIdempotencyStore implements IdempotencyStore against an
// idempotency_keys table with a unique index on idempotency_key.
type PostgresIdempotencyStore struct {
	db *sql.DB
}

// NewPostgresIdempotencyStore creates a new PostgreSQL-backed idempotency store.
func NewPostgresIdempotencyStore(db *sql.DB) *PostgresIdempotencyStore {
	return &PostgresIdempotencyStore{db: db}
}

func (s *PostgresIdempotencyStore) ClaimOrGet(ctx context.Context, tx *sql.Tx, idempotencyKey, eventID string) (string, bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, event_id)
		VALUES ($1, $2)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, idempotencyKey, eventID)
	if err != nil {
		return "", false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", false, err
	}
	if affected == 1 {
		return eventID, true, nil
	}

	row := tx.QueryRowContext(ctx, `
		SELECT event_id FROM idempotency_keys WHERE idempotency_key = $1
	`, idempotencyKey)
	var existing string
	if err := row.Scan(&existing); err != nil {
		return "", false, err
	}
	return existing, false, nil
}
