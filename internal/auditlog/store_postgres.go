package auditlog

import (
	"context"
	"database/sql"

	"github.com/acctkernel/ledger/domain/audit"
)

// PostgresStore implements Store using PostgreSQL, following the same
// sql.DB-holding, context-first shape as the rest of this kernel's stores.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LastHash(ctx context.Context, tx *sql.Tx) (audit.Event, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT seq, entity_ref, action, payload_hash, prev_hash, event_hash, recorded_at
		FROM audit_events
		ORDER BY seq DESC
		LIMIT 1
	`)
	rec, err := scanAuditEvent(row)
	if err == sql.ErrNoRows {
		return audit.Event{}, false, nil
	}
	if err != nil {
		return audit.Event{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) Insert(ctx context.Context, tx *sql.Tx, rec audit.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (seq, entity_ref, action, payload_hash, prev_hash, event_hash, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.Seq, rec.EntityRef, rec.Action, rec.PayloadHash[:], rec.PrevHash[:], rec.EventHash[:], rec.RecordedAt)
	return err
}

func (s *PostgresStore) All(ctx context.Context) ([]audit.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, entity_ref, action, payload_hash, prev_hash, event_hash, recorded_at
		FROM audit_events
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		rec, err := scanAuditEventRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanAuditEvent(row scannable) (audit.Event, error) {
	var rec audit.Event
	var payloadHash, prevHash, eventHash []byte
	if err := row.Scan(&rec.Seq, &rec.EntityRef, &rec.Action, &payloadHash, &prevHash, &eventHash, &rec.RecordedAt); err != nil {
		return audit.Event{}, err
	}
	copy(rec.PayloadHash[:], payloadHash)
	copy(rec.PrevHash[:], prevHash)
	copy(rec.EventHash[:], eventHash)
	return rec, nil
}

func scanAuditEventRows(rows *sql.Rows) (audit.Event, error) {
	return scanAuditEvent(rows)
}
