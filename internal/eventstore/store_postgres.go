package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/acctkernel/ledger/domain/event"
)

// PostgresStore implements Store against an events table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, evt event.Event) error {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events
			(event_id, event_type, schema_version, payload, payload_hash, actor_id, producer,
			 occurred_at, effective_date, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (event_id) DO NOTHING
	`, evt.EventID, evt.EventType, evt.SchemaVersion, payload, evt.PayloadHash[:], evt.ActorID, evt.Producer,
		evt.OccurredAt, evt.EffectiveDate, evt.IdempotencyKey)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, eventID string) (event.Event, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, event_type, schema_version, payload, payload_hash, actor_id, producer,
		       occurred_at, effective_date, idempotency_key
		FROM events WHERE event_id = $1
	`, eventID)

	var evt event.Event
	var payload, payloadHash []byte
	err := row.Scan(&evt.EventID, &evt.EventType, &evt.SchemaVersion, &payload, &payloadHash, &evt.ActorID,
		&evt.Producer, &evt.OccurredAt, &evt.EffectiveDate, &evt.IdempotencyKey)
	if err == sql.ErrNoRows {
		return event.Event{}, false, nil
	}
	if err != nil {
		return event.Event{}, false, err
	}
	if err := json.Unmarshal(payload, &evt.Payload); err != nil {
		return event.Event{}, false, err
	}
	copy(evt.PayloadHash[:], payloadHash)
	return evt, true, nil
}
