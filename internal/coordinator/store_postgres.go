package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/acctkernel/ledger/domain/outcome"
)

// PostgresOutcomeStore implements OutcomeStore against an
// interpretation_outcomes table.
type PostgresOutcomeStore struct {
	db *sql.DB
}

// NewPostgresOutcomeStore creates a new PostgreSQL-backed outcome store.
func NewPostgresOutcomeStore(db *sql.DB) *PostgresOutcomeStore {
	return &PostgresOutcomeStore{db: db}
}

func (s *PostgresOutcomeStore) Get(ctx context.Context, eventID string) (outcome.Outcome, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT event_id, status, policy_name, journal_entry, failure_type, failure_code, failure_detail,
		       retry_count, max_retries, created_at, updated_at
		FROM interpretation_outcomes WHERE event_id = $1
	`, eventID)

	var o outcome.Outcome
	var failureDetail []byte
	err := row.Scan(&o.EventID, &o.Status, &o.PolicyName, &o.JournalEntry, &o.FailureType, &o.FailureCode,
		&failureDetail, &o.RetryCount, &o.MaxRetries, &o.CreatedAt, &o.UpdatedAt)
	if err == sql.ErrNoRows {
		return outcome.Outcome{}, false, nil
	}
	if err != nil {
		return outcome.Outcome{}, false, err
	}
	if len(failureDetail) > 0 {
		if err := json.Unmarshal(failureDetail, &o.FailureDetail); err != nil {
			return outcome.Outcome{}, false, err
		}
	}
	return o, true, nil
}

func (s *PostgresOutcomeStore) Upsert(ctx context.Context, tx *sql.Tx, o outcome.Outcome) error {
	detail, err := json.Marshal(o.FailureDetail)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO interpretation_outcomes
			(event_id, status, policy_name, journal_entry, failure_type, failure_code, failure_detail,
			 retry_count, max_retries, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status,
			policy_name = EXCLUDED.policy_name,
			journal_entry = EXCLUDED.journal_entry,
			failure_type = EXCLUDED.failure_type,
			failure_code = EXCLUDED.failure_code,
			failure_detail = EXCLUDED.failure_detail,
			retry_count = EXCLUDED.retry_count,
			max_retries = EXCLUDED.max_retries,
			updated_at = EXCLUDED.updated_at
	`, o.EventID, o.Status, o.PolicyName, o.JournalEntry, o.FailureType, o.FailureCode, detail,
		o.RetryCount, o.MaxRetries, o.CreatedAt, o.UpdatedAt)
	return err
}
