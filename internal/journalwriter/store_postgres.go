package journalwriter

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/journal"
	"github.com/acctkernel/ledger/domain/subledger"
)

// PostgresStore implements Store against journal_entries/journal_lines and
// subledger_entries tables.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed journal writer store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) LockExisting(ctx context.Context, tx *sql.Tx, eventID string) (string, bool, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT entry_id FROM journal_entries WHERE event_id = $1 FOR UPDATE
	`, eventID)
	var entryID string
	err := row.Scan(&entryID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entryID, true, nil
}

func (s *PostgresStore) Persist(ctx context.Context, tx *sql.Tx, entry journal.Entry, subEntries []subledger.Entry, traces map[engine.Name]engine.Trace) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO journal_entries
			(entry_id, seq, event_id, policy_name, policy_version, fiscal_period, effective_date, posted_at, idempotency_key, snapshot_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.EntryID, entry.Seq, entry.EventID, entry.PolicyName, entry.PolicyVersion,
		entry.FiscalPeriod, entry.EffectiveDate, entry.PostedAt, entry.IdempotencyKey, entry.SnapshotHash[:])
	if err != nil {
		return err
	}

	for _, line := range entry.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO journal_lines
				(entry_id, line_no, account_id, ledger_id, side, amount, currency, role, is_rounding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, entry.EntryID, line.LineNo, line.AccountID, line.LedgerID, line.Side,
			line.Amount.Amount.String(), line.Amount.Currency, line.Role, line.IsRounding)
		if err != nil {
			return err
		}
	}

	for _, se := range subEntries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO subledger_entries
				(subledger_entry_id, subledger_type, journal_entry_id, line_no, amount, currency, side, recorded_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, se.SubledgerEntryID, se.SubledgerType, se.JournalEntryID, se.LineNo,
			se.Amount.Amount.String(), se.Amount.Currency, se.Side, se.RecordedAt)
		if err != nil {
			return err
		}
	}

	for _, t := range traces {
		values, err := json.Marshal(t.Result.Values)
		if err != nil {
			return err
		}
		params, err := json.Marshal(t.Params)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO engine_traces
				(journal_entry_id, engine_name, params, result_values, duration_ns)
			VALUES ($1, $2, $3, $4, $5)
		`, entry.EntryID, t.Engine, params, values, t.DurationNS); err != nil {
			return err
		}
	}

	return nil
}
