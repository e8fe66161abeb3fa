package tracesel

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/shopspring/decimal"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/journal"
	"github.com/acctkernel/ledger/domain/money"
	"github.com/acctkernel/ledger/domain/outcome"
)

// PostgresReader implements Reader (and the router's WorkQueueStore) over
// interpretation_outcomes, journal_entries/journal_lines, and
// engine_traces. It never opens a transaction of its own — every query
// here reads committed state, which is all a read-only reporting surface
// needs (spec.md §4 "Trace selector").
type PostgresReader struct {
	db *sql.DB
}

// NewPostgresReader creates a new PostgreSQL-backed trace/reporting reader.
func NewPostgresReader(db *sql.DB) *PostgresReader {
	return &PostgresReader{db: db}
}

func (r *PostgresReader) OutcomeByEvent(ctx context.Context, eventID string) (outcome.Outcome, bool, error) {
	row := r.db.QueryRowContext(ctx, `
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

// ListPending returns every outcome awaiting operator attention: BLOCKED
// (pending approval) and FAILED-but-retryable (SPEC_FULL.md §3 "GET
// /work-queue"). ABANDONED and terminal states never appear here.
func (r *PostgresReader) ListPending(ctx context.Context) ([]outcome.Outcome, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT event_id, status, policy_name, journal_entry, failure_type, failure_code, failure_detail,
		       retry_count, max_retries, created_at, updated_at
		FROM interpretation_outcomes
		WHERE status IN ($1, $2)
		ORDER BY created_at ASC
	`, outcome.StatusBlocked, outcome.StatusFailed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []outcome.Outcome
	for rows.Next() {
		var o outcome.Outcome
		var failureDetail []byte
		if err := rows.Scan(&o.EventID, &o.Status, &o.PolicyName, &o.JournalEntry, &o.FailureType, &o.FailureCode,
			&failureDetail, &o.RetryCount, &o.MaxRetries, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		if len(failureDetail) > 0 {
			if err := json.Unmarshal(failureDetail, &o.FailureDetail); err != nil {
				return nil, err
			}
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PostgresReader) TracesByEntry(ctx context.Context, entryID string) ([]engine.Trace, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT engine_name, params, result_values, duration_ns
		FROM engine_traces WHERE journal_entry_id = $1
		ORDER BY engine_name ASC
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Trace
	for rows.Next() {
		var t engine.Trace
		var params, values []byte
		if err := rows.Scan(&t.Engine, &params, &values, &t.DurationNS); err != nil {
			return nil, err
		}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &t.Params); err != nil {
				return nil, err
			}
		}
		if len(values) > 0 {
			if err := json.Unmarshal(values, &t.Result.Values); err != nil {
				return nil, err
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresReader) EntriesInPeriod(ctx context.Context, periodCode string) ([]journal.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entry_id, seq, event_id, policy_name, policy_version, fiscal_period,
		       effective_date, posted_at, idempotency_key
		FROM journal_entries WHERE fiscal_period = $1
		ORDER BY seq ASC
	`, periodCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanEntriesWithLines(ctx, rows)
}

func (r *PostgresReader) AllEntriesOrderedBySeq(ctx context.Context) ([]journal.Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT entry_id, seq, event_id, policy_name, policy_version, fiscal_period,
		       effective_date, posted_at, idempotency_key
		FROM journal_entries
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanEntriesWithLines(ctx, rows)
}

func (r *PostgresReader) scanEntriesWithLines(ctx context.Context, rows *sql.Rows) ([]journal.Entry, error) {
	var entries []journal.Entry
	for rows.Next() {
		var e journal.Entry
		if err := rows.Scan(&e.EntryID, &e.Seq, &e.EventID, &e.PolicyName, &e.PolicyVersion,
			&e.FiscalPeriod, &e.EffectiveDate, &e.PostedAt, &e.IdempotencyKey); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range entries {
		lines, err := r.linesForEntry(ctx, entries[i].EntryID)
		if err != nil {
			return nil, err
		}
		entries[i].Lines = lines
	}
	return entries, nil
}

func (r *PostgresReader) linesForEntry(ctx context.Context, entryID string) ([]journal.Line, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT line_no, account_id, ledger_id, side, amount, currency, role, is_rounding
		FROM journal_lines WHERE entry_id = $1
		ORDER BY line_no ASC
	`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []journal.Line
	for rows.Next() {
		var l journal.Line
		var amount decimal.Decimal
		var currency money.Currency
		if err := rows.Scan(&l.LineNo, &l.AccountID, &l.LedgerID, &l.Side, &amount, &currency, &l.Role, &l.IsRounding); err != nil {
			return nil, err
		}
		l.Amount = money.Money{Amount: amount, Currency: currency}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}
