package reconcile

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/acctkernel/ledger/domain/money"
)

// PostgresBalanceReader computes running totals from subledger_entries and
// journal_lines, locking the rows it aggregates (SL-G8).
type PostgresBalanceReader struct {
	db *sql.DB
}

// NewPostgresBalanceReader creates a new PostgreSQL-backed balance reader.
func NewPostgresBalanceReader(db *sql.DB) *PostgresBalanceReader {
	return &PostgresBalanceReader{db: db}
}

func (r *PostgresBalanceReader) SubledgerTotal(ctx context.Context, tx *sql.Tx, subledgerType string, currency money.Currency) (money.Money, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN side = 'DEBIT' THEN amount ELSE -amount END), 0)
		FROM subledger_entries
		WHERE subledger_type = $1 AND currency = $2
		FOR UPDATE
	`, subledgerType, currency)
	return scanTotal(row, currency)
}

func (r *PostgresBalanceReader) ControlTotal(ctx context.Context, tx *sql.Tx, controlAccountID string, currency money.Currency) (money.Money, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(CASE WHEN side = 'DEBIT' THEN amount ELSE -amount END), 0)
		FROM journal_lines
		WHERE account_id = $1 AND currency = $2
		FOR UPDATE
	`, controlAccountID, currency)
	return scanTotal(row, currency)
}

func scanTotal(row *sql.Row, currency money.Currency) (money.Money, error) {
	var total decimal.Decimal
	if err := row.Scan(&total); err != nil {
		return money.Money{}, err
	}
	return money.New(total, currency)
}
