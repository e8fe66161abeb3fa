package period

import (
	"context"
	"database/sql"
	"time"

	domperiod "github.com/acctkernel/ledger/domain/period"
)

// PostgresStore implements Store against a fiscal_periods table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed period store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Get(ctx context.Context, code string) (domperiod.Period, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT code, start_date, end_date, status, allow_adjustments, closed_at
		FROM fiscal_periods WHERE code = $1
	`, code)
	return scanPeriod(row)
}

func (s *PostgresStore) LockForClose(ctx context.Context, tx *sql.Tx, code string) (domperiod.Period, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT code, start_date, end_date, status, allow_adjustments, closed_at
		FROM fiscal_periods WHERE code = $1 FOR UPDATE
	`, code)
	return scanPeriod(row)
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tx *sql.Tx, code string, status domperiod.Status, allowAdjustments bool, closedAt time.Time) error {
	var closedAtArg interface{}
	if !closedAt.IsZero() {
		closedAtArg = closedAt
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE fiscal_periods SET status = $2, allow_adjustments = $3, closed_at = $4 WHERE code = $1
	`, code, status, allowAdjustments, closedAtArg)
	return err
}

func (s *PostgresStore) ListOpenBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT code FROM fiscal_periods WHERE status = $1 AND end_date <= $2 ORDER BY end_date ASC
	`, domperiod.StatusOpen, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, rows.Err()
}

type scannable interface {
	Scan(dest ...interface{}) error
}

func scanPeriod(row scannable) (domperiod.Period, error) {
	var p domperiod.Period
	var closedAt sql.NullTime
	if err := row.Scan(&p.Code, &p.StartDate, &p.EndDate, &p.Status, &p.AllowAdjustments, &closedAt); err != nil {
		return domperiod.Period{}, err
	}
	if closedAt.Valid {
		p.ClosedAt = closedAt.Time
	}
	return p, nil
}
