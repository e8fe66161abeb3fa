// Package sequence implements the locked-counter monotonic allocator
// (spec.md §4.2 "Sequence service", R9). It is deliberately the only way
// any component obtains a sequence number: MAX(seq)+1 is forbidden because
// it races under concurrent writers (spec.md §5).
package sequence

import (
	"context"
	"database/sql"

	"github.com/acctkernel/ledger/ledgererrors"
)

// Store allocates the next value of a named counter. Implementations must
// take a row-level lock on the counter row and write counter+1 in the same
// transaction the caller supplies; the allocation is only durable when
// that transaction commits.
type Store interface {
	// Next locks counter's row (creating it at 0 if absent), increments it,
	// and returns the new value. Must run inside tx.
	Next(ctx context.Context, tx *sql.Tx, counter string) (int64, error)
}

// PostgresStore implements Store against a `seq_counters(name, value)`
// table using SELECT ... FOR UPDATE.
type PostgresStore struct{}

// NewPostgresStore constructs the Postgres-backed allocator.
func NewPostgresStore() *PostgresStore { return &PostgresStore{} }

func (s *PostgresStore) Next(ctx context.Context, tx *sql.Tx, counter string) (int64, error) {
	var current int64
	err := tx.QueryRowContext(ctx, `SELECT value FROM seq_counters WHERE name = $1 FOR UPDATE`, counter).Scan(&current)
	switch {
	case err == sql.ErrNoRows:
		// First allocation for this counter: insert the row pre-locked by
		// the unique constraint, starting at 1.
		if _, insertErr := tx.ExecContext(ctx,
			`INSERT INTO seq_counters (name, value) VALUES ($1, 1)`, counter); insertErr != nil {
			return 0, ledgererrors.Internal("sequence: failed to seed counter "+counter, insertErr)
		}
		return 1, nil
	case err != nil:
		return 0, ledgererrors.Internal("sequence: failed to lock counter "+counter, err)
	}

	next := current + 1
	if next <= current {
		return 0, ledgererrors.Internal("sequence: counter overflow for "+counter, nil)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE seq_counters SET value = $1 WHERE name = $2`, next, counter); err != nil {
		return 0, ledgererrors.Internal("sequence: failed to advance counter "+counter, err)
	}
	return next, nil
}

// MemoryStore is an in-process Store for unit tests that do not exercise
// Postgres row locking; it is NOT safe across real concurrent transactions
// because it has no notion of rollback. No test in this package exercises
// PostgresStore.
type MemoryStore struct {
	counters map[string]int64
}

// NewMemoryStore constructs an in-memory Store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]int64)}
}

func (s *MemoryStore) Next(_ context.Context, _ *sql.Tx, counter string) (int64, error) {
	s.counters[counter]++
	return s.counters[counter], nil
}
