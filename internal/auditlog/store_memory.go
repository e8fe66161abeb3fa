package auditlog

import (
	"context"
	"database/sql"
	"sync"

	"github.com/acctkernel/ledger/domain/audit"
)

// MemoryStore is an in-process fake Store for pure-logic tests; it ignores
// the *sql.Tx argument entirely (there is no real transaction to honor).
type MemoryStore struct {
	mu      sync.Mutex
	records []audit.Event
}

// NewMemoryStore constructs an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) LastHash(_ context.Context, _ *sql.Tx) (audit.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return audit.Event{}, false, nil
	}
	return s.records[len(s.records)-1], true, nil
}

func (s *MemoryStore) Insert(_ context.Context, _ *sql.Tx, rec audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) All(_ context.Context) ([]audit.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]audit.Event, len(s.records))
	copy(out, s.records)
	return out, nil
}
