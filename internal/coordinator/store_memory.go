package coordinator

import (
	"context"
	"database/sql"
	"sync"

	"github.com/acctkernel/ledger/domain/outcome"
)

// MemoryOutcomeStore is an in-process fake for logic-only tests.
type MemoryOutcomeStore struct {
	mu       sync.Mutex
	outcomes map[string]outcome.Outcome
}

// NewMemoryOutcomeStore constructs an empty in-memory store.
func NewMemoryOutcomeStore() *MemoryOutcomeStore {
	return &MemoryOutcomeStore{outcomes: make(map[string]outcome.Outcome)}
}

func (s *MemoryOutcomeStore) Get(_ context.Context, eventID string) (outcome.Outcome, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[eventID]
	return o, ok, nil
}

func (s *MemoryOutcomeStore) Upsert(_ context.Context, _ *sql.Tx, o outcome.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[o.EventID] = o
	return nil
}
