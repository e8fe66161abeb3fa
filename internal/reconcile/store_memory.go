package reconcile

import (
	"context"
	"database/sql"
	"sync"

	"github.com/acctkernel/ledger/domain/money"
)

// MemoryStore is an in-process BalanceReader fake for logic-only tests.
// Balances are seeded directly rather than derived from a journal, so it
// exercises the Reconciler's comparison logic without a real store.
type MemoryStore struct {
	mu        sync.Mutex
	subtotals map[string]money.Money
	ctrl      map[string]money.Money
}

// NewMemoryStore constructs an empty in-memory balance reader.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		subtotals: make(map[string]money.Money),
		ctrl:      make(map[string]money.Money),
	}
}

// SeedSubledgerTotal installs the aggregate subledger balance for a
// (subledger_type, currency) pair.
func (s *MemoryStore) SeedSubledgerTotal(subledgerType string, currency money.Currency, amount money.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subtotals[subledgerKey(subledgerType, currency)] = amount
}

// SeedControlTotal installs the GL control account balance for a
// (account_id, currency) pair.
func (s *MemoryStore) SeedControlTotal(controlAccountID string, currency money.Currency, amount money.Money) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctrl[subledgerKey(controlAccountID, currency)] = amount
}

func (s *MemoryStore) SubledgerTotal(_ context.Context, _ *sql.Tx, subledgerType string, currency money.Currency) (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.subtotals[subledgerKey(subledgerType, currency)]; ok {
		return m, nil
	}
	return money.Zero(currency), nil
}

func (s *MemoryStore) ControlTotal(_ context.Context, _ *sql.Tx, controlAccountID string, currency money.Currency) (money.Money, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.ctrl[subledgerKey(controlAccountID, currency)]; ok {
		return m, nil
	}
	return money.Zero(currency), nil
}

func subledgerKey(id string, currency money.Currency) string {
	return id + "|" + string(currency)
}
