package period

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	domperiod "github.com/acctkernel/ledger/domain/period"
	"github.com/acctkernel/ledger/ledgererrors"
)

// MemoryStore is an in-process fake for logic-only tests. It is not safe
// for cross-transaction concurrency semantics (no test in this package
// exercises PostgresStore's row locks), but it enforces the
// same happens-before ordering a single test goroutine needs.
type MemoryStore struct {
	mu      sync.Mutex
	periods map[string]domperiod.Period
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{periods: make(map[string]domperiod.Period)}
}

// Seed installs a period directly, for test setup.
func (s *MemoryStore) Seed(p domperiod.Period) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.periods[p.Code] = p
}

func (s *MemoryStore) Get(_ context.Context, code string) (domperiod.Period, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[code]
	if !ok {
		return domperiod.Period{}, ledgererrors.NotFound("fiscal_period", code)
	}
	return p, nil
}

func (s *MemoryStore) LockForClose(ctx context.Context, _ *sql.Tx, code string) (domperiod.Period, error) {
	return s.Get(ctx, code)
}

func (s *MemoryStore) ListOpenBefore(_ context.Context, cutoff time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var codes []string
	for code, p := range s.periods {
		if p.Status == domperiod.StatusOpen && !p.EndDate.After(cutoff) {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, _ *sql.Tx, code string, status domperiod.Status, allowAdjustments bool, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.periods[code]
	if !ok {
		return ledgererrors.NotFound("fiscal_period", code)
	}
	p.Status = status
	p.AllowAdjustments = allowAdjustments
	p.ClosedAt = closedAt
	s.periods[code] = p
	return nil
}
