package approvalsvc

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/acctkernel/ledger/domain/approval"
	"github.com/acctkernel/ledger/ledgererrors"
)

// MemoryStore is an in-process fake for logic-only tests.
type MemoryStore struct {
	mu        sync.Mutex
	requests  map[string]approval.Request
	decisions map[string][]approval.Decision
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests:  make(map[string]approval.Request),
		decisions: make(map[string][]approval.Decision),
	}
}

func (s *MemoryStore) Insert(_ context.Context, _ *sql.Tx, req approval.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.RequestID] = req
	return nil
}

func (s *MemoryStore) LockForDecision(_ context.Context, _ *sql.Tx, requestID string) (approval.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return approval.Request{}, ledgererrors.NotFound("approval_request", requestID)
	}
	return req, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, _ *sql.Tx, requestID string, status approval.Status, decidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[requestID]
	if !ok {
		return ledgererrors.NotFound("approval_request", requestID)
	}
	req.Status = status
	req.DecidedAt = decidedAt
	s.requests[requestID] = req
	return nil
}

func (s *MemoryStore) InsertDecision(_ context.Context, _ *sql.Tx, d approval.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decisions[d.RequestID] = append(s.decisions[d.RequestID], d)
	return nil
}

func (s *MemoryStore) DecisionCount(_ context.Context, _ *sql.Tx, requestID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.decisions[requestID]), nil
}
