package eventstore

import (
	"context"
	"sync"

	"github.com/acctkernel/ledger/domain/event"
)

// MemoryStore is an in-process fake for logic-only tests.
type MemoryStore struct {
	mu     sync.Mutex
	events map[string]event.Event
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]event.Event)}
}

func (s *MemoryStore) Insert(_ context.Context, evt event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.events[evt.EventID]; exists {
		return nil
	}
	s.events[evt.EventID] = evt
	return nil
}

func (s *MemoryStore) Get(_ context.Context, eventID string) (event.Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evt, ok := s.events[eventID]
	return evt, ok, nil
}
