package journalwriter

import (
	"context"
	"database/sql"
	"sync"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/journal"
	"github.com/acctkernel/ledger/domain/subledger"
)

// MemoryStore is an in-process fake for logic-only tests.
type MemoryStore struct {
	mu               sync.Mutex
	entriesByEvent   map[string]string
	Entries          []journal.Entry
	SubledgerEntries []subledger.Entry
	TracesByEntry    map[string][]engine.Trace
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entriesByEvent: make(map[string]string),
		TracesByEntry:  make(map[string][]engine.Trace),
	}
}

func (s *MemoryStore) LockExisting(_ context.Context, _ *sql.Tx, eventID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.entriesByEvent[eventID]
	return id, ok, nil
}

func (s *MemoryStore) Persist(_ context.Context, _ *sql.Tx, entry journal.Entry, subEntries []subledger.Entry, traces map[engine.Name]engine.Trace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entriesByEvent[entry.EventID] = entry.EntryID
	s.Entries = append(s.Entries, entry)
	s.SubledgerEntries = append(s.SubledgerEntries, subEntries...)
	for _, t := range traces {
		s.TracesByEntry[entry.EntryID] = append(s.TracesByEntry[entry.EntryID], t)
	}
	return nil
}
