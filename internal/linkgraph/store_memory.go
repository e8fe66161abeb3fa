package linkgraph

import (
	"context"
	"database/sql"
	"sync"

	"github.com/acctkernel/ledger/domain/link"
)

// MemoryStore is an in-process fake for logic-only tests.
type MemoryStore struct {
	mu    sync.Mutex
	links []link.Link
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) ChildCount(_ context.Context, _ *sql.Tx, parentRef string, linkType link.Type) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, l := range s.links {
		if l.ParentRef == parentRef && l.LinkType == linkType {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Ancestors(_ context.Context, _ *sql.Tx, ref string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ancestors []string
	visited := map[string]bool{ref: true}
	frontier := []string{ref}
	for len(frontier) > 0 {
		var next []string
		for _, l := range s.links {
			for _, f := range frontier {
				if l.ChildRef == f && !visited[l.ParentRef] {
					visited[l.ParentRef] = true
					ancestors = append(ancestors, l.ParentRef)
					next = append(next, l.ParentRef)
				}
			}
		}
		frontier = next
	}
	return ancestors, nil
}

func (s *MemoryStore) Insert(_ context.Context, _ *sql.Tx, l link.Link) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links = append(s.links, l)
	return nil
}
