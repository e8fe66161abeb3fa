// Package linkgraph establishes and traverses economic links between
// journal entries (spec.md §4.8). Establish enforces L2 (no self-links),
// L3 (acyclicity), L4 (creating event required), and L5 (type
// admissibility); at-most-one-child types are enforced via a row check on
// the store.
package linkgraph

import (
	"context"
	"database/sql"
	"time"

	"github.com/acctkernel/ledger/domain/link"
	"github.com/acctkernel/ledger/ledgererrors"
)

// Store persists links and answers the graph-shape questions Establish
// needs: existing children of a given type, and ancestor walk for cycle
// detection.
type Store interface {
	// ChildCount returns how many existing links of linkType already have
	// parentRef as their parent (for AtMostOneChild enforcement).
	ChildCount(ctx context.Context, tx *sql.Tx, parentRef string, linkType link.Type) (int, error)
	// Ancestors walks child->parent edges starting at ref and returns every
	// ref reachable, for L3 cycle detection (would adding parentRef->childRef
	// close a cycle back to parentRef).
	Ancestors(ctx context.Context, tx *sql.Tx, ref string) ([]string, error)
	Insert(ctx context.Context, tx *sql.Tx, l link.Link) error
}

// Graph drives link establishment.
type Graph struct {
	store Store
}

// New constructs a Graph.
func New(store Store) *Graph {
	return &Graph{store: store}
}

// Establish validates and persists a new link from parentRef to childRef.
func (g *Graph) Establish(ctx context.Context, tx *sql.Tx, parentRef, childRef string, linkType link.Type, parentKind, childKind, creatingEventID string) (link.Link, error) {
	if parentRef == childRef {
		return link.Link{}, ledgererrors.LinkSelf(parentRef)
	}
	if !link.TypeAdmissible(linkType, parentKind, childKind) {
		return link.Link{}, ledgererrors.InvalidLinkType(string(linkType), parentKind, childKind)
	}
	if creatingEventID == "" {
		return link.Link{}, ledgererrors.InvalidInput("creating_event_id", "required (L4)")
	}

	if link.AtMostOneChild(linkType) {
		count, err := g.store.ChildCount(ctx, tx, parentRef, linkType)
		if err != nil {
			return link.Link{}, ledgererrors.Internal("linkgraph: child count failed", err)
		}
		if count > 0 {
			return link.Link{}, ledgererrors.InvalidLinkType(string(linkType), parentKind, childKind).
				WithDetails("reason", "parent already has a child of this type")
		}
	}

	// L3: adding parentRef -> childRef must not close a cycle. A cycle
	// would exist if childRef is already an ancestor of parentRef (i.e.
	// walking child->parent from parentRef reaches childRef).
	ancestors, err := g.store.Ancestors(ctx, tx, parentRef)
	if err != nil {
		return link.Link{}, ledgererrors.Internal("linkgraph: ancestor walk failed", err)
	}
	for _, a := range ancestors {
		if a == childRef {
			return link.Link{}, ledgererrors.LinkCycle(parentRef, childRef)
		}
	}

	l := link.Link{
		LinkID:          parentRef + "->" + childRef + ":" + string(linkType),
		ParentRef:       parentRef,
		ChildRef:        childRef,
		LinkType:        linkType,
		CreatingEventID: creatingEventID,
		CreatedAt:       time.Now().UTC(),
	}
	if err := g.store.Insert(ctx, tx, l); err != nil {
		return link.Link{}, ledgererrors.Internal("linkgraph: insert failed", err)
	}
	return l, nil
}
