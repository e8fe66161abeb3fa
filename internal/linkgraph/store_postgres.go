package linkgraph

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/acctkernel/ledger/domain/link"
)

// PostgresStore implements Store against an economic_links table.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed link graph store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ChildCount(ctx context.Context, tx *sql.Tx, parentRef string, linkType link.Type) (int, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM economic_links WHERE parent_ref = $1 AND link_type = $2
	`, parentRef, linkType)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// Ancestors performs an iterative child->parent walk. Postgres recursive
// CTEs would be the natural fit in production; this keeps the traversal
// explicit in Go so the cycle-prevention logic is easy to audit.
func (s *PostgresStore) Ancestors(ctx context.Context, tx *sql.Tx, ref string) ([]string, error) {
	var ancestors []string
	frontier := []string{ref}
	visited := map[string]bool{ref: true}
	for len(frontier) > 0 {
		rows, err := tx.QueryContext(ctx, `
			SELECT parent_ref FROM economic_links WHERE child_ref = ANY($1)
		`, pq.Array(frontier))
		if err != nil {
			return nil, err
		}
		var next []string
		for rows.Next() {
			var parent string
			if err := rows.Scan(&parent); err != nil {
				rows.Close()
				return nil, err
			}
			if !visited[parent] {
				visited[parent] = true
				ancestors = append(ancestors, parent)
				next = append(next, parent)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		frontier = next
	}
	return ancestors, nil
}

func (s *PostgresStore) Insert(ctx context.Context, tx *sql.Tx, l link.Link) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO economic_links (link_id, parent_ref, child_ref, link_type, creating_event_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.LinkID, l.ParentRef, l.ChildRef, l.LinkType, l.CreatingEventID, l.CreatedAt)
	return err
}
