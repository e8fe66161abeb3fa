package approvalsvc

import (
	"context"
	"database/sql"
	"time"

	"github.com/acctkernel/ledger/domain/approval"
)

// PostgresStore implements Store against approval_requests/approval_decisions.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed approval store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, tx *sql.Tx, req approval.Request) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO approval_requests
			(request_id, event_id, policy_name, policy_version, reason_code, required_role, status, snapshot_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.RequestID, req.EventID, req.PolicyName, req.PolicyVersion, req.ReasonCode,
		req.RequiredRole, req.Status, req.SnapshotHash[:], req.CreatedAt)
	return err
}

func (s *PostgresStore) LockForDecision(ctx context.Context, tx *sql.Tx, requestID string) (approval.Request, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT request_id, event_id, policy_name, policy_version, reason_code, required_role, status, snapshot_hash, created_at
		FROM approval_requests WHERE request_id = $1 FOR UPDATE
	`, requestID)
	var req approval.Request
	var snapshotHash []byte
	if err := row.Scan(&req.RequestID, &req.EventID, &req.PolicyName, &req.PolicyVersion,
		&req.ReasonCode, &req.RequiredRole, &req.Status, &snapshotHash, &req.CreatedAt); err != nil {
		return approval.Request{}, err
	}
	copy(req.SnapshotHash[:], snapshotHash)
	return req, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, tx *sql.Tx, requestID string, status approval.Status, decidedAt time.Time) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE approval_requests SET status = $2, decided_at = $3 WHERE request_id = $1
	`, requestID, status, decidedAt)
	return err
}

func (s *PostgresStore) InsertDecision(ctx context.Context, tx *sql.Tx, d approval.Decision) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO approval_decisions
			(decision_id, request_id, actor_id, outcome, rationale, decision_hash, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.DecisionID, d.RequestID, d.ActorID, d.Outcome, d.Rationale, d.DecisionHash[:], d.DecidedAt)
	return err
}

func (s *PostgresStore) DecisionCount(ctx context.Context, tx *sql.Tx, requestID string) (int, error) {
	row := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM approval_decisions WHERE request_id = $1`, requestID)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
