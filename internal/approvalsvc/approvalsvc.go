// Package approvalsvc implements the approval request/decision workflow
// (spec.md §4.11). Raise records a PENDING Request for a BLOCK-disposition
// guard; Decide records an APPROVED or DENIED decision and moves the
// request to that status. Neither re-enters the originating event into the
// coordinator, and the coordinator does not call Raise when it records a
// BLOCKED outcome.
package approvalsvc

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/acctkernel/ledger/domain/approval"
	"github.com/acctkernel/ledger/internal/canon"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
)

// Store persists approval requests and decisions.
type Store interface {
	Insert(ctx context.Context, tx *sql.Tx, req approval.Request) error
	// LockForDecision reads the request row FOR UPDATE so only one
	// decision can ever be recorded against it (AL-1, AL-7).
	LockForDecision(ctx context.Context, tx *sql.Tx, requestID string) (approval.Request, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, requestID string, status approval.Status, decidedAt time.Time) error
	InsertDecision(ctx context.Context, tx *sql.Tx, d approval.Decision) error
	// DecisionCount reports how many decisions already exist for
	// requestID, for AL-7 ("one decision per actor" is subsumed by the
	// row lock above; this guards the decision table's own invariant that
	// a request that is no longer PENDING accepts no further decisions).
	DecisionCount(ctx context.Context, tx *sql.Tx, requestID string) (int, error)
}

// CurrentPolicyVersion resolves the live version of a policy name, for
// AL-5's downgrade check at decision time.
type CurrentPolicyVersion func(policyName string) (int, error)

// Service drives approval request creation and decision recording.
type Service struct {
	store            Store
	currentPolicyVer CurrentPolicyVersion
}

// New constructs a Service.
func New(store Store, currentPolicyVer CurrentPolicyVersion) *Service {
	return &Service{store: store, currentPolicyVer: currentPolicyVer}
}

// Raise creates a PENDING approval request when a guard's BLOCK
// disposition fires (spec.md §4.11).
func (s *Service) Raise(ctx context.Context, tx *sql.Tx, eventID, policyName string, policyVersion int, reasonCode, requiredRole string, snapshotHash canon.Hash) (approval.Request, error) {
	req := approval.Request{
		RequestID:     eventID + ":" + reasonCode,
		EventID:       eventID,
		PolicyName:    policyName,
		PolicyVersion: policyVersion,
		ReasonCode:    reasonCode,
		RequiredRole:  requiredRole,
		Status:        approval.StatusPending,
		SnapshotHash:  snapshotHash,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, tx, req); err != nil {
		return approval.Request{}, ledgererrors.Internal("approvalsvc: failed to insert request", err)
	}
	return req, nil
}

// Decide records actorID's decision on requestID. It enforces AL-1 (only a
// PENDING request may be decided), AL-5 (the policy must not have changed
// version since the request was raised), and AL-7 (exactly one decision
// per request, enforced by the row lock plus a decision-count guard).
func (s *Service) Decide(ctx context.Context, tx *sql.Tx, requestID, actorID string, outcome approval.Status, rationale string) (approval.Decision, error) {
	req, err := s.store.LockForDecision(ctx, tx, requestID)
	if err != nil {
		return approval.Decision{}, ledgererrors.Internal("approvalsvc: failed to lock request", err)
	}
	if req.Status != approval.StatusPending {
		return approval.Decision{}, ledgererrors.New(ledgererrors.CodeApprovalConflict,
			"approval request is no longer pending", 409).WithDetails("request_id", requestID)
	}
	if outcome != approval.StatusApproved && outcome != approval.StatusDenied {
		return approval.Decision{}, ledgererrors.InvalidInput("outcome", "must be APPROVED or DENIED")
	}
	if !approval.Transition(req.Status, outcome) {
		return approval.Decision{}, ledgererrors.New(ledgererrors.CodeApprovalConflict,
			"illegal approval state transition", 409).WithDetails("from", req.Status).WithDetails("to", outcome)
	}

	count, err := s.store.DecisionCount(ctx, tx, requestID)
	if err != nil {
		return approval.Decision{}, ledgererrors.Internal("approvalsvc: failed to count decisions", err)
	}
	if count > 0 {
		return approval.Decision{}, ledgererrors.New(ledgererrors.CodeApprovalConflict,
			"request already has a recorded decision", 409).WithDetails("request_id", requestID)
	}

	if s.currentPolicyVer != nil {
		current, err := s.currentPolicyVer(req.PolicyName)
		if err != nil {
			return approval.Decision{}, err
		}
		if !approval.PolicyCurrent(req.PolicyVersion, current) {
			return approval.Decision{}, ledgererrors.New(ledgererrors.CodePolicyDowngrade,
				"policy changed version between request creation and decision", 409).
				WithDetails("request_id", requestID).
				WithDetails("requested_version", req.PolicyVersion).
				WithDetails("current_version", current)
		}
	}

	decidedAt := time.Now().UTC()
	hash, err := approval.ComputeDecisionHash(requestID, actorID, outcome, rationale, decidedAt)
	if err != nil {
		return approval.Decision{}, ledgererrors.Internal("approvalsvc: failed to hash decision", err)
	}
	decision := approval.Decision{
		DecisionID:   requestID + ":decision",
		RequestID:    requestID,
		ActorID:      actorID,
		Outcome:      outcome,
		Rationale:    rationale,
		DecisionHash: hash,
		DecidedAt:    decidedAt,
	}

	if err := s.store.InsertDecision(ctx, tx, decision); err != nil {
		return approval.Decision{}, ledgererrors.Internal("approvalsvc: failed to insert decision", err)
	}
	if err := s.store.UpdateStatus(ctx, tx, requestID, outcome, decidedAt); err != nil {
		return approval.Decision{}, ledgererrors.Internal("approvalsvc: failed to update request status", err)
	}
	metrics.RecordApprovalDecision(strings.ToLower(string(outcome)))
	return decision, nil
}
