// Package approval defines approval requests and decisions (spec.md §3
// "Approval request & decision", §4.11, invariants AL-1..AL-10).
package approval

import (
	"time"

	"github.com/acctkernel/ledger/internal/canon"
)

// Status is the approval request state machine (spec.md §4.11, AL-1).
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
	StatusExpired  Status = "EXPIRED"
)

var transitions = map[Status]map[Status]bool{
	StatusPending: {StatusApproved: true, StatusDenied: true, StatusExpired: true},
}

// Transition reports whether moving from s to next is legal (AL-1: once
// decided, a request never moves again).
func Transition(from, next Status) bool {
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[next]
}

// Request is one approval request raised when a guard's BLOCK disposition
// fires (spec.md §3 "Approval request & decision").
type Request struct {
	RequestID       string
	EventID         string
	PolicyName      string
	PolicyVersion   int // AL-5: the policy version in effect when the request was raised
	ReasonCode      string
	RequiredRole    string
	Status          Status
	SnapshotHash    canon.Hash // AL-2: the event/context snapshot the decision must be evaluated against
	CreatedAt       time.Time
	DecidedAt       time.Time
}

// Decision is the durable record of one actor's disposition on a Request
// (spec.md §3 "Approval request & decision", AL-7, AL-8).
type Decision struct {
	DecisionID   string
	RequestID    string
	ActorID      string
	Outcome      Status // APPROVED | DENIED
	Rationale    string
	DecisionHash canon.Hash // AL-8: tamper-evident hash over (request_id, actor_id, outcome, rationale, decided_at)
	DecidedAt    time.Time
}

// ComputeDecisionHash implements AL-8's tamper-evident hash.
func ComputeDecisionHash(requestID, actorID string, outcome Status, rationale string, decidedAt time.Time) (canon.Hash, error) {
	return canon.Sum(map[string]interface{}{
		"request_id": requestID,
		"actor_id":   actorID,
		"outcome":    string(outcome),
		"rationale":  rationale,
		"decided_at": decidedAt.UTC().Format(time.RFC3339Nano),
	})
}

// PolicyCurrent reports whether requestPolicyVersion is still the current
// version of policyName at decision time (AL-5: a policy downgrade between
// creation and decision rejects the pending decision rather than applying
// it against a version the requester never saw).
func PolicyCurrent(requestPolicyVersion, currentPolicyVersion int) bool {
	return requestPolicyVersion == currentPolicyVersion
}
