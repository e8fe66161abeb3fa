// Package outcome defines the interpretation outcome state machine
// (spec.md §3 "Interpretation outcome", §4.10). Every event that enters
// the coordinator gets exactly one durable Outcome record, including
// REJECTED and FAILED ones — the kernel never relies on logs to know what
// happened to an event (spec.md §9 "exceptions re-architected").
package outcome

import "time"

// Status is the outcome state machine's node set (spec.md §4.10).
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusPosted      Status = "POSTED"
	StatusBlocked     Status = "BLOCKED"
	StatusRejected    Status = "REJECTED"
	StatusProvisional Status = "PROVISIONAL"
	StatusNonPosting  Status = "NON_POSTING"
	StatusFailed      Status = "FAILED"
	StatusRetrying    Status = "RETRYING"
	StatusAbandoned   Status = "ABANDONED"
)

// terminal is the set of states the machine never leaves.
var terminal = map[Status]bool{
	StatusPosted:    true,
	StatusRejected:  true,
	StatusAbandoned: true,
}

// IsTerminal reports whether s has no further transitions (spec.md §4.10
// "POSTED/ABANDONED terminal"). REJECTED is also terminal: a rejected
// event is never silently retried (P12 — reinterpretation of posted
// records is out of scope, and REJECTED never posted in the first place).
func IsTerminal(s Status) bool {
	return terminal[s]
}

// transitions enumerates every edge the state machine permits (spec.md
// §4.10). Transition rejects anything not listed here.
var transitions = map[Status]map[Status]bool{
	StatusPending:     {StatusPosted: true, StatusBlocked: true, StatusRejected: true, StatusProvisional: true, StatusNonPosting: true, StatusFailed: true},
	StatusBlocked:     {StatusPosted: true, StatusRejected: true},
	StatusFailed:      {StatusRetrying: true, StatusAbandoned: true},
	StatusRetrying:    {StatusPosted: true, StatusFailed: true},
	StatusProvisional: {StatusPosted: true, StatusRejected: true, StatusFailed: true},
}

// Transition reports whether moving from s to next is a legal edge.
func Transition(from, next Status) bool {
	if IsTerminal(from) {
		return false
	}
	edges, ok := transitions[from]
	if !ok {
		return false
	}
	return edges[next]
}

// FailureType enumerates why a pipeline attempt did not reach POSTED
// (spec.md §4.10 "failure capture").
type FailureType string

const (
	FailureGuard          FailureType = "GUARD"
	FailureEngine         FailureType = "ENGINE"
	FailureReconciliation FailureType = "RECONCILIATION"
	FailureSnapshot       FailureType = "SNAPSHOT"
	FailureAuthority      FailureType = "AUTHORITY"
	FailureContract       FailureType = "CONTRACT"
	FailureSystem         FailureType = "SYSTEM"
)

// Outcome is the durable record of what happened when the coordinator
// processed one event (spec.md §3 "Interpretation outcome"). Exactly one
// Outcome exists per event_id at any time (P15), though its Status and
// RetryCount evolve under the Transition rules above.
type Outcome struct {
	EventID      string
	Status       Status
	PolicyName   string
	JournalEntry string // entry_id once POSTED; empty otherwise
	FailureType  FailureType
	FailureCode  string
	FailureDetail map[string]interface{}
	RetryCount   int
	MaxRetries   int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanRetry reports whether this outcome may re-enter the pipeline: it must
// be FAILED and under its retry cap (spec.md §4.10 "Retry contract").
func (o Outcome) CanRetry() bool {
	return o.Status == StatusFailed && o.RetryCount < o.MaxRetries
}
