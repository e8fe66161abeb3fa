// Package policy defines the compiled accounting policy and policy-pack
// types consumed by the selector and dispatcher (spec.md §3 "Accounting
// policy (compiled)", "Compiled policy pack", §4.5).
package policy

import (
	"time"

	"github.com/acctkernel/ledger/domain/guard"
	"github.com/acctkernel/ledger/domain/money"
)

// Side is the debit/credit direction of a line mapping.
type Side string

const (
	SideDebit  Side = "DEBIT"
	SideCredit Side = "CREDIT"
)

// GuardDisposition is the action a guard takes when its expression is true.
type GuardDisposition string

const (
	DispositionReject GuardDisposition = "reject"
	DispositionBlock  GuardDisposition = "block"
	DispositionWarn   GuardDisposition = "warn"
)

// Guard pairs a restricted-AST predicate with the action to take when it
// evaluates true (spec.md §4.5).
type Guard struct {
	Expression  guard.Node
	Disposition GuardDisposition
	ReasonCode  string
	Message     string
}

// Meaning describes how to extract the economic meaning of an event from
// its payload (spec.md §3 "Accounting policy (compiled)").
type Meaning struct {
	EconomicType  string
	QuantityField string // JSONPath into payload; empty if not quantity-bearing
	Dimensions    []string
}

// LedgerEffect names a ledger and the two roles a policy posts to it under.
// Multi-ledger postings are expressed as multiple LedgerEffects on one
// policy (spec.md §4.7 step 7 "Multi-ledger postings from a single intent
// are atomic").
type LedgerEffect struct {
	LedgerID   string
	DebitRole  string
	CreditRole string
}

// LineMapping is one resolvable line within a ledger effect: a role, a
// side, and the payload path line amounts are drawn from. Foreach names a
// payload array field to iterate for multi-line effects (e.g. invoice
// line items); empty means a single line.
type LineMapping struct {
	Role        string
	Side        Side
	Ledger      string
	Foreach     string
	FromContext string // JSONPath source for the line amount
}

// Precedence determines selection order among admissible policies for the
// same event type (spec.md §4.5 "Selection (P1)").
type Precedence struct {
	Specificity int // number of where-clause terms; computed, not authored
	Priority    int // author-declared; higher wins ties on specificity
	ScopeDepth  int // narrower scope wins remaining ties
}

// Policy is one compiled accounting policy (spec.md §3).
type Policy struct {
	Name        string
	Version     int
	EffectiveAt time.Time
	ExpiresAt   time.Time // zero value means no expiry

	EventType      string
	WherePredicates []guard.Node // each must hold for the policy to be admissible

	Meaning Meaning

	LedgerEffects []LedgerEffect
	Guards        []Guard
	LineMappings  []LineMapping

	RequiredEngines      []string
	EngineParametersRef  string
	VarianceDisposition  string
	CapabilityTags       []string

	// IsAdjustment declares that postings under this policy are
	// adjustment/correction/close-step writes rather than ordinary business
	// postings, so the period gate (R13, R25) evaluates them against a
	// CLOSING period's close-step allowance instead of rejecting them
	// outright.
	IsAdjustment bool

	Precedence Precedence

	PolicyHash string

	// CompilationReceipt proves this policy was admitted through the
	// upstream compiler rather than constructed ad hoc at runtime
	// (spec.md §4.5 "Direct registration requires a compilation receipt").
	CompilationReceipt string
}

// EffectiveWindow reports whether t falls within [EffectiveAt, ExpiresAt).
// A zero ExpiresAt means the policy never expires.
func (p Policy) EffectiveWindow(t time.Time) bool {
	if t.Before(p.EffectiveAt) {
		return false
	}
	if p.ExpiresAt.IsZero() {
		return true
	}
	return t.Before(p.ExpiresAt)
}

// RoleBinding resolves a semantic role symbol to a concrete account and
// ledger (spec.md GLOSSARY "Role").
type RoleBinding struct {
	Role      string
	AccountID string
	LedgerID  string
	Currency  money.Currency
}

// LedgerDefinition names a posting target (spec.md GLOSSARY "Ledger").
type LedgerDefinition struct {
	LedgerID string
	Name     string
	IsGL     bool
}

// EngineContract describes one registered calculation engine's parameter
// contract (spec.md §3 "Compiled policy pack").
type EngineContract struct {
	Name               string
	Version             string
	ParameterSchemaJSON string // JSON Schema text; validated at dispatch time
}

// SubledgerContract is the control-account and reconciliation policy for
// one subledger type (spec.md §3 "Subledger control contract").
type SubledgerContract struct {
	SubledgerType     string
	ControlAccountRole string
	SignConvention    Side
	EnforceOnPost     bool
	EnforceOnClose    bool
	TolerancePlaces   int32
}

// ApprovalPolicy declares which guard-block reason codes require an
// approval workflow before the coordinator may re-enter the pipeline.
type ApprovalPolicy struct {
	ReasonCode   string
	RequiredRole string
}

// Pack is the frozen, fingerprinted compiled policy pack (spec.md §3
// "Compiled policy pack", GLOSSARY "Compiled policy pack"). It is the only
// process-wide mutable-at-load/immutable-after-load state in the kernel
// (spec.md §9 "Global mutable state").
type Pack struct {
	Fingerprint string // SHA-256 over normalized pack content

	PoliciesByEventType map[string][]Policy
	RoleBindings        map[string]RoleBinding // role -> binding
	Ledgers             map[string]LedgerDefinition
	EngineContracts     map[string]EngineContract
	SubledgerContracts  map[string]SubledgerContract
	ApprovalPolicies    map[string]ApprovalPolicy // reason_code -> policy

	// EngineParameterMappings resolves a policy's EngineParametersRef to,
	// per required engine name, the field-path mapping the dispatcher
	// resolves params from (guardeval.Context field references keyed by the
	// engine's parameter name). Kept at the pack level rather than inline on
	// Policy so the same mapping can be shared across policy versions that
	// invoke the same engine the same way.
	EngineParameterMappings map[string]map[string]map[string]string

	// PinnedFingerprint, when non-empty, must equal Fingerprint or the pack
	// fails to load (spec.md §6 "Compiled configuration").
	PinnedFingerprint string
}

// EngineParamMapping resolves the field-path mapping for one required
// engine of p within pack, via p.EngineParametersRef.
func (p Pack) EngineParamMapping(policyRef string, name string) map[string]string {
	byEngine, ok := p.EngineParameterMappings[policyRef]
	if !ok {
		return nil
	}
	return byEngine[name]
}

// PoliciesFor returns every policy registered for eventType, admissible or
// not; admissibility filtering is internal/registry's job.
func (p Pack) PoliciesFor(eventType string) []Policy {
	return p.PoliciesByEventType[eventType]
}

// ResolveRole looks up the account/ledger bound to role.
func (p Pack) ResolveRole(role string) (RoleBinding, bool) {
	b, ok := p.RoleBindings[role]
	return b, ok
}
