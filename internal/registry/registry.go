// Package registry finds the compiled policies admissible for an incoming
// event (spec.md §4.5 "Finding candidates"). It never mutates a
// policy.Pack — the pack is loaded once and treated as immutable for the
// lifetime of the process (spec.md §9 "Global mutable state").
package registry

import (
	"time"

	"github.com/acctkernel/ledger/domain/guard"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/ledgererrors"
)

// Registry resolves admissible policies for an event type against a
// loaded policy.Pack.
type Registry struct {
	pack policy.Pack
}

// New wraps a compiled pack. If pinnedFingerprint is non-empty it must
// equal pack.Fingerprint or New fails — this is the "compiled
// configuration" consumption rule in spec.md §6.
func New(pack policy.Pack) (*Registry, error) {
	if pack.PinnedFingerprint != "" && pack.PinnedFingerprint != pack.Fingerprint {
		return nil, ledgererrors.New(
			ledgererrors.CodeUncompiledPolicy,
			"policy pack fingerprint does not match the pinned fingerprint",
			422,
		).WithDetails("pinned", pack.PinnedFingerprint).WithDetails("actual", pack.Fingerprint)
	}
	return &Registry{pack: pack}, nil
}

// Pack returns the underlying compiled pack.
func (r *Registry) Pack() policy.Pack {
	return r.pack
}

// Candidate is one admissible policy together with the precomputed
// specificity term count used for selection (spec.md §4.5 "Selection (P1)").
type Candidate struct {
	Policy      policy.Policy
	Specificity int
}

// FindFor returns every policy registered for eventType whose effective
// window contains the event's occurrence time and whose where-predicates
// all hold against evalCtx. It fails with UNCOMPILED_POLICY if any policy
// registered for eventType lacks a compilation receipt (spec.md §4.5
// "Direct registration requires a compilation receipt"). Caller supplies
// evalCtx pre-populated with the event payload.
func (r *Registry) FindFor(eventType string, evalCtx guardeval.Context, occurredAtUnix int64) ([]Candidate, error) {
	candidates := make([]Candidate, 0, 4)
	occurredAt := time.Unix(occurredAtUnix, 0).UTC()
	for _, p := range r.pack.PoliciesFor(eventType) {
		if p.CompilationReceipt == "" {
			return nil, ledgererrors.UncompiledPolicy(p.Name)
		}
		if !p.EffectiveWindow(occurredAt) {
			continue
		}
		admissible, err := admits(p, evalCtx)
		if err != nil {
			return nil, err
		}
		if !admissible {
			continue
		}
		candidates = append(candidates, Candidate{
			Policy:      p,
			Specificity: len(p.WherePredicates),
		})
	}
	return candidates, nil
}

// admits evaluates every where-predicate attached to p; all must hold
// (conjunctive admissibility, spec.md §4.5).
func admits(p policy.Policy, evalCtx guardeval.Context) (bool, error) {
	for _, pred := range p.WherePredicates {
		if err := guard.Validate(pred); err != nil {
			return false, ledgererrors.Internal("policy where-predicate failed compile-time validation", err).
				WithDetails("policy_name", p.Name)
		}
		ok, err := guardeval.EvalBool(evalCtx, pred)
		if err != nil {
			return false, ledgererrors.Internal("where-predicate evaluation failed", err).
				WithDetails("policy_name", p.Name)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
