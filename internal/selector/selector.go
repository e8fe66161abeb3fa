// Package selector picks exactly one policy among the admissible
// candidates the registry returns (spec.md §4.5 "Selection (P1)") and
// builds the meaning/guard disposition for that policy against a concrete
// event (spec.md §4.5 "Guard evaluation").
package selector

import (
	"sort"

	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/internal/registry"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
)

// Select applies P1 precedence — specificity, then author priority, then
// scope depth — to the admissible candidate set and returns the single
// winner. PROFILE_NOT_FOUND when the set is empty; AMBIGUOUS_DISPATCH when
// more than one candidate ties on every precedence term.
func Select(eventType string, candidates []registry.Candidate) (policy.Policy, error) {
	if len(candidates) == 0 {
		return policy.Policy{}, ledgererrors.ProfileNotFound(eventType)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Specificity != b.Specificity {
			return a.Specificity > b.Specificity
		}
		if a.Policy.Precedence.Priority != b.Policy.Precedence.Priority {
			return a.Policy.Precedence.Priority > b.Policy.Precedence.Priority
		}
		return a.Policy.Precedence.ScopeDepth > b.Policy.Precedence.ScopeDepth
	})

	winner := candidates[0]
	var tied []string
	for _, c := range candidates[1:] {
		if c.Specificity == winner.Specificity &&
			c.Policy.Precedence.Priority == winner.Policy.Precedence.Priority &&
			c.Policy.Precedence.ScopeDepth == winner.Policy.Precedence.ScopeDepth {
			tied = append(tied, c.Policy.Name)
		}
	}
	if len(tied) > 0 {
		tied = append([]string{winner.Policy.Name}, tied...)
		return policy.Policy{}, ledgererrors.AmbiguousDispatch(eventType, tied)
	}

	return winner.Policy, nil
}

// Disposition is the outcome of evaluating a policy's guards against an
// event (spec.md §4.5 "Guard evaluation").
type Disposition struct {
	Action     policy.GuardDisposition // "" when no guard fired
	ReasonCode string
	Message    string
	Warnings   []Disposition // WARN guards never block selection; accumulated for the audit trail (spec.md Open Questions)
}

// EvaluateGuards runs every guard on p against evalCtx in declared order
// and returns the first REJECT or BLOCK disposition encountered; WARN
// guards are recorded but never halt evaluation (spec.md §4.5, Open
// Questions: "WARN guards are recorded but not enforced").
func EvaluateGuards(p policy.Policy, evalCtx guardeval.Context) (Disposition, error) {
	var warnings []Disposition
	for _, g := range p.Guards {
		fired, err := guardeval.EvalBool(evalCtx, g.Expression)
		if err != nil {
			return Disposition{}, ledgererrors.Internal("guard evaluation failed", err).
				WithDetails("policy_name", p.Name).WithDetails("reason_code", g.ReasonCode)
		}
		if !fired {
			continue
		}
		d := Disposition{Action: g.Disposition, ReasonCode: g.ReasonCode, Message: g.Message}
		switch g.Disposition {
		case policy.DispositionReject, policy.DispositionBlock:
			metrics.RecordGuardEvaluation(string(g.Disposition))
			d.Warnings = warnings
			return d, nil
		case policy.DispositionWarn:
			metrics.RecordGuardEvaluation(string(g.Disposition))
			warnings = append(warnings, d)
		}
	}
	if len(warnings) == 0 {
		metrics.RecordGuardEvaluation("pass")
	}
	return Disposition{Warnings: warnings}, nil
}
