package selector

import (
	"testing"

	"github.com/acctkernel/ledger/domain/guard"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/internal/registry"
	"github.com/acctkernel/ledger/ledgererrors"
)

func candidate(name string, specificity, priority, scopeDepth int) registry.Candidate {
	return registry.Candidate{
		Policy: policy.Policy{
			Name:       name,
			Precedence: policy.Precedence{Priority: priority, ScopeDepth: scopeDepth},
		},
		Specificity: specificity,
	}
}

func TestSelectEmptyCandidatesIsProfileNotFound(t *testing.T) {
	_, err := Select("ap.invoice_received", nil)
	if err == nil {
		t.Fatal("expected PROFILE_NOT_FOUND error")
	}
	var lerr *ledgererrors.Error
	if e, ok := err.(*ledgererrors.Error); ok {
		lerr = e
	}
	if lerr == nil {
		t.Fatalf("expected *ledgererrors.Error, got %T", err)
	}
}

func TestSelectPicksHighestSpecificity(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("general", 0, 0, 0),
		candidate("specific", 2, 0, 0),
	}
	winner, err := Select("ap.invoice_received", candidates)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if winner.Name != "specific" {
		t.Errorf("winner = %q, want %q", winner.Name, "specific")
	}
}

func TestSelectBreaksSpecificityTieOnPriority(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("low-priority", 1, 1, 0),
		candidate("high-priority", 1, 5, 0),
	}
	winner, err := Select("ap.invoice_received", candidates)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if winner.Name != "high-priority" {
		t.Errorf("winner = %q, want %q", winner.Name, "high-priority")
	}
}

func TestSelectBreaksPriorityTieOnScopeDepth(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("shallow", 1, 1, 1),
		candidate("deep", 1, 1, 3),
	}
	winner, err := Select("ap.invoice_received", candidates)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if winner.Name != "deep" {
		t.Errorf("winner = %q, want %q", winner.Name, "deep")
	}
}

func TestSelectAmbiguousDispatchOnFullTie(t *testing.T) {
	candidates := []registry.Candidate{
		candidate("a", 1, 1, 1),
		candidate("b", 1, 1, 1),
	}
	_, err := Select("ap.invoice_received", candidates)
	if err == nil {
		t.Fatal("expected AMBIGUOUS_DISPATCH error")
	}
}

func TestEvaluateGuardsNoGuardsPasses(t *testing.T) {
	p := policy.Policy{}
	d, err := EvaluateGuards(p, guardeval.Context{})
	if err != nil {
		t.Fatalf("EvaluateGuards: %v", err)
	}
	if d.Action != "" {
		t.Errorf("expected no disposition to fire, got %q", d.Action)
	}
}

func TestEvaluateGuardsRejectShortCircuits(t *testing.T) {
	p := policy.Policy{
		Guards: []policy.Guard{
			{
				Expression:  guard.Lit(true),
				Disposition: policy.DispositionReject,
				ReasonCode:  "INVALID_AMOUNT",
			},
			{
				Expression:  guard.Lit(true),
				Disposition: policy.DispositionWarn,
				ReasonCode:  "SHOULD_NOT_BE_REACHED",
			},
		},
	}
	d, err := EvaluateGuards(p, guardeval.Context{})
	if err != nil {
		t.Fatalf("EvaluateGuards: %v", err)
	}
	if d.Action != policy.DispositionReject {
		t.Errorf("Action = %q, want REJECT", d.Action)
	}
	if d.ReasonCode != "INVALID_AMOUNT" {
		t.Errorf("ReasonCode = %q, want INVALID_AMOUNT", d.ReasonCode)
	}
}

func TestEvaluateGuardsWarnAccumulatesAndDoesNotBlock(t *testing.T) {
	p := policy.Policy{
		Guards: []policy.Guard{
			{
				Expression:  guard.Lit(true),
				Disposition: policy.DispositionWarn,
				ReasonCode:  "LOW_CONFIDENCE",
			},
		},
	}
	d, err := EvaluateGuards(p, guardeval.Context{})
	if err != nil {
		t.Fatalf("EvaluateGuards: %v", err)
	}
	if d.Action != "" {
		t.Errorf("WARN must not set a blocking Action, got %q", d.Action)
	}
	if len(d.Warnings) != 1 {
		t.Fatalf("expected 1 accumulated warning, got %d", len(d.Warnings))
	}
}
