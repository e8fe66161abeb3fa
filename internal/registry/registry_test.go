package registry

import (
	"testing"

	"github.com/acctkernel/ledger/domain/guard"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/guardeval"
)

func TestNewRejectsFingerprintMismatch(t *testing.T) {
	pack := policy.Pack{Fingerprint: "actual", PinnedFingerprint: "expected"}
	if _, err := New(pack); err == nil {
		t.Fatal("expected error on fingerprint mismatch")
	}
}

func TestNewAcceptsMatchingFingerprint(t *testing.T) {
	pack := policy.Pack{Fingerprint: "abc", PinnedFingerprint: "abc"}
	if _, err := New(pack); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestNewAcceptsUnpinnedPack(t *testing.T) {
	pack := policy.Pack{Fingerprint: "abc"}
	if _, err := New(pack); err != nil {
		t.Fatalf("New: %v", err)
	}
}

func TestFindForRejectsUncompiledPolicy(t *testing.T) {
	pack := policy.Pack{
		PoliciesByEventType: map[string][]policy.Policy{
			"ap.invoice_received": {{Name: "NoReceipt", CompilationReceipt: ""}},
		},
	}
	reg, err := New(pack)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := reg.FindFor("ap.invoice_received", guardeval.Context{}, 0); err == nil {
		t.Fatal("expected error for policy lacking a compilation receipt")
	}
}

func TestFindForFiltersByWherePredicate(t *testing.T) {
	highValue := policy.Policy{
		Name:               "HighValue",
		CompilationReceipt: "receipt-1",
		WherePredicates:    []guard.Node{guard.Cmp(guard.OpGt, guard.Field("payload.amount"), guard.Lit(1000.0))},
	}
	anyValue := policy.Policy{
		Name:               "AnyValue",
		CompilationReceipt: "receipt-2",
	}
	pack := policy.Pack{
		PoliciesByEventType: map[string][]policy.Policy{
			"ap.invoice_received": {highValue, anyValue},
		},
	}
	reg, err := New(pack)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	evalCtx := guardeval.Context{Payload: map[string]interface{}{"amount": 500.0}}
	candidates, err := reg.FindFor("ap.invoice_received", evalCtx, 0)
	if err != nil {
		t.Fatalf("FindFor: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Policy.Name != "AnyValue" {
		t.Fatalf("expected only AnyValue to be admissible at amount=500, got %+v", candidates)
	}

	evalCtx = guardeval.Context{Payload: map[string]interface{}{"amount": 5000.0}}
	candidates, err = reg.FindFor("ap.invoice_received", evalCtx, 0)
	if err != nil {
		t.Fatalf("FindFor: %v", err)
	}
	if len(candidates) != 2 {
		t.Fatalf("expected both policies admissible at amount=5000, got %+v", candidates)
	}
	for _, c := range candidates {
		if c.Policy.Name == "HighValue" && c.Specificity != 1 {
			t.Errorf("HighValue specificity = %d, want 1", c.Specificity)
		}
		if c.Policy.Name == "AnyValue" && c.Specificity != 0 {
			t.Errorf("AnyValue specificity = %d, want 0", c.Specificity)
		}
	}
}
