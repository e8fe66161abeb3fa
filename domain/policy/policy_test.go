package policy

import (
	"testing"
	"time"
)

func TestEffectiveWindowNeverExpires(t *testing.T) {
	p := Policy{EffectiveAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	if !p.EffectiveWindow(time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected a policy with a zero ExpiresAt to never expire")
	}
}

func TestEffectiveWindowBeforeEffectiveAt(t *testing.T) {
	p := Policy{EffectiveAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	if p.EffectiveWindow(time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected a policy not yet effective to reject")
	}
}

func TestEffectiveWindowRespectsExpiresAt(t *testing.T) {
	p := Policy{
		EffectiveAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		ExpiresAt:   time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	if !p.EffectiveWindow(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected a date inside the window to be effective")
	}
	if p.EffectiveWindow(time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("expected ExpiresAt to be exclusive")
	}
}

func TestEngineParamMapping(t *testing.T) {
	pack := Pack{
		EngineParameterMappings: map[string]map[string]map[string]string{
			"variance-params-v1": {
				"variance": {"actual": "payload.actual_amount", "expected": "payload.expected_amount"},
			},
		},
	}
	mapping := pack.EngineParamMapping("variance-params-v1", "variance")
	if mapping["actual"] != "payload.actual_amount" {
		t.Errorf("mapping[actual] = %q, want payload.actual_amount", mapping["actual"])
	}
}

func TestEngineParamMappingUnknownRef(t *testing.T) {
	pack := Pack{}
	if mapping := pack.EngineParamMapping("does-not-exist", "variance"); mapping != nil {
		t.Errorf("expected nil mapping for unknown policy ref, got %+v", mapping)
	}
}

func TestPoliciesForReturnsRegisteredPolicies(t *testing.T) {
	pack := Pack{
		PoliciesByEventType: map[string][]Policy{
			"ap.invoice_received": {{Name: "A"}, {Name: "B"}},
		},
	}
	policies := pack.PoliciesFor("ap.invoice_received")
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
}

func TestPoliciesForUnknownEventType(t *testing.T) {
	pack := Pack{}
	if policies := pack.PoliciesFor("nothing.happened"); policies != nil {
		t.Errorf("expected nil for unknown event type, got %+v", policies)
	}
}

func TestResolveRole(t *testing.T) {
	pack := Pack{
		RoleBindings: map[string]RoleBinding{
			"EXPENSE": {Role: "EXPENSE", AccountID: "6000", LedgerID: "GL", Currency: "USD"},
		},
	}
	binding, ok := pack.ResolveRole("EXPENSE")
	if !ok {
		t.Fatal("expected EXPENSE role to resolve")
	}
	if binding.AccountID != "6000" {
		t.Errorf("AccountID = %q, want 6000", binding.AccountID)
	}
	if _, ok := pack.ResolveRole("UNKNOWN"); ok {
		t.Error("expected unbound role to not resolve")
	}
}
