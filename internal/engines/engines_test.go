package engines

import (
	"testing"

	"github.com/acctkernel/ledger/domain/engine"
)

func TestStandardRegistersEveryDeclaredEngine(t *testing.T) {
	table := Standard()
	declared := []engine.Name{
		engine.NameVariance, engine.NameAllocation, engine.NameAllocationCascade,
		engine.NameMatching, engine.NameAging, engine.NameTax,
		engine.NameValuationFIFO, engine.NameValuationLIFO, engine.NameValuationWeightedAvg, engine.NameValuationStandard,
		engine.NameReconciliation, engine.NameCorrection, engine.NameBilling, engine.NameICE,
		engine.NameApprovalRuleEvaluation,
	}
	for _, name := range declared {
		if _, ok := table[name]; !ok {
			t.Errorf("Standard() missing invoker for %q", name)
		}
	}
	if len(table) != len(declared) {
		t.Errorf("Standard() has %d entries, want %d", len(table), len(declared))
	}
}

func TestVarianceFavorable(t *testing.T) {
	result, err := Variance(engine.Params{"actual": "110", "expected": "100"})
	if err != nil {
		t.Fatalf("Variance: %v", err)
	}
	if result.Values["amount"] != "10" {
		t.Errorf("amount = %v, want 10", result.Values["amount"])
	}
	if result.Values["direction"] != "favorable" {
		t.Errorf("direction = %v, want favorable", result.Values["direction"])
	}
}

func TestVarianceUnfavorable(t *testing.T) {
	result, err := Variance(engine.Params{"actual": "90", "expected": "100"})
	if err != nil {
		t.Fatalf("Variance: %v", err)
	}
	if result.Values["amount"] != "10" {
		t.Errorf("amount = %v, want 10", result.Values["amount"])
	}
	if result.Values["direction"] != "unfavorable" {
		t.Errorf("direction = %v, want unfavorable", result.Values["direction"])
	}
}

func TestVarianceNone(t *testing.T) {
	result, err := Variance(engine.Params{"actual": "100", "expected": "100"})
	if err != nil {
		t.Fatalf("Variance: %v", err)
	}
	if result.Values["direction"] != "none" {
		t.Errorf("direction = %v, want none", result.Values["direction"])
	}
}

func TestVarianceMissingParam(t *testing.T) {
	_, err := Variance(engine.Params{"actual": "100"})
	if err == nil {
		t.Fatal("expected error for missing 'expected' parameter")
	}
}

func TestAgingBuckets(t *testing.T) {
	cases := []struct {
		days       string
		wantBucket string
	}{
		{"15", "current"},
		{"45", "31_60"},
		{"75", "61_90"},
		{"120", "90_plus"},
	}
	for _, c := range cases {
		result, err := Aging(engine.Params{"amount": "500", "days_outstanding": c.days})
		if err != nil {
			t.Fatalf("Aging(%s): %v", c.days, err)
		}
		if result.Values["bucket"] != c.wantBucket {
			t.Errorf("Aging(%s days) bucket = %v, want %v", c.days, result.Values["bucket"], c.wantBucket)
		}
	}
}

func TestTaxAppliesRateToBase(t *testing.T) {
	result, err := Tax(engine.Params{"base": "1000", "rate": "0.0825"})
	if err != nil {
		t.Fatalf("Tax: %v", err)
	}
	if result.Values["amount"] != "82.5" {
		t.Errorf("amount = %v, want 82.5", result.Values["amount"])
	}
}

func TestTaxMissingParam(t *testing.T) {
	_, err := Tax(engine.Params{"base": "1000"})
	if err == nil {
		t.Fatal("expected error for missing 'rate' parameter")
	}
}
