package main

import (
	"testing"
	"time"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/pkg/config"
)

func TestFiscalPeriodOfFormatsCalendarMonth(t *testing.T) {
	got := fiscalPeriodOf(time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC))
	if got != "2026-03" {
		t.Errorf("fiscalPeriodOf = %q, want 2026-03", got)
	}
}

func TestDetermineAddrPrefersFlag(t *testing.T) {
	cfg := &config.Config{}
	if got := determineAddr("0.0.0.0:9090", cfg); got != "0.0.0.0:9090" {
		t.Errorf("determineAddr = %q, want 0.0.0.0:9090", got)
	}
}

func TestDetermineAddrFallsBackToConfigDefaults(t *testing.T) {
	cfg := &config.Config{}
	got := determineAddr("", cfg)
	if got != "0.0.0.0:8080" {
		t.Errorf("determineAddr = %q, want 0.0.0.0:8080", got)
	}
}

func TestRequiredEngineContractsResolvesOnlyRequired(t *testing.T) {
	p := policy.Policy{RequiredEngines: []string{"variance"}}
	pack := policy.Pack{
		EngineContracts: map[string]policy.EngineContract{
			"variance": {Name: "variance", Version: "1.0"},
			"aging":    {Name: "aging", Version: "1.0"},
		},
	}
	contracts := requiredEngineContracts(p, pack)
	if len(contracts) != 1 {
		t.Fatalf("expected exactly 1 resolved contract, got %d", len(contracts))
	}
	if _, ok := contracts[engine.Name("variance")]; !ok {
		t.Error("expected the variance contract to be resolved")
	}
}

func TestEngineParamMappingForClosesOverPack(t *testing.T) {
	pack := policy.Pack{
		EngineParameterMappings: map[string]map[string]map[string]string{
			"ref-1": {"variance": {"actual": "payload.actual_amount"}},
		},
	}
	resolve := engineParamMappingFor(pack)
	p := policy.Policy{EngineParametersRef: "ref-1"}
	mapping := resolve(p, engine.Name("variance"))
	if mapping["actual"] != "payload.actual_amount" {
		t.Errorf("mapping[actual] = %q, want payload.actual_amount", mapping["actual"])
	}
}

func TestCurrentPolicyVersionReturnsHighestVersion(t *testing.T) {
	pack := policy.Pack{
		PoliciesByEventType: map[string][]policy.Policy{
			"expense.report_approved": {
				{Name: "ExpenseReportApproved", Version: 1},
				{Name: "ExpenseReportApproved", Version: 3},
				{Name: "ExpenseReportApproved", Version: 2},
			},
		},
	}
	resolve := currentPolicyVersion(pack)
	version, err := resolve("ExpenseReportApproved")
	if err != nil {
		t.Fatalf("currentPolicyVersion: %v", err)
	}
	if version != 3 {
		t.Errorf("version = %d, want 3", version)
	}
}

func TestCurrentPolicyVersionUnknownPolicyName(t *testing.T) {
	resolve := currentPolicyVersion(policy.Pack{})
	if _, err := resolve("does-not-exist"); err == nil {
		t.Fatal("expected error for a policy name not present in the pack")
	}
}
