// Package engine defines the calculation-engine contract invoked by the
// dispatcher (spec.md §4.6 "Engine dispatcher"). Engines are pure
// functions: params in, a trace out, no side effects and no access to
// storage — the dispatcher is the only thing that knows how to resolve
// params and record a trace (spec.md §9 "Dynamic dispatch").
package engine

import "encoding/json"

// Name identifies a registered engine. The dispatcher's invoker table is
// fixed at process start (spec.md §9: "dynamic dispatch -> fixed
// engine-id -> invoker map"); there is no runtime plugin loading.
type Name string

const (
	NameVariance               Name = "variance"
	NameAllocation             Name = "allocation"
	NameAllocationCascade      Name = "allocation_cascade"
	NameMatching               Name = "matching"
	NameAging                  Name = "aging"
	NameTax                    Name = "tax"
	NameValuationFIFO          Name = "valuation_fifo"
	NameValuationLIFO          Name = "valuation_lifo"
	NameValuationWeightedAvg   Name = "valuation_weighted_average"
	NameValuationStandard      Name = "valuation_standard"
	NameReconciliation         Name = "reconciliation"
	NameCorrection             Name = "correction"
	NameBilling                Name = "billing"
	NameICE                    Name = "ice"
	NameApprovalRuleEvaluation Name = "approval_rule_evaluation"
)

// Params is the JSON-decoded argument bag resolved for one engine
// invocation from the event payload plus policy-declared parameter
// mappings (spec.md §4.6 "Resolve params").
type Params map[string]interface{}

// Result is what a pure invoker returns: the computed values an engine
// contributes to the journal writer's line mappings, keyed by the name the
// policy's LineMapping.FromContext references.
type Result struct {
	Values map[string]interface{}
}

// Trace records one engine invocation for the interpretation outcome's
// audit trail (spec.md §4.6 "capture trace"). Exactly one trace per
// required engine per successful dispatch.
type Trace struct {
	Engine     Name
	Params     Params
	Result     Result
	DurationNS int64
}

// Invoker is a pure calculation function: given validated params, produce
// a result or fail. Implementations must not perform I/O.
type Invoker func(params Params) (Result, error)

// ValidateParamSchema performs a structural well-formedness check on raw
// engine params (valid JSON, not null). Schema-shaped validation against a
// policy's declared EngineContract.ParameterSchemaJSON happens in
// internal/dispatch, which checks required/type constraints directly
// against the decoded params map; no third-party JSON-Schema validator is
// in the grounding corpus for this kernel (see DESIGN.md).
func ValidateParamSchema(raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var v interface{}
	return json.Unmarshal(raw, &v)
}
