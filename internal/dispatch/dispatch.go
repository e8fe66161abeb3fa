// Package dispatch resolves engine parameters from a policy and an event,
// invokes the registered pure engine, and captures a trace (spec.md §4.6
// "Engine dispatcher"). The invoker table is a fixed map assembled at
// process start — there is no runtime plugin loading (spec.md §9).
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/domain/guard"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/guardeval"
	"github.com/acctkernel/ledger/ledgererrors"
	"github.com/acctkernel/ledger/pkg/metrics"
)

// Dispatcher owns the fixed engine-name -> invoker table.
type Dispatcher struct {
	invokers map[engine.Name]engine.Invoker
}

// New builds a Dispatcher from the supplied invoker table. Callers
// assemble this table once at startup from the standard engine set
// (spec.md §4.6 "standard engines").
func New(invokers map[engine.Name]engine.Invoker) *Dispatcher {
	return &Dispatcher{invokers: invokers}
}

// Dispatch resolves params for name from evt/evalCtx against the
// policy-declared contract, validates them, invokes the engine, and
// returns a trace. Required engines that produce no trace leave the
// coordinator's "N required engines => N success traces" invariant
// violated; callers must treat a dispatch error as pipeline failure.
func (d *Dispatcher) Dispatch(name engine.Name, contract policy.EngineContract, evt event.Event, evalCtx guardeval.Context, paramMapping map[string]string) (engine.Trace, error) {
	start := time.Now()
	invoker, ok := d.invokers[name]
	if !ok {
		metrics.RecordDispatch(string(name), "not_registered", time.Since(start))
		return engine.Trace{}, ledgererrors.EngineNotRegistered(string(name))
	}

	params, err := resolveParams(evalCtx, paramMapping)
	if err != nil {
		metrics.RecordDispatch(string(name), "param_invalid", time.Since(start))
		return engine.Trace{}, ledgererrors.EngineParamInvalid(string(name), err.Error())
	}

	if err := validateAgainstContract(params, contract); err != nil {
		metrics.RecordDispatch(string(name), "param_invalid", time.Since(start))
		return engine.Trace{}, ledgererrors.EngineParamInvalid(string(name), err.Error())
	}

	result, err := invoker(params)
	if err != nil {
		metrics.RecordDispatch(string(name), "failed", time.Since(start))
		return engine.Trace{}, ledgererrors.EngineFailed(string(name), err)
	}

	metrics.RecordDispatch(string(name), "success", time.Since(start))
	return engine.Trace{
		Engine: name,
		Params: params,
		Result: result,
	}, nil
}

// resolveParams reads each declared payload path into a flat params bag
// using the same JSONPath field resolution guards use (spec.md §4.6
// "Resolve params from the compiled mapping").
func resolveParams(evalCtx guardeval.Context, mapping map[string]string) (engine.Params, error) {
	params := make(engine.Params, len(mapping))
	for paramName, path := range mapping {
		v, err := guardeval.Eval(evalCtx, guard.Field(path))
		if err != nil {
			return nil, fmt.Errorf("resolving %q from %q: %w", paramName, path, err)
		}
		params[paramName] = v
	}
	return params, nil
}

// validateAgainstContract checks that every key the contract's required
// set names is present and non-nil. Full JSON-Schema shape checking is out
// of scope without a vendored validator (see domain/engine.ValidateParamSchema).
func validateAgainstContract(params engine.Params, contract policy.EngineContract) error {
	if contract.ParameterSchemaJSON == "" {
		return nil
	}
	required, err := requiredFieldsFromSchema(contract.ParameterSchemaJSON)
	if err != nil {
		return err
	}
	for _, name := range required {
		if v, ok := params[name]; !ok || v == nil {
			return fmt.Errorf("missing required engine parameter %q", name)
		}
	}
	return nil
}

// schemaShape is the tiny subset of JSON Schema this kernel understands:
// a "required" array naming mandatory top-level properties.
type schemaShape struct {
	Required []string `json:"required"`
}

func requiredFieldsFromSchema(raw string) ([]string, error) {
	var s schemaShape
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("invalid engine parameter schema: %w", err)
	}
	return s.Required, nil
}
