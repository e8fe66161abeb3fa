package dispatch

import (
	"errors"
	"testing"

	"github.com/acctkernel/ledger/domain/engine"
	"github.com/acctkernel/ledger/domain/event"
	"github.com/acctkernel/ledger/domain/policy"
	"github.com/acctkernel/ledger/internal/guardeval"
)

func echoInvoker(params engine.Params) (engine.Result, error) {
	return engine.Result{Values: map[string]interface{}{"echo": params["amount"]}}, nil
}

func failingInvoker(params engine.Params) (engine.Result, error) {
	return engine.Result{}, errors.New("boom")
}

func TestDispatchSuccess(t *testing.T) {
	d := New(map[engine.Name]engine.Invoker{engine.NameVariance: echoInvoker})
	evalCtx := guardeval.Context{Payload: map[string]interface{}{"amount": 100.0}}

	trace, err := d.Dispatch(engine.NameVariance, policy.EngineContract{}, event.Event{}, evalCtx, map[string]string{"amount": "payload.amount"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if trace.Result.Values["echo"] != 100.0 {
		t.Errorf("Result.Values[echo] = %v, want 100.0", trace.Result.Values["echo"])
	}
}

func TestDispatchUnregisteredEngine(t *testing.T) {
	d := New(map[engine.Name]engine.Invoker{})
	_, err := d.Dispatch(engine.NameVariance, policy.EngineContract{}, event.Event{}, guardeval.Context{}, nil)
	if err == nil {
		t.Fatal("expected ENGINE_NOT_REGISTERED error")
	}
}

func TestDispatchUnresolvableParam(t *testing.T) {
	d := New(map[engine.Name]engine.Invoker{engine.NameVariance: echoInvoker})
	evalCtx := guardeval.Context{Payload: map[string]interface{}{}}
	_, err := d.Dispatch(engine.NameVariance, policy.EngineContract{}, event.Event{}, evalCtx, map[string]string{"amount": "payload.missing"})
	if err == nil {
		t.Fatal("expected param resolution error for missing field")
	}
}

func TestDispatchMissingRequiredContractField(t *testing.T) {
	d := New(map[engine.Name]engine.Invoker{engine.NameVariance: echoInvoker})
	evalCtx := guardeval.Context{Payload: map[string]interface{}{}}
	contract := policy.EngineContract{ParameterSchemaJSON: `{"required": ["amount"]}`}
	_, err := d.Dispatch(engine.NameVariance, contract, event.Event{}, evalCtx, nil)
	if err == nil {
		t.Fatal("expected param validation error for missing required field")
	}
}

func TestDispatchInvokerFailure(t *testing.T) {
	d := New(map[engine.Name]engine.Invoker{engine.NameVariance: failingInvoker})
	_, err := d.Dispatch(engine.NameVariance, policy.EngineContract{}, event.Event{}, guardeval.Context{}, nil)
	if err == nil {
		t.Fatal("expected engine invocation failure to propagate")
	}
}
