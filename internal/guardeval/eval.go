// Package guardeval evaluates a validated guard.Node against a concrete
// event context. Evaluation is total: every node kind guard.Validate
// accepts has a defined evaluation here, and there is no way to reach
// arbitrary Go code from a guard expression (spec.md §4.5, §9).
package guardeval

import (
	"encoding/json"
	"fmt"

	"github.com/PaesslerAG/jsonpath"

	"github.com/acctkernel/ledger/domain/guard"
)

// Context supplies the data a guard expression can read: the event
// payload, the party/contract context records referenced by role
// mappings, and host functions beyond abs/len (check_credit_limit and any
// future additions registered by the embedding application).
type Context struct {
	Payload   map[string]interface{}
	Party     map[string]interface{}
	Contract  map[string]interface{}
	Event     map[string]interface{}
	Functions map[string]func(args []interface{}) (interface{}, error)
}

// root assembles the JSONPath document the field references resolve
// against: {payload: ..., party: ..., contract: ..., event: ...}.
func (c Context) root() map[string]interface{} {
	return map[string]interface{}{
		"payload":  c.Payload,
		"party":    c.Party,
		"contract": c.Contract,
		"event":    c.Event,
	}
}

// Eval evaluates n against ctx. Callers must have run guard.Validate(n)
// at compile time; Eval does not re-validate node kinds, only operator
// values that depend on runtime data (e.g. division by zero).
func Eval(ctx Context, n guard.Node) (interface{}, error) {
	switch n.Kind {
	case guard.KindLiteral:
		return n.Literal.Value, nil

	case guard.KindFieldRef:
		return resolveField(ctx, n.FieldRef.Path)

	case guard.KindComparison:
		return evalComparison(ctx, n.Comparison)

	case guard.KindLogical:
		return evalLogical(ctx, n.Logical)

	case guard.KindNot:
		v, err := Eval(ctx, n.Not.Operand)
		if err != nil {
			return nil, err
		}
		b, err := toBool(v)
		if err != nil {
			return nil, err
		}
		return !b, nil

	case guard.KindArithmetic:
		return evalArithmetic(ctx, n.Arithmetic)

	case guard.KindTernary:
		cond, err := Eval(ctx, n.Ternary.Cond)
		if err != nil {
			return nil, err
		}
		b, err := toBool(cond)
		if err != nil {
			return nil, err
		}
		if b {
			return Eval(ctx, n.Ternary.Then)
		}
		return Eval(ctx, n.Ternary.Else)

	case guard.KindMembership:
		return evalMembership(ctx, n.Membership)

	case guard.KindFuncCall:
		return evalFuncCall(ctx, n.FuncCall)

	default:
		return nil, fmt.Errorf("guardeval: unvalidated node kind %q reached evaluation", n.Kind)
	}
}

// EvalBool evaluates n and requires a boolean result, the entry point
// guards and where-predicates use.
func EvalBool(ctx Context, n guard.Node) (bool, error) {
	v, err := Eval(ctx, n)
	if err != nil {
		return false, err
	}
	return toBool(v)
}

func resolveField(ctx Context, path string) (interface{}, error) {
	jp := path
	if len(jp) == 0 || jp[0] != '$' {
		jp = "$." + path
	}
	v, err := jsonpath.Get(jp, ctx.root())
	if err != nil {
		return nil, fmt.Errorf("guardeval: field %q not resolvable: %w", path, err)
	}
	return v, nil
}

func evalComparison(ctx Context, c *guard.ComparisonNode) (interface{}, error) {
	left, err := Eval(ctx, c.Left)
	if err != nil {
		return nil, err
	}
	right, err := Eval(ctx, c.Right)
	if err != nil {
		return nil, err
	}
	switch c.Op {
	case guard.OpEq:
		return looseEqual(left, right), nil
	case guard.OpNeq:
		return !looseEqual(left, right), nil
	default:
		lf, err := toFloat(left)
		if err != nil {
			return nil, err
		}
		rf, err := toFloat(right)
		if err != nil {
			return nil, err
		}
		switch c.Op {
		case guard.OpLt:
			return lf < rf, nil
		case guard.OpLte:
			return lf <= rf, nil
		case guard.OpGt:
			return lf > rf, nil
		case guard.OpGte:
			return lf >= rf, nil
		}
		return nil, fmt.Errorf("guardeval: unknown comparison operator %q", c.Op)
	}
}

func evalLogical(ctx Context, l *guard.LogicalNode) (interface{}, error) {
	switch l.Op {
	case guard.OpAnd:
		for _, operand := range l.Operands {
			v, err := Eval(ctx, operand)
			if err != nil {
				return nil, err
			}
			b, err := toBool(v)
			if err != nil {
				return nil, err
			}
			if !b {
				return false, nil
			}
		}
		return true, nil
	case guard.OpOr:
		for _, operand := range l.Operands {
			v, err := Eval(ctx, operand)
			if err != nil {
				return nil, err
			}
			b, err := toBool(v)
			if err != nil {
				return nil, err
			}
			if b {
				return true, nil
			}
		}
		return false, nil
	default:
		return nil, fmt.Errorf("guardeval: unknown logical operator %q", l.Op)
	}
}

func evalArithmetic(ctx Context, a *guard.ArithmeticNode) (interface{}, error) {
	left, err := Eval(ctx, a.Left)
	if err != nil {
		return nil, err
	}
	right, err := Eval(ctx, a.Right)
	if err != nil {
		return nil, err
	}
	lf, err := toFloat(left)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(right)
	if err != nil {
		return nil, err
	}
	switch a.Op {
	case guard.OpAdd:
		return lf + rf, nil
	case guard.OpSub:
		return lf - rf, nil
	case guard.OpMul:
		return lf * rf, nil
	case guard.OpDiv:
		if rf == 0 {
			return nil, fmt.Errorf("guardeval: division by zero")
		}
		return lf / rf, nil
	default:
		return nil, fmt.Errorf("guardeval: unknown arithmetic operator %q", a.Op)
	}
}

func evalMembership(ctx Context, m *guard.MembershipNode) (interface{}, error) {
	value, err := Eval(ctx, m.Value)
	if err != nil {
		return nil, err
	}
	collection, err := Eval(ctx, m.Collection)
	if err != nil {
		return nil, err
	}
	items, ok := collection.([]interface{})
	if !ok {
		return nil, fmt.Errorf("guardeval: membership collection is not a list")
	}
	for _, item := range items {
		if looseEqual(value, item) {
			return true, nil
		}
	}
	return false, nil
}

func evalFuncCall(ctx Context, f *guard.FuncCallNode) (interface{}, error) {
	args := make([]interface{}, len(f.Args))
	for i, argNode := range f.Args {
		v, err := Eval(ctx, argNode)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch f.Name {
	case "abs":
		if len(args) != 1 {
			return nil, fmt.Errorf("guardeval: abs takes exactly one argument")
		}
		v, err := toFloat(args[0])
		if err != nil {
			return nil, err
		}
		if v < 0 {
			v = -v
		}
		return v, nil
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("guardeval: len takes exactly one argument")
		}
		return length(args[0])
	default:
		if ctx.Functions == nil {
			return nil, fmt.Errorf("guardeval: function %q is not registered in this context", f.Name)
		}
		fn, ok := ctx.Functions[f.Name]
		if !ok {
			return nil, fmt.Errorf("guardeval: function %q is not registered in this context", f.Name)
		}
		return fn(args)
	}
}

func length(v interface{}) (int, error) {
	switch t := v.(type) {
	case string:
		return len(t), nil
	case []interface{}:
		return len(t), nil
	case map[string]interface{}:
		return len(t), nil
	default:
		return 0, fmt.Errorf("guardeval: len() does not support %T", v)
	}
}

func toBool(v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("guardeval: expected boolean, got %T", v)
	}
}

func toFloat(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case json.Number:
		f, err := t.Float64()
		return f, err
	default:
		return 0, fmt.Errorf("guardeval: expected numeric value, got %T", v)
	}
}

func looseEqual(a, b interface{}) bool {
	af, aerr := toFloat(a)
	bf, berr := toFloat(b)
	if aerr == nil && berr == nil {
		return af == bf
	}
	return a == b
}
