package guardeval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acctkernel/ledger/domain/guard"
)

func TestEvalFieldRefFromPayload(t *testing.T) {
	ctx := Context{Payload: map[string]interface{}{"amount": 150.0, "currency": "USD"}}
	node := guard.Cmp(guard.OpGt, guard.Field("payload.amount"), guard.Lit(100.0))
	require.NoError(t, guard.Validate(node))

	ok, err := EvalBool(ctx, node)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvalLogicalShortCircuitsOnFalse(t *testing.T) {
	ctx := Context{Payload: map[string]interface{}{"amount": 50.0}}
	node := guard.And(
		guard.Cmp(guard.OpGt, guard.Field("payload.amount"), guard.Lit(100.0)),
		guard.Cmp(guard.OpEq, guard.Field("payload.missing_field"), guard.Lit(1.0)),
	)
	ok, err := EvalBool(ctx, node)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEvalArithmeticDivisionByZero(t *testing.T) {
	ctx := Context{}
	node := guard.Node{Kind: guard.KindArithmetic, Arithmetic: &guard.ArithmeticNode{
		Op: guard.OpDiv, Left: guard.Lit(1.0), Right: guard.Lit(0.0),
	}}
	_, err := Eval(ctx, node)
	assert.Error(t, err)
}

func TestEvalFuncCallAbsAndLen(t *testing.T) {
	ctx := Context{}
	absNode := guard.Node{Kind: guard.KindFuncCall, FuncCall: &guard.FuncCallNode{
		Name: "abs", Args: []guard.Node{guard.Lit(-42.0)},
	}}
	v, err := Eval(ctx, absNode)
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)

	lenNode := guard.Node{Kind: guard.KindFuncCall, FuncCall: &guard.FuncCallNode{
		Name: "len", Args: []guard.Node{guard.Lit("hello")},
	}}
	v, err = Eval(ctx, lenNode)
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestEvalFuncCallHostFunction(t *testing.T) {
	ctx := Context{
		Functions: map[string]func(args []interface{}) (interface{}, error){
			"check_credit_limit": func(args []interface{}) (interface{}, error) {
				return true, nil
			},
		},
	}
	node := guard.Node{Kind: guard.KindFuncCall, FuncCall: &guard.FuncCallNode{
		Name: "check_credit_limit", Args: []guard.Node{guard.Lit("party-1")},
	}}
	v, err := Eval(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestEvalFuncCallUnregisteredFails(t *testing.T) {
	ctx := Context{}
	node := guard.Node{Kind: guard.KindFuncCall, FuncCall: &guard.FuncCallNode{
		Name: "check_credit_limit", Args: nil,
	}}
	_, err := Eval(ctx, node)
	assert.Error(t, err)
}

func TestEvalTernary(t *testing.T) {
	ctx := Context{Payload: map[string]interface{}{"flag": true}}
	node := guard.Node{Kind: guard.KindTernary, Ternary: &guard.TernaryNode{
		Cond: guard.Field("payload.flag"),
		Then: guard.Lit("yes"),
		Else: guard.Lit("no"),
	}}
	v, err := Eval(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, "yes", v)
}

func TestEvalMembership(t *testing.T) {
	ctx := Context{}
	node := guard.Node{Kind: guard.KindMembership, Membership: &guard.MembershipNode{
		Value: guard.Lit("USD"),
		Collection: guard.Node{Kind: guard.KindLiteral, Literal: &guard.LiteralNode{
			Value: []interface{}{"USD", "EUR"},
		}},
	}}
	v, err := Eval(ctx, node)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}
