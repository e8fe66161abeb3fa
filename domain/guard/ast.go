// Package guard defines the restricted expression grammar used by policy
// guards and where-predicates (spec.md §4.5, §9 "Guard expressions"). The
// grammar is a closed set of tagged-variant node kinds, validated once at
// compile time (Validate) and evaluated totally over the validated tree
// (see internal/guardeval) — there is no escape hatch to arbitrary code.
package guard

import "fmt"

// NodeKind tags each variant of the restricted AST. This is the complete
// set; Validate rejects anything else at compile time, never at runtime
// (spec.md §9).
type NodeKind string

const (
	KindLiteral     NodeKind = "literal"
	KindFieldRef    NodeKind = "field_ref"
	KindComparison  NodeKind = "comparison"
	KindLogical     NodeKind = "logical"
	KindNot         NodeKind = "not"
	KindArithmetic  NodeKind = "arithmetic"
	KindTernary     NodeKind = "ternary"
	KindMembership  NodeKind = "membership"
	KindFuncCall    NodeKind = "func_call"
)

// CompareOp enumerates allowed comparison operators.
type CompareOp string

const (
	OpEq  CompareOp = "=="
	OpNeq CompareOp = "!="
	OpLt  CompareOp = "<"
	OpLte CompareOp = "<="
	OpGt  CompareOp = ">"
	OpGte CompareOp = ">="
)

// LogicalOp enumerates allowed boolean connectives.
type LogicalOp string

const (
	OpAnd LogicalOp = "and"
	OpOr  LogicalOp = "or"
)

// ArithOp enumerates allowed arithmetic operators.
type ArithOp string

const (
	OpAdd ArithOp = "+"
	OpSub ArithOp = "-"
	OpMul ArithOp = "*"
	OpDiv ArithOp = "/"
)

// AllowedFuncs is the closed allowlist of callable functions (spec.md §4.5).
// check_credit_limit is a host function supplied by the evaluation context
// (internal/guardeval.Context.Functions); abs and len are built in.
var AllowedFuncs = map[string]bool{
	"abs":                true,
	"len":                true,
	"check_credit_limit": true,
}

// Node is the sum type for every expression in the restricted grammar.
// Exactly one of the pointer fields below is non-nil, selected by Kind.
type Node struct {
	Kind NodeKind

	Literal    *LiteralNode
	FieldRef   *FieldRefNode
	Comparison *ComparisonNode
	Logical    *LogicalNode
	Not        *NotNode
	Arithmetic *ArithmeticNode
	Ternary    *TernaryNode
	Membership *MembershipNode
	FuncCall   *FuncCallNode
}

// LiteralNode holds a literal string/number/bool/nil value.
type LiteralNode struct {
	Value interface{}
}

// FieldRefNode addresses a field of the evaluation context by JSONPath,
// e.g. "$.payload.amount" or "payload.amount".
type FieldRefNode struct {
	Path string
}

// ComparisonNode compares two sub-expressions.
type ComparisonNode struct {
	Op    CompareOp
	Left  Node
	Right Node
}

// LogicalNode applies AND/OR across two or more operands.
type LogicalNode struct {
	Op       LogicalOp
	Operands []Node
}

// NotNode negates a boolean sub-expression.
type NotNode struct {
	Operand Node
}

// ArithmeticNode applies +-*/ to two sub-expressions.
type ArithmeticNode struct {
	Op    ArithOp
	Left  Node
	Right Node
}

// TernaryNode is `cond ? then : else`.
type TernaryNode struct {
	Cond Node
	Then Node
	Else Node
}

// MembershipNode tests `value in collection`.
type MembershipNode struct {
	Value      Node
	Collection Node
}

// FuncCallNode invokes a function from AllowedFuncs.
type FuncCallNode struct {
	Name string
	Args []Node
}

// Lit is a convenience constructor for a literal node.
func Lit(v interface{}) Node { return Node{Kind: KindLiteral, Literal: &LiteralNode{Value: v}} }

// Field is a convenience constructor for a field reference node.
func Field(path string) Node { return Node{Kind: KindFieldRef, FieldRef: &FieldRefNode{Path: path}} }

// Cmp is a convenience constructor for a comparison node.
func Cmp(op CompareOp, left, right Node) Node {
	return Node{Kind: KindComparison, Comparison: &ComparisonNode{Op: op, Left: left, Right: right}}
}

// And/Or are convenience constructors for logical nodes.
func And(operands ...Node) Node {
	return Node{Kind: KindLogical, Logical: &LogicalNode{Op: OpAnd, Operands: operands}}
}
func Or(operands ...Node) Node {
	return Node{Kind: KindLogical, Logical: &LogicalNode{Op: OpOr, Operands: operands}}
}

// Validate recursively rejects unknown node kinds, unknown operators, and
// calls to functions outside AllowedFuncs — compilation fails closed
// (spec.md §9: "Reject unknown node kinds at compile time").
func Validate(n Node) error {
	switch n.Kind {
	case KindLiteral:
		if n.Literal == nil {
			return fmt.Errorf("guard: literal node missing payload")
		}
	case KindFieldRef:
		if n.FieldRef == nil || n.FieldRef.Path == "" {
			return fmt.Errorf("guard: field_ref node missing path")
		}
	case KindComparison:
		if n.Comparison == nil {
			return fmt.Errorf("guard: comparison node missing payload")
		}
		switch n.Comparison.Op {
		case OpEq, OpNeq, OpLt, OpLte, OpGt, OpGte:
		default:
			return fmt.Errorf("guard: unknown comparison operator %q", n.Comparison.Op)
		}
		if err := Validate(n.Comparison.Left); err != nil {
			return err
		}
		if err := Validate(n.Comparison.Right); err != nil {
			return err
		}
	case KindLogical:
		if n.Logical == nil {
			return fmt.Errorf("guard: logical node missing payload")
		}
		switch n.Logical.Op {
		case OpAnd, OpOr:
		default:
			return fmt.Errorf("guard: unknown logical operator %q", n.Logical.Op)
		}
		if len(n.Logical.Operands) < 2 {
			return fmt.Errorf("guard: logical node requires at least two operands")
		}
		for _, op := range n.Logical.Operands {
			if err := Validate(op); err != nil {
				return err
			}
		}
	case KindNot:
		if n.Not == nil {
			return fmt.Errorf("guard: not node missing payload")
		}
		if err := Validate(n.Not.Operand); err != nil {
			return err
		}
	case KindArithmetic:
		if n.Arithmetic == nil {
			return fmt.Errorf("guard: arithmetic node missing payload")
		}
		switch n.Arithmetic.Op {
		case OpAdd, OpSub, OpMul, OpDiv:
		default:
			return fmt.Errorf("guard: unknown arithmetic operator %q", n.Arithmetic.Op)
		}
		if err := Validate(n.Arithmetic.Left); err != nil {
			return err
		}
		if err := Validate(n.Arithmetic.Right); err != nil {
			return err
		}
	case KindTernary:
		if n.Ternary == nil {
			return fmt.Errorf("guard: ternary node missing payload")
		}
		if err := Validate(n.Ternary.Cond); err != nil {
			return err
		}
		if err := Validate(n.Ternary.Then); err != nil {
			return err
		}
		if err := Validate(n.Ternary.Else); err != nil {
			return err
		}
	case KindMembership:
		if n.Membership == nil {
			return fmt.Errorf("guard: membership node missing payload")
		}
		if err := Validate(n.Membership.Value); err != nil {
			return err
		}
		if err := Validate(n.Membership.Collection); err != nil {
			return err
		}
	case KindFuncCall:
		if n.FuncCall == nil {
			return fmt.Errorf("guard: func_call node missing payload")
		}
		if !AllowedFuncs[n.FuncCall.Name] {
			return fmt.Errorf("guard: function %q is not in the allowlist", n.FuncCall.Name)
		}
		for _, arg := range n.FuncCall.Args {
			if err := Validate(arg); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("guard: unknown node kind %q", n.Kind)
	}
	return nil
}
