package expr

import (
	"fmt"
	"strings"

	"github.com/parth1006/workflow-engine/types"
)

// Expr is a parsed guard condition. An Expr is immutable and safe for
// concurrent evaluation against independent states.
type Expr struct {
	src  string
	root node
}

// Source returns the original expression text.
func (e *Expr) Source() string { return e.src }

// Eval walks the expression tree against the given state and returns
// the boolean result. Errors carry the CONDITION_EVALUATION code:
// referencing a missing state key, comparing incomparable operands, or
// a non-boolean term all fail evaluation rather than defaulting.
func (e *Expr) Eval(state types.State) (bool, error) {
	return e.root.eval(state)
}

// Paths returns every state field path the expression references, in
// source order. Useful for validating a graph against sample state.
func (e *Expr) Paths() [][]string {
	var out [][]string
	e.root.collectPaths(&out)
	return out
}

// node is the closed set of expression tree variants.
type node interface {
	eval(state types.State) (bool, error)
	collectPaths(out *[][]string)
}

type cmpOp string

const (
	opEq cmpOp = "=="
	opNe cmpOp = "!="
	opLt cmpOp = "<"
	opLe cmpOp = "<="
	opGt cmpOp = ">"
	opGe cmpOp = ">="
)

type litKind int

const (
	litNumber litKind = iota
	litString
	litBool
	litNull
)

// literal is a typed constant operand.
type literal struct {
	kind litKind
	num  float64
	str  string
	b    bool
}

func (l literal) String() string {
	switch l.kind {
	case litNumber:
		return fmt.Sprintf("%v", l.num)
	case litString:
		return fmt.Sprintf("%q", l.str)
	case litBool:
		return fmt.Sprintf("%v", l.b)
	default:
		return "null"
	}
}

// andNode and orNode short-circuit left to right.
type andNode struct{ left, right node }

func (n *andNode) eval(state types.State) (bool, error) {
	l, err := n.left.eval(state)
	if err != nil {
		return false, err
	}
	if !l {
		return false, nil
	}
	return n.right.eval(state)
}

func (n *andNode) collectPaths(out *[][]string) {
	n.left.collectPaths(out)
	n.right.collectPaths(out)
}

type orNode struct{ left, right node }

func (n *orNode) eval(state types.State) (bool, error) {
	l, err := n.left.eval(state)
	if err != nil {
		return false, err
	}
	if l {
		return true, nil
	}
	return n.right.eval(state)
}

func (n *orNode) collectPaths(out *[][]string) {
	n.left.collectPaths(out)
	n.right.collectPaths(out)
}

type notNode struct{ inner node }

func (n *notNode) eval(state types.State) (bool, error) {
	v, err := n.inner.eval(state)
	if err != nil {
		return false, err
	}
	return !v, nil
}

func (n *notNode) collectPaths(out *[][]string) { n.inner.collectPaths(out) }

// constNode is a boolean literal used as a term.
type constNode struct{ val bool }

func (n *constNode) eval(types.State) (bool, error) { return n.val, nil }
func (n *constNode) collectPaths(*[][]string)       {}

// pathNode is a bare field reference used as a boolean term.
type pathNode struct{ path []string }

func (n *pathNode) eval(state types.State) (bool, error) {
	v, ok := state.Get(n.path)
	if !ok {
		return false, missingKeyErr(n.path)
	}
	b, ok := v.(bool)
	if !ok {
		return false, types.NewError(types.ErrConditionEvaluation,
			fmt.Sprintf("field %q is not a boolean (got %T)", strings.Join(n.path, "."), v))
	}
	return b, nil
}

func (n *pathNode) collectPaths(out *[][]string) { *out = append(*out, n.path) }

// cmpNode compares a state field against a literal.
type cmpNode struct {
	path []string
	op   cmpOp
	lit  literal
}

func (n *cmpNode) collectPaths(out *[][]string) { *out = append(*out, n.path) }

func (n *cmpNode) eval(state types.State) (bool, error) {
	v, ok := state.Get(n.path)
	if !ok {
		return false, missingKeyErr(n.path)
	}

	switch n.lit.kind {
	case litNumber:
		f, ok := toFloat(v)
		if !ok {
			return false, n.typeErr(v, "number")
		}
		return compareFloats(f, n.lit.num, n.op), nil

	case litString:
		s, ok := v.(string)
		if !ok {
			return false, n.typeErr(v, "string")
		}
		return compareStrings(s, n.lit.str, n.op)

	case litBool:
		b, ok := v.(bool)
		if !ok {
			return false, n.typeErr(v, "boolean")
		}
		if n.op != opEq && n.op != opNe {
			return false, types.NewError(types.ErrConditionEvaluation,
				fmt.Sprintf("operator %s is not defined for booleans", n.op))
		}
		return (b == n.lit.b) == (n.op == opEq), nil

	default: // litNull
		if n.op != opEq && n.op != opNe {
			return false, types.NewError(types.ErrConditionEvaluation,
				fmt.Sprintf("operator %s is not defined for null", n.op))
		}
		return (v == nil) == (n.op == opEq), nil
	}
}

func (n *cmpNode) typeErr(v any, want string) error {
	return types.NewError(types.ErrConditionEvaluation,
		fmt.Sprintf("field %q: cannot compare %T against %s literal %s",
			strings.Join(n.path, "."), v, want, n.lit))
}

func missingKeyErr(path []string) error {
	return types.NewError(types.ErrConditionEvaluation,
		fmt.Sprintf("expression references unknown state key %q", strings.Join(path, ".")))
}

func compareFloats(a, b float64, op cmpOp) bool {
	switch op {
	case opEq:
		return a == b
	case opNe:
		return a != b
	case opLt:
		return a < b
	case opLe:
		return a <= b
	case opGt:
		return a > b
	default:
		return a >= b
	}
}

func compareStrings(a, b string, op cmpOp) (bool, error) {
	switch op {
	case opEq:
		return a == b, nil
	case opNe:
		return a != b, nil
	case opLt:
		return a < b, nil
	case opLe:
		return a <= b, nil
	case opGt:
		return a > b, nil
	default:
		return a >= b, nil
	}
}

// toFloat widens every numeric type JSON decoding or Go actions may put
// into state. Booleans and strings are deliberately not coerced.
func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	default:
		return 0, false
	}
}
