// Package expr defines the predicate expression tree shared by filters, global
// search and the query pipeline.
//
// Trees are built from a small closed set of node types over rows of type T.
// They can be inspected (to recover a filter's condition and operand), rendered
// for diagnostics and compiled into plain Go closures for evaluation.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gnemet/gridquery/fieldpath"
)

// Kind identifies a node type.
type Kind string

const (
	KindConstant  Kind = "CONSTANT"
	KindMember    Kind = "MEMBER"
	KindNullGuard Kind = "NULL_GUARD"
	KindCompare   Kind = "COMPARE"
	KindAnd       Kind = "AND"
	KindOr        Kind = "OR"
	KindNot       Kind = "NOT"
	KindCall      Kind = "CALL"
)

// Node is a predicate or value expression over T.
type Node[T any] interface {
	Kind() Kind
	String() string
	node(T)
}

// Op is a binary comparison operator.
type Op string

const (
	OpEqual          Op = "=="
	OpNotEqual       Op = "!="
	OpLess           Op = "<"
	OpLessOrEqual    Op = "<="
	OpGreater        Op = ">"
	OpGreaterOrEqual Op = ">="
)

// Func names a built-in call.
type Func string

const (
	// FuncFormat renders the target value as text.
	FuncFormat Func = "Format"
	// FuncIndexFold returns the index of the argument in the target after
	// case folding, or -1.
	FuncIndexFold     Func = "IndexFold"
	FuncHasPrefixFold Func = "HasPrefixFold"
	FuncHasSuffixFold Func = "HasSuffixFold"
	FuncEqualFold     Func = "EqualFold"
	// FuncIsBlank reports whether the target is nil or the empty string.
	FuncIsBlank Func = "IsBlank"
	FuncIsTrue  Func = "IsTrue"
	FuncIsFalse Func = "IsFalse"
)

// Constant is a literal value.
type Constant[T any] struct {
	Value any
}

// Member reads the value at Path.
type Member[T any] struct {
	Path *fieldpath.Path[T]
}

// NullGuard is true when the value at Path is not nil.
type NullGuard[T any] struct {
	Path *fieldpath.Path[T]
}

// Compare applies Op to two value expressions.
type Compare[T any] struct {
	Op          Op
	Left, Right Node[T]
}

// And is a short-circuit conjunction.
type And[T any] struct {
	Left, Right Node[T]
}

// Or is a short-circuit disjunction.
type Or[T any] struct {
	Left, Right Node[T]
}

// Not negates a boolean expression.
type Not[T any] struct {
	Operand Node[T]
}

// Call invokes a built-in function on Target with optional arguments.
type Call[T any] struct {
	Func   Func
	Target Node[T]
	Args   []Node[T]
}

func (*Constant[T]) Kind() Kind  { return KindConstant }
func (*Member[T]) Kind() Kind    { return KindMember }
func (*NullGuard[T]) Kind() Kind { return KindNullGuard }
func (*Compare[T]) Kind() Kind   { return KindCompare }
func (*And[T]) Kind() Kind       { return KindAnd }
func (*Or[T]) Kind() Kind        { return KindOr }
func (*Not[T]) Kind() Kind       { return KindNot }
func (*Call[T]) Kind() Kind      { return KindCall }

func (*Constant[T]) node(T)  {}
func (*Member[T]) node(T)    {}
func (*NullGuard[T]) node(T) {}
func (*Compare[T]) node(T)   {}
func (*And[T]) node(T)       {}
func (*Or[T]) node(T)        {}
func (*Not[T]) node(T)       {}
func (*Call[T]) node(T)      {}

func (n *Constant[T]) String() string {
	switch v := n.Value.(type) {
	case nil:
		return "nil"
	case string:
		return strconv.Quote(v)
	case time.Time:
		return strconv.Quote(v.Format(time.RFC3339Nano))
	default:
		return fmt.Sprint(v)
	}
}

func (n *Member[T]) String() string    { return "x." + n.Path.String() }
func (n *NullGuard[T]) String() string { return "(x." + n.Path.String() + " != nil)" }

func (n *Compare[T]) String() string {
	return "(" + n.Left.String() + " " + string(n.Op) + " " + n.Right.String() + ")"
}

func (n *And[T]) String() string { return "(" + n.Left.String() + " && " + n.Right.String() + ")" }
func (n *Or[T]) String() string  { return "(" + n.Left.String() + " || " + n.Right.String() + ")" }
func (n *Not[T]) String() string { return "!" + n.Operand.String() }

func (n *Call[T]) String() string {
	var b strings.Builder
	b.WriteString(string(n.Func))
	b.WriteByte('(')
	b.WriteString(n.Target.String())
	for _, a := range n.Args {
		b.WriteString(", ")
		b.WriteString(a.String())
	}
	b.WriteByte(')')
	return b.String()
}

// True returns the tautology constant.
func True[T any]() Node[T] { return &Constant[T]{Value: true} }

// IsTrue reports whether n is the constant true.
func IsTrue[T any](n Node[T]) bool {
	c, ok := n.(*Constant[T])
	if !ok {
		return false
	}
	b, ok := c.Value.(bool)
	return ok && b
}

// AndAll folds nodes left to right with And. Nil entries are skipped and an
// empty list yields True.
func AndAll[T any](nodes ...Node[T]) Node[T] {
	var out Node[T]
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if out == nil {
			out = n
			continue
		}
		out = &And[T]{Left: out, Right: n}
	}
	if out == nil {
		return True[T]()
	}
	return out
}

// OrAll folds nodes left to right with Or. Nil entries are skipped and an empty
// list yields nil.
func OrAll[T any](nodes ...Node[T]) Node[T] {
	var out Node[T]
	for _, n := range nodes {
		if n == nil {
			continue
		}
		if out == nil {
			out = n
			continue
		}
		out = &Or[T]{Left: out, Right: n}
	}
	return out
}

// Walk visits n and its children depth first, left to right, until fn returns
// false.
func Walk[T any](n Node[T], fn func(Node[T]) bool) bool {
	if n == nil {
		return true
	}
	if !fn(n) {
		return false
	}
	switch x := n.(type) {
	case *Compare[T]:
		return Walk(x.Left, fn) && Walk(x.Right, fn)
	case *And[T]:
		return Walk(x.Left, fn) && Walk(x.Right, fn)
	case *Or[T]:
		return Walk(x.Left, fn) && Walk(x.Right, fn)
	case *Not[T]:
		return Walk(x.Operand, fn)
	case *Call[T]:
		if !Walk(x.Target, fn) {
			return false
		}
		for _, a := range x.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	}
	return true
}
