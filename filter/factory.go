// Package filter builds column filter predicates from a condition and operand
// text, and recovers the condition and operand from a built predicate.
//
// Every predicate a Factory builds has the same outer shape:
//
//	And(null checks for the field path, core test)
//
// which lets Recover find the core test without knowing how deep the path is,
// and lets a filter be persisted as a Spec and rebuilt later.
package filter

import (
	"fmt"
	"strings"

	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
)

// Factory builds and recovers predicates for one filter kind.
type Factory[T any] interface {
	Kind() Kind

	// Build returns the guarded predicate for cond over path. A blank operand
	// for a condition that takes one yields a nil node: the filter is inactive.
	Build(path *fieldpath.Path[T], cond Condition, operand string) (expr.Node[T], error)

	// Recover returns the condition and canonical operand text of a predicate
	// produced by Build.
	Recover(pred expr.Node[T]) (Condition, string, error)
}

// For returns the factory of kind. The KindCustomLookup factory returned here
// accepts any value convertible to the field type; use Lookup to restrict it
// to a fixed option set.
func For[T any](kind Kind) (Factory[T], error) {
	switch kind {
	case KindString:
		return stringFactory[T]{}, nil
	case KindNumber:
		return &comparisonFactory[T]{kind: KindNumber, parse: parseNumber, format: formatNumber}, nil
	case KindDate:
		return &comparisonFactory[T]{kind: KindDate, parse: parseDate, format: formatDate}, nil
	case KindEnum:
		return &comparisonFactory[T]{kind: KindEnum, parse: parseEnum, format: formatEnum}, nil
	case KindBoolean:
		return booleanFactory[T]{}, nil
	case KindCustomLookup:
		return Lookup[T](nil), nil
	}
	return nil, fmt.Errorf("filter: no factory for kind %q", kind)
}

// Lookup returns a KindCustomLookup factory whose operands must match one of
// options, either by display text or by value.
func Lookup[T any](options []any) Factory[T] {
	return &comparisonFactory[T]{kind: KindCustomLookup, parse: lookupParser(options), format: expr.Format}
}

func check(kind Kind, cond Condition) error {
	if !Supports(kind, cond) {
		return &ConditionError{Kind: kind, Condition: cond}
	}
	return nil
}

// operandText trims operand; ok is false when the filter should stay inactive.
func operandText(cond Condition, operand string) (string, bool) {
	text := strings.TrimSpace(operand)
	if TakesOperand(cond) && text == "" {
		return "", false
	}
	return text, true
}

func guarded[T any](path *fieldpath.Path[T], cond Condition, core expr.Node[T]) expr.Node[T] {
	return &expr.And[T]{Left: expr.CreateNullChecks(path, IsNullity(cond)), Right: core}
}

func coreOf[T any](kind Kind, pred expr.Node[T]) (expr.Node[T], error) {
	and, ok := pred.(*expr.And[T])
	if !ok || and.Right == nil {
		return nil, unrecognized(kind, describe(pred))
	}
	return and.Right, nil
}

func describe[T any](n expr.Node[T]) string {
	if n == nil {
		return "<nil>"
	}
	return n.String()
}

func member[T any](path *fieldpath.Path[T]) expr.Node[T] { return &expr.Member[T]{Path: path} }

func constant[T any](v any) expr.Node[T] { return &expr.Constant[T]{Value: v} }

func call[T any](fn expr.Func, target expr.Node[T], args ...expr.Node[T]) *expr.Call[T] {
	return &expr.Call[T]{Func: fn, Target: target, Args: args}
}

// recoverNullity recognises the Compare(==|!=, m, nil) core shared by every
// kind except String.
func recoverNullity[T any](n expr.Node[T]) (Condition, bool) {
	c, ok := n.(*expr.Compare[T])
	if !ok {
		return "", false
	}
	k, ok := c.Right.(*expr.Constant[T])
	if !ok || k.Value != nil {
		return "", false
	}
	switch c.Op {
	case expr.OpEqual:
		return IsNull, true
	case expr.OpNotEqual:
		return IsNotNull, true
	}
	return "", false
}

func nullityCore[T any](path *fieldpath.Path[T], cond Condition) expr.Node[T] {
	op := expr.OpEqual
	if cond == IsNotNull {
		op = expr.OpNotEqual
	}
	return &expr.Compare[T]{Op: op, Left: member(path), Right: constant[T](nil)}
}
