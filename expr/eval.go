package expr

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gnemet/gridquery/fieldpath"
)

// ErrRowAccess is returned when evaluation reaches a member through a nil
// intermediate value.
var ErrRowAccess = fieldpath.ErrRowAccess

// ErrType is returned when a node receives a value of the wrong type, for
// example a non-boolean operand to And.
var ErrType = errors.New("expression type mismatch")

// Predicate is a compiled boolean expression.
type Predicate[T any] func(T) (bool, error)

type valueFunc[T any] func(T) (any, error)

// Compile turns n into a closure. The tree is walked once; the returned
// predicate does no further dispatch on node types. A nil node compiles to a
// predicate that accepts every item.
func Compile[T any](n Node[T]) Predicate[T] {
	if n == nil {
		return func(T) (bool, error) { return true, nil }
	}
	return compileBool(n)
}

// Eval evaluates a value expression against item.
func Eval[T any](n Node[T], item T) (any, error) {
	return compileValue(n)(item)
}

// Test evaluates a boolean expression against item.
func Test[T any](n Node[T], item T) (bool, error) {
	return Compile(n)(item)
}

func compileBool[T any](n Node[T]) Predicate[T] {
	switch x := n.(type) {
	case *Constant[T]:
		b, ok := x.Value.(bool)
		if !ok {
			err := fmt.Errorf("%w: constant %s is not boolean", ErrType, x)
			return func(T) (bool, error) { return false, err }
		}
		return func(T) (bool, error) { return b, nil }
	case *And[T]:
		l, r := compileBool(x.Left), compileBool(x.Right)
		return func(item T) (bool, error) {
			ok, err := l(item)
			if err != nil || !ok {
				return false, err
			}
			return r(item)
		}
	case *Or[T]:
		l, r := compileBool(x.Left), compileBool(x.Right)
		return func(item T) (bool, error) {
			ok, err := l(item)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			return r(item)
		}
	case *Not[T]:
		inner := compileBool(x.Operand)
		return func(item T) (bool, error) {
			ok, err := inner(item)
			return !ok && err == nil, err
		}
	}

	v := compileValue(n)
	desc := n.String()
	return func(item T) (bool, error) {
		out, err := v(item)
		if err != nil {
			return false, err
		}
		b, ok := out.(bool)
		if !ok {
			return false, fmt.Errorf("%w: %s yields %T, not bool", ErrType, desc, out)
		}
		return b, nil
	}
}

func compileValue[T any](n Node[T]) valueFunc[T] {
	switch x := n.(type) {
	case *Constant[T]:
		v := x.Value
		return func(T) (any, error) { return v, nil }
	case *Member[T]:
		return x.Path.Eval
	case *NullGuard[T]:
		p := x.Path
		return func(item T) (any, error) {
			v, err := p.Eval(item)
			if err != nil {
				return nil, err
			}
			return v != nil, nil
		}
	case *Compare[T]:
		l, r, op := compileValue(x.Left), compileValue(x.Right), x.Op
		return func(item T) (any, error) {
			a, err := l(item)
			if err != nil {
				return nil, err
			}
			b, err := r(item)
			if err != nil {
				return nil, err
			}
			return compare(op, a, b)
		}
	case *And[T], *Or[T], *Not[T]:
		p := compileBool(n)
		return func(item T) (any, error) { return p(item) }
	case *Call[T]:
		return compileCall(x)
	}
	err := fmt.Errorf("%w: unknown node %T", ErrType, n)
	return func(T) (any, error) { return nil, err }
}

func compare(op Op, a, b any) (bool, error) {
	if a == nil || b == nil {
		switch op {
		case OpEqual:
			return a == nil && b == nil, nil
		case OpNotEqual:
			return !(a == nil && b == nil), nil
		default:
			return false, nil
		}
	}
	c, ok := CompareValues(a, b)
	if !ok {
		return false, fmt.Errorf("%w: cannot compare %T with %T", ErrType, a, b)
	}
	switch op {
	case OpEqual:
		return c == 0, nil
	case OpNotEqual:
		return c != 0, nil
	case OpLess:
		return c < 0, nil
	case OpLessOrEqual:
		return c <= 0, nil
	case OpGreater:
		return c > 0, nil
	case OpGreaterOrEqual:
		return c >= 0, nil
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrType, op)
}

func compileCall[T any](c *Call[T]) valueFunc[T] {
	target := compileValue(c.Target)
	args := make([]valueFunc[T], len(c.Args))
	for i, a := range c.Args {
		args[i] = compileValue(a)
	}
	fn := c.Func

	return func(item T) (any, error) {
		v, err := target(item)
		if err != nil {
			return nil, err
		}
		vals := make([]any, len(args))
		for i, a := range args {
			if vals[i], err = a(item); err != nil {
				return nil, err
			}
		}
		return apply(fn, v, vals)
	}
}

func apply(fn Func, v any, args []any) (any, error) {
	switch fn {
	case FuncFormat:
		return Format(v), nil
	case FuncIsBlank:
		return v == nil || text(v) == "", nil
	case FuncIsTrue, FuncIsFalse:
		if v == nil {
			return false, nil
		}
		rv := reflect.ValueOf(v)
		if rv.Kind() != reflect.Bool {
			return nil, fmt.Errorf("%w: %s on %T", ErrType, fn, v)
		}
		return rv.Bool() == (fn == FuncIsTrue), nil
	}

	if len(args) != 1 {
		return nil, fmt.Errorf("%w: %s takes one argument, got %d", ErrType, fn, len(args))
	}
	s, sub := Fold(text(v)), Fold(text(args[0]))
	switch fn {
	case FuncIndexFold:
		return strings.Index(s, sub), nil
	case FuncHasPrefixFold:
		return strings.HasPrefix(s, sub), nil
	case FuncHasSuffixFold:
		return strings.HasSuffix(s, sub), nil
	case FuncEqualFold:
		return s == sub, nil
	}
	return nil, fmt.Errorf("%w: unknown function %q", ErrType, fn)
}

// AccessError names the nil segment behind an ErrRowAccess.
type AccessError = fieldpath.AccessError
