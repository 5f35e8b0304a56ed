package filter

import (
	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
)

// stringFactory matches text case-insensitively against the formatted field
// value.
type stringFactory[T any] struct{}

func (stringFactory[T]) Kind() Kind { return KindString }

func (stringFactory[T]) Build(path *fieldpath.Path[T], cond Condition, operand string) (expr.Node[T], error) {
	if err := check(KindString, cond); err != nil {
		return nil, err
	}
	text, ok := operandText(cond, operand)
	if !ok {
		return nil, nil
	}

	m := member(path)
	var formatted expr.Node[T] = call(expr.FuncFormat, m)
	arg := constant[T](text)

	var core expr.Node[T]
	switch cond {
	case Contains:
		core = &expr.Compare[T]{Op: expr.OpGreaterOrEqual, Left: call(expr.FuncIndexFold, formatted, arg), Right: constant[T](0)}
	case DoesNotContain:
		core = &expr.Compare[T]{Op: expr.OpLessOrEqual, Left: call(expr.FuncIndexFold, formatted, arg), Right: constant[T](-1)}
	case StartsWith:
		core = call(expr.FuncHasPrefixFold, formatted, arg)
	case EndsWith:
		core = call(expr.FuncHasSuffixFold, formatted, arg)
	case IsEqualTo:
		core = call(expr.FuncEqualFold, formatted, arg)
	case IsNotEqualTo:
		core = &expr.Not[T]{Operand: call(expr.FuncEqualFold, formatted, arg)}
	case IsNullOrEmpty:
		core = call(expr.FuncIsBlank, m)
	case IsNotNullOrEmpty:
		core = &expr.Not[T]{Operand: call(expr.FuncIsBlank, m)}
	}
	return guarded(path, cond, core), nil
}

func (stringFactory[T]) Recover(pred expr.Node[T]) (Condition, string, error) {
	core, err := coreOf(KindString, pred)
	if err != nil {
		return "", "", err
	}

	switch x := core.(type) {
	case *expr.Compare[T]:
		c, ok := x.Left.(*expr.Call[T])
		if !ok || c.Func != expr.FuncIndexFold {
			break
		}
		arg, ok := argText(c)
		if !ok {
			break
		}
		switch x.Op {
		case expr.OpGreaterOrEqual:
			return Contains, arg, nil
		case expr.OpLessOrEqual:
			return DoesNotContain, arg, nil
		}
	case *expr.Call[T]:
		if x.Func == expr.FuncIsBlank {
			return IsNullOrEmpty, "", nil
		}
		arg, ok := argText(x)
		if !ok {
			break
		}
		switch x.Func {
		case expr.FuncHasPrefixFold:
			return StartsWith, arg, nil
		case expr.FuncHasSuffixFold:
			return EndsWith, arg, nil
		case expr.FuncEqualFold:
			return IsEqualTo, arg, nil
		}
	case *expr.Not[T]:
		c, ok := x.Operand.(*expr.Call[T])
		if !ok {
			break
		}
		if c.Func == expr.FuncIsBlank {
			return IsNotNullOrEmpty, "", nil
		}
		if arg, ok := argText(c); ok && c.Func == expr.FuncEqualFold {
			return IsNotEqualTo, arg, nil
		}
	}
	return "", "", unrecognized(KindString, core.String())
}

func argText[T any](c *expr.Call[T]) (string, bool) {
	if len(c.Args) != 1 {
		return "", false
	}
	k, ok := c.Args[0].(*expr.Constant[T])
	if !ok {
		return "", false
	}
	s, ok := k.Value.(string)
	return s, ok
}
