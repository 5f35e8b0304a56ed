package filter

import (
	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
)

type booleanFactory[T any] struct{}

func (booleanFactory[T]) Kind() Kind { return KindBoolean }

func (booleanFactory[T]) Build(path *fieldpath.Path[T], cond Condition, _ string) (expr.Node[T], error) {
	if err := check(KindBoolean, cond); err != nil {
		return nil, err
	}
	var core expr.Node[T]
	switch cond {
	case True:
		core = call(expr.FuncIsTrue, member(path))
	case False:
		core = call(expr.FuncIsFalse, member(path))
	default:
		core = nullityCore(path, cond)
	}
	return guarded(path, cond, core), nil
}

func (booleanFactory[T]) Recover(pred expr.Node[T]) (Condition, string, error) {
	core, err := coreOf(KindBoolean, pred)
	if err != nil {
		return "", "", err
	}
	if cond, ok := recoverNullity(core); ok {
		return cond, "", nil
	}
	if c, ok := core.(*expr.Call[T]); ok {
		switch c.Func {
		case expr.FuncIsTrue:
			return True, "", nil
		case expr.FuncIsFalse:
			return False, "", nil
		}
	}
	return "", "", unrecognized(KindBoolean, core.String())
}
