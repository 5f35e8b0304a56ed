package query

import (
	"cmp"
	"slices"

	"github.com/gnemet/gridquery/expr"
)

// Source is a queryable sequence of items. Operations return a new Source;
// errors raised while filtering or ordering surface from Count or List.
type Source[T any] interface {
	Where(pred expr.Predicate[T]) Source[T]
	// OrderBy sorts stably by key. Nil keys sort first in ascending order.
	OrderBy(key func(T) (any, error), descending bool) Source[T]
	Skip(n int) Source[T]
	Take(n int) Source[T]
	Count() (int, error)
	List() ([]T, error)
}

// SliceSource is an in-memory Source. Each operation produces a new slice; the
// input slice is never reordered.
type SliceSource[T any] struct {
	items []T
	err   error
}

// FromSlice wraps items.
func FromSlice[T any](items []T) *SliceSource[T] {
	return &SliceSource[T]{items: items}
}

func (s *SliceSource[T]) Where(pred expr.Predicate[T]) Source[T] {
	if s.err != nil || pred == nil {
		return s
	}
	out := make([]T, 0, len(s.items))
	for _, it := range s.items {
		ok, err := pred(it)
		if err != nil {
			return &SliceSource[T]{err: err}
		}
		if ok {
			out = append(out, it)
		}
	}
	return &SliceSource[T]{items: out}
}

func (s *SliceSource[T]) OrderBy(key func(T) (any, error), descending bool) Source[T] {
	if s.err != nil {
		return s
	}
	type keyed struct {
		item T
		key  any
	}
	rows := make([]keyed, len(s.items))
	for i, it := range s.items {
		k, err := key(it)
		if err != nil {
			return &SliceSource[T]{err: err}
		}
		rows[i] = keyed{item: it, key: k}
	}
	slices.SortStableFunc(rows, func(a, b keyed) int {
		if descending {
			return Order(b.key, a.key)
		}
		return Order(a.key, b.key)
	})
	out := make([]T, len(rows))
	for i := range rows {
		out[i] = rows[i].item
	}
	return &SliceSource[T]{items: out}
}

func (s *SliceSource[T]) Skip(n int) Source[T] {
	if s.err != nil {
		return s
	}
	n = min(max(n, 0), len(s.items))
	return &SliceSource[T]{items: s.items[n:]}
}

func (s *SliceSource[T]) Take(n int) Source[T] {
	if s.err != nil {
		return s
	}
	n = min(max(n, 0), len(s.items))
	return &SliceSource[T]{items: s.items[:n:n]}
}

func (s *SliceSource[T]) Count() (int, error) { return len(s.items), s.err }

func (s *SliceSource[T]) List() ([]T, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.items, nil
}

// Order is the sort order of column values: nil first, then by value, falling
// back to display text for values that cannot be compared directly.
func Order(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	if n, ok := expr.CompareValues(a, b); ok {
		return n
	}
	return cmp.Compare(expr.Format(a), expr.Format(b))
}
