package query

import (
	"errors"
	"fmt"

	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
	"github.com/gnemet/gridquery/filter"
)

// LookupOption is one entry of a column's fixed value list.
type LookupOption struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// Column describes one grid column: what it reads, how it filters, sorts and
// aggregates. Columns are treated as values; the With* methods return modified
// copies so a published column list never changes underneath a running query.
type Column[T any] struct {
	Name  string
	Title string
	// Path is nil for display-only columns.
	Path *fieldpath.Path[T]
	// Kind overrides the filter kind derived from Path and Lookup.
	Kind filter.Kind
	// Format is a fmt verb used by Render, e.g. "%.2f".
	Format string
	Lookup []LookupOption

	Sortable       bool
	SortActive     bool
	SortDescending bool
	Aggregate      AggregateOp
	// NoSearch excludes the column from global search.
	NoSearch bool

	// Filter is the active predicate, nil when the column is not filtered.
	Filter expr.Node[T]

	compiled expr.Predicate[T]
}

// NewColumn returns a sortable column over path titled name.
func NewColumn[T any](name string, path *fieldpath.Path[T]) *Column[T] {
	return &Column[T]{Name: name, Title: name, Path: path, Sortable: path != nil}
}

// FilterKind returns Kind when set, KindCustomLookup for columns with lookup
// options, and otherwise the kind of the path's value type.
func (c *Column[T]) FilterKind() filter.Kind {
	switch {
	case c.Kind != filter.KindNone:
		return c.Kind
	case len(c.Lookup) > 0:
		return filter.KindCustomLookup
	case c.Path == nil:
		return filter.KindNone
	}
	return filter.KindOf(c.Path.NonNullableType())
}

// Filterable reports whether the column can carry a filter.
func (c *Column[T]) Filterable() bool {
	return c.Path != nil && c.FilterKind() != filter.KindNone
}

// Factory returns the predicate factory for the column's kind.
func (c *Column[T]) Factory() (filter.Factory[T], error) {
	if c.Path == nil {
		return nil, fmt.Errorf("query: column %s has no field", c.Name)
	}
	kind := c.FilterKind()
	if kind == filter.KindCustomLookup && len(c.Lookup) > 0 {
		values := make([]any, len(c.Lookup))
		for i, o := range c.Lookup {
			values[i] = o.Value
		}
		return filter.Lookup[T](values), nil
	}
	return filter.For[T](kind)
}

// BuildFilter builds the predicate for cond and operand without changing the
// column. A nil node means the operand was blank.
func (c *Column[T]) BuildFilter(cond filter.Condition, operand string) (expr.Node[T], error) {
	f, err := c.Factory()
	if err != nil {
		return nil, err
	}
	return f.Build(c.Path, cond, operand)
}

// WithFilter returns a copy of c carrying pred, compiled once here.
func (c *Column[T]) WithFilter(pred expr.Node[T]) *Column[T] {
	out := *c
	out.Filter = pred
	out.compiled = nil
	if pred != nil {
		out.compiled = expr.Compile(pred)
	}
	return &out
}

// WithSort returns a copy of c with the given sort state.
func (c *Column[T]) WithSort(active, descending bool) *Column[T] {
	out := *c
	out.SortActive = active
	out.SortDescending = descending
	return &out
}

// Predicate returns the compiled filter, or nil when the column is not
// filtered.
func (c *Column[T]) Predicate() expr.Predicate[T] {
	switch {
	case c.Filter == nil:
		return nil
	case c.compiled != nil:
		return c.compiled
	}
	return expr.Compile(c.Filter)
}

// Spec recovers the portable form of the active filter. ok is false when the
// column is not filtered.
func (c *Column[T]) Spec() (spec filter.Spec, ok bool, err error) {
	if c.Filter == nil {
		return filter.Spec{}, false, nil
	}
	f, err := c.Factory()
	if err != nil {
		return filter.Spec{}, false, err
	}
	spec, err = filter.ToSpec(f, c.Path, c.Filter)
	if err != nil {
		return filter.Spec{}, false, fmt.Errorf("query: column %s: %w", c.Name, err)
	}
	return spec, true, nil
}

// Render returns the cell text of item. Nil values and values behind a nil
// parent render blank.
func (c *Column[T]) Render(item T) string {
	if c.Path == nil {
		return ""
	}
	v, err := c.Path.Eval(item)
	if err != nil || v == nil {
		return ""
	}
	if c.Format != "" {
		return fmt.Sprintf(c.Format, v)
	}
	if label, ok := c.lookupLabel(v); ok {
		return label
	}
	return expr.Format(v)
}

func (c *Column[T]) lookupLabel(v any) (string, bool) {
	for _, o := range c.Lookup {
		if n, ok := expr.CompareValues(o.Value, v); ok && n == 0 && o.Label != "" {
			return o.Label, true
		}
	}
	return "", false
}

var errNoField = errors.New("column has no field")
