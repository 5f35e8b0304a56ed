package query

import (
	"strings"

	"github.com/gnemet/gridquery/expr"
)

// ComposeColumnFilters ANDs the active filters of cols in order. With no
// active filter the result is the constant true.
func ComposeColumnFilters[T any](cols []*Column[T]) expr.Node[T] {
	var nodes []expr.Node[T]
	for _, c := range cols {
		if c.Filter != nil {
			nodes = append(nodes, c.Filter)
		}
	}
	return expr.AndAll(nodes...)
}

// ComposeGlobalSearch builds the free-text search predicate. Text is split on
// whitespace; a row matches when every keyword is contained, ignoring case, in
// the formatted value of at least one searchable column. Blank text yields the
// constant true. A keyword with no searchable column to match against matches
// nothing.
func ComposeGlobalSearch[T any](text string, cols []*Column[T]) expr.Node[T] {
	keywords := strings.Fields(text)
	if len(keywords) == 0 {
		return expr.True[T]()
	}

	terms := make([]expr.Node[T], 0, len(keywords))
	for _, kw := range keywords {
		var alts []expr.Node[T]
		for _, c := range cols {
			if c.Path == nil || c.NoSearch {
				continue
			}
			alts = append(alts, searchTerm(c, kw))
		}
		match := expr.OrAll(alts...)
		if match == nil {
			match = &expr.Constant[T]{Value: false}
		}
		terms = append(terms, match)
	}
	return expr.AndAll(terms...)
}

func searchTerm[T any](c *Column[T], keyword string) expr.Node[T] {
	formatted := &expr.Call[T]{Func: expr.FuncFormat, Target: &expr.Member[T]{Path: c.Path}}
	contains := &expr.Compare[T]{
		Op:    expr.OpGreaterOrEqual,
		Left:  &expr.Call[T]{Func: expr.FuncIndexFold, Target: formatted, Args: []expr.Node[T]{&expr.Constant[T]{Value: keyword}}},
		Right: &expr.Constant[T]{Value: 0},
	}
	return &expr.And[T]{Left: expr.CreateNullChecks(c.Path, false), Right: contains}
}
