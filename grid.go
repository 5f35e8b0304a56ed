// Package gridquery is the query engine behind a paged, sortable, filterable
// data grid.
//
// A Grid holds the column list and the interactive state (filters, sort,
// search text, page) and runs queries either over an in-memory slice or
// through a remote query.Loader. Handler exposes the same engine over HTTP
// for catalog-described tables.
package gridquery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gnemet/gridquery/filter"
	"github.com/gnemet/gridquery/query"
)

// Record is a dynamic row. Column paths address it by key.
type Record = map[string]any

// ErrUnknownColumn is returned when a column name is not registered.
var ErrUnknownColumn = errors.New("unknown column")

// Grid is the state of one grid view. Its methods are meant to be called from
// a single goroutine; queries started by Update read an immutable snapshot of
// the columns.
type Grid[T any] struct {
	snap     atomic.Pointer[snapshot[T]]
	pipeline query.Pipeline[T]
	items    []T
	loader   query.Loader[T]
	logger   *slog.Logger

	search    string
	pageSize  int
	pageIndex int

	mu     sync.Mutex
	cancel context.CancelFunc
	result *query.Result[T]
}

type snapshot[T any] struct {
	version uint64
	columns []*query.Column[T]
}

// Option configures a Grid.
type Option[T any] func(*Grid[T])

// WithItems sets the in-memory rows.
func WithItems[T any](items []T) Option[T] {
	return func(g *Grid[T]) { g.items = items }
}

// WithLoader switches the grid to server-side paging through l.
func WithLoader[T any](l query.Loader[T]) Option[T] {
	return func(g *Grid[T]) { g.loader = l }
}

// WithPageSize sets the page size; zero or less shows every row.
func WithPageSize[T any](n int) Option[T] {
	return func(g *Grid[T]) { g.pageSize = n }
}

func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(g *Grid[T]) { g.logger = l }
}

// New returns an empty grid.
func New[T any](opts ...Option[T]) *Grid[T] {
	g := &Grid[T]{logger: slog.Default()}
	g.snap.Store(&snapshot[T]{})
	for _, o := range opts {
		o(g)
	}
	return g
}

// Columns returns the current column snapshot. The slice must not be
// modified.
func (g *Grid[T]) Columns() []*query.Column[T] {
	return g.snap.Load().columns
}

// Column returns the column called name, or nil.
func (g *Grid[T]) Column(name string) *query.Column[T] {
	for _, c := range g.Columns() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// AddColumn registers c after the existing columns.
func (g *Grid[T]) AddColumn(c *query.Column[T]) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("gridquery: column needs a name")
	}
	if g.Column(c.Name) != nil {
		return fmt.Errorf("gridquery: duplicate column %q", c.Name)
	}
	g.publish(append(slices.Clone(g.Columns()), c))
	return nil
}

// RemoveColumn unregisters the column called name.
func (g *Grid[T]) RemoveColumn(name string) bool {
	cols := g.Columns()
	i := slices.IndexFunc(cols, func(c *query.Column[T]) bool { return c.Name == name })
	if i < 0 {
		return false
	}
	g.publish(slices.Delete(slices.Clone(cols), i, i+1))
	return true
}

func (g *Grid[T]) publish(cols []*query.Column[T]) {
	prev := g.snap.Load()
	g.snap.Store(&snapshot[T]{version: prev.version + 1, columns: cols})
}

// replace swaps the column called name for fn's result.
func (g *Grid[T]) replace(name string, fn func(*query.Column[T]) *query.Column[T]) error {
	cols := slices.Clone(g.Columns())
	i := slices.IndexFunc(cols, func(c *query.Column[T]) bool { return c.Name == name })
	if i < 0 {
		return fmt.Errorf("gridquery: %w %q", ErrUnknownColumn, name)
	}
	cols[i] = fn(cols[i])
	g.publish(cols)
	return nil
}

// ApplyFilter sets the filter of column name. Operand text that does not
// convert to the column type is reported and leaves the current filter in
// place. A blank operand for a condition that takes one clears the filter.
func (g *Grid[T]) ApplyFilter(name string, cond filter.Condition, operand string) error {
	c := g.Column(name)
	if c == nil {
		return fmt.Errorf("gridquery: %w %q", ErrUnknownColumn, name)
	}
	node, err := c.BuildFilter(cond, operand)
	if err != nil {
		if errors.Is(err, filter.ErrOperandConversion) {
			g.logger.Debug("filter operand rejected", "column", name, "condition", cond, "error", err)
		}
		return err
	}
	g.logger.Debug("filter applied", "column", name, "condition", cond, "active", node != nil)
	return g.replace(name, func(c *query.Column[T]) *query.Column[T] { return c.WithFilter(node) })
}

// ClearFilter removes the filter of column name.
func (g *Grid[T]) ClearFilter(name string) error {
	return g.replace(name, func(c *query.Column[T]) *query.Column[T] { return c.WithFilter(nil) })
}

// ApplySpecs restores filters from their portable form. A spec addresses a
// column by field path or by name. Specs that fail are reported together;
// the others are still applied.
func (g *Grid[T]) ApplySpecs(specs []filter.Spec) error {
	var errs []error
	for _, s := range specs {
		c := g.columnFor(s.Field)
		if c == nil {
			errs = append(errs, fmt.Errorf("gridquery: %w %q", ErrUnknownColumn, s.Field))
			continue
		}
		if err := g.ApplyFilter(c.Name, s.Condition, s.FilterValue); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Grid[T]) columnFor(field string) *query.Column[T] {
	for _, c := range g.Columns() {
		if c.Path != nil && c.Path.String() == field {
			return c
		}
	}
	return g.Column(field)
}

// Specs exports the active filters.
func (g *Grid[T]) Specs() ([]filter.Spec, error) {
	var (
		specs []filter.Spec
		errs  []error
	)
	for _, c := range g.Columns() {
		s, ok, err := c.Spec()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			specs = append(specs, s)
		}
	}
	return specs, errors.Join(errs...)
}

// SortBy makes column name the sort column. Sorting by the current sort
// column flips its direction.
func (g *Grid[T]) SortBy(name string) error {
	c := g.Column(name)
	if c == nil {
		return fmt.Errorf("gridquery: %w %q", ErrUnknownColumn, name)
	}
	if !c.Sortable || c.Path == nil {
		return fmt.Errorf("gridquery: column %q is not sortable", name)
	}
	cols := slices.Clone(g.Columns())
	for i, c := range cols {
		switch {
		case c.Name == name && c.SortActive:
			cols[i] = c.WithSort(true, !c.SortDescending)
		case c.Name == name:
			cols[i] = c.WithSort(true, false)
		case c.SortActive:
			cols[i] = c.WithSort(false, false)
		}
	}
	g.publish(cols)
	return nil
}

// SortColumn returns the active sort column, or nil.
func (g *Grid[T]) SortColumn() *query.Column[T] {
	return sortColumn(g.Columns())
}

func sortColumn[T any](cols []*query.Column[T]) *query.Column[T] {
	for _, c := range cols {
		if c.SortActive {
			return c
		}
	}
	return nil
}

// SetSearch sets the global search text.
func (g *Grid[T]) SetSearch(text string) { g.search = text }

func (g *Grid[T]) Search() string { return g.search }

// SetPageSize changes the page size; zero or less shows every row.
func (g *Grid[T]) SetPageSize(n int) { g.pageSize = n }

func (g *Grid[T]) PageSize() int { return g.pageSize }

// PageIndex is the zero-based page of the last result.
func (g *Grid[T]) PageIndex() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pageIndex
}

// SetItems replaces the in-memory rows.
func (g *Grid[T]) SetItems(items []T) { g.items = items }

// Result returns the last completed result, or nil.
func (g *Grid[T]) Result() *query.Result[T] {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.result
}

// Update runs the current state. With a loader, a newer Update cancels the
// fetch of an older one, whose result is dropped.
func (g *Grid[T]) Update(ctx context.Context) (*query.Result[T], error) {
	snap := g.snap.Load()
	g.mu.Lock()
	req := query.Request[T]{
		Columns:   snap.columns,
		Search:    g.search,
		Sort:      sortColumn(snap.columns),
		PageIndex: g.pageIndex,
		PageSize:  g.pageSize,
		Version:   snap.version,
	}
	g.mu.Unlock()

	if g.loader == nil {
		res, err := g.pipeline.Run(query.FromSlice(g.items), req)
		if err != nil {
			return nil, err
		}
		g.commit(res)
		return res, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.cancel = cancel
	g.mu.Unlock()

	res, err := query.RunRemote(ctx, g.loader, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			g.logger.Debug("stale page fetch dropped", "page", req.PageIndex)
		}
		return nil, err
	}
	g.commit(res)
	return res, nil
}

func (g *Grid[T]) commit(res *query.Result[T]) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.result = res
	g.pageIndex = res.PageIndex
}

func (g *Grid[T]) goTo(ctx context.Context, index func(cur, pages int) int) (*query.Result[T], error) {
	res := g.Result()
	if res == nil {
		var err error
		if res, err = g.Update(ctx); err != nil {
			return nil, err
		}
	}
	g.mu.Lock()
	g.pageIndex = max(index(g.pageIndex, res.TotalPages), 0)
	g.mu.Unlock()
	return g.Update(ctx)
}

// FirstPage moves to the first page and runs the query.
func (g *Grid[T]) FirstPage(ctx context.Context) (*query.Result[T], error) {
	return g.goTo(ctx, func(int, int) int { return 0 })
}

// NextPage moves forward one page unless already on the last.
func (g *Grid[T]) NextPage(ctx context.Context) (*query.Result[T], error) {
	return g.goTo(ctx, func(cur, pages int) int { return min(cur+1, pages-1) })
}

// PreviousPage moves back one page unless already on the first.
func (g *Grid[T]) PreviousPage(ctx context.Context) (*query.Result[T], error) {
	return g.goTo(ctx, func(cur, _ int) int { return cur - 1 })
}

// LastPage moves to the last page.
func (g *Grid[T]) LastPage(ctx context.Context) (*query.Result[T], error) {
	return g.goTo(ctx, func(_, pages int) int { return pages - 1 })
}
