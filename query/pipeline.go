// Package query runs grid requests: column filters, global search, sorting,
// paging and aggregates, either over an in-memory Source or through a remote
// Loader.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
)

// Request is one grid query.
type Request[T any] struct {
	// Columns in registration order. Columns with a non-nil Filter are active.
	Columns []*Column[T]
	Search  string
	Sort    *Column[T]
	// PageIndex is zero based and clamped into range by the run.
	PageIndex int
	// PageSize <= 0 returns every row on a single page.
	PageSize int
	// Version identifies the column snapshot the request was built from.
	// Compiled search predicates are reused while it is unchanged; zero
	// disables reuse.
	Version uint64
}

// Result is the outcome of a Request.
type Result[T any] struct {
	Page       []T
	TotalCount int
	TotalPages int
	PageIndex  int
	// Aggregates by column name, over the filtered rows.
	Aggregates map[string]any
}

// Pipeline runs requests and keeps the compiled global search of the last
// one.
type Pipeline[T any] struct {
	mu         sync.Mutex
	searchText string
	searchVer  uint64
	search     expr.Predicate[T]
}

// Run executes req over src with a fresh Pipeline.
func Run[T any](src Source[T], req Request[T]) (*Result[T], error) {
	var p Pipeline[T]
	return p.Run(src, req)
}

// Run filters, searches, counts, aggregates, sorts and pages src. Errors from
// predicates, including expr.ErrRowAccess, abort the run.
func (p *Pipeline[T]) Run(src Source[T], req Request[T]) (*Result[T], error) {
	if pred := columnPredicate(req.Columns); pred != nil {
		src = src.Where(pred)
	}
	if strings.TrimSpace(req.Search) != "" {
		src = src.Where(p.searchPredicate(req))
	}
	total, err := src.Count()
	if err != nil {
		return nil, fmt.Errorf("query: filter: %w", err)
	}

	res := &Result[T]{TotalCount: total}
	if hasAggregates(req.Columns) {
		items, err := src.List()
		if err != nil {
			return nil, fmt.Errorf("query: filter: %w", err)
		}
		if res.Aggregates, err = aggregates(items, req.Columns); err != nil {
			return nil, err
		}
	}

	if c := req.Sort; c != nil && c.Path != nil {
		src = src.OrderBy(sortKey(c.Path), c.SortDescending)
	}
	res.TotalPages, res.PageIndex = pageWindow(total, req.PageSize, req.PageIndex)
	if req.PageSize > 0 {
		src = src.Skip(res.PageIndex * req.PageSize).Take(req.PageSize)
	}
	if res.Page, err = src.List(); err != nil {
		return nil, fmt.Errorf("query: sort: %w", err)
	}
	return res, nil
}

func (p *Pipeline[T]) searchPredicate(req Request[T]) expr.Predicate[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.Version != 0 && p.search != nil && p.searchText == req.Search && p.searchVer == req.Version {
		return p.search
	}
	p.search = expr.Compile(ComposeGlobalSearch(req.Search, req.Columns))
	p.searchText, p.searchVer = req.Search, req.Version
	return p.search
}

func columnPredicate[T any](cols []*Column[T]) expr.Predicate[T] {
	var preds []expr.Predicate[T]
	for _, c := range cols {
		if p := c.Predicate(); p != nil {
			preds = append(preds, p)
		}
	}
	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	return func(item T) (bool, error) {
		for _, p := range preds {
			if ok, err := p(item); err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}

// sortKey reads the sort value; a nil parent sorts like a nil value.
func sortKey[T any](path *fieldpath.Path[T]) func(T) (any, error) {
	return func(item T) (any, error) {
		v, err := path.Eval(item)
		if errors.Is(err, expr.ErrRowAccess) {
			return nil, nil
		}
		return v, err
	}
}

// pageWindow returns the page count and the page index clamped into
// [0, pages-1].
func pageWindow(total, size, index int) (pages, clamped int) {
	if size <= 0 {
		return 1, 0
	}
	pages = (total + size - 1) / size
	return pages, max(min(index, pages-1), 0)
}

func hasAggregates[T any](cols []*Column[T]) bool {
	for _, c := range cols {
		if c.Aggregate != AggregateNone {
			return true
		}
	}
	return false
}

func aggregates[T any](items []T, cols []*Column[T]) (map[string]any, error) {
	out := make(map[string]any)
	for _, c := range cols {
		if c.Aggregate == AggregateNone {
			continue
		}
		v, err := Aggregate(items, c)
		if err != nil {
			return nil, err
		}
		out[c.Name] = v
	}
	return out, nil
}

// FilterData returns the loader request for r. Columns whose filter cannot be
// turned back into a Spec are left out and reported in the error.
func (r Request[T]) FilterData() (FilterData, error) {
	var (
		data FilterData
		errs []error
	)
	for _, c := range r.Columns {
		spec, ok, err := c.Spec()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			data.Filters = append(data.Filters, spec)
		}
	}
	data.Query = strings.TrimSpace(r.Search)
	if c := r.Sort; c != nil && c.Path != nil {
		data.OrderBy = FormatOrderBy(c.Path.String(), c.SortDescending)
	}
	if r.PageSize > 0 {
		top, skip := r.PageSize, max(r.PageIndex, 0)*r.PageSize
		data.Top, data.Skip = &top, &skip
	}
	return data, errors.Join(errs...)
}

// RunRemote sends req to loader and shapes the reply like Run does. The page
// is re-sorted locally so ties keep a stable order; aggregates cover only the
// returned page.
func RunRemote[T any](ctx context.Context, loader Loader[T], req Request[T]) (*Result[T], error) {
	data, err := req.FilterData()
	if err != nil {
		slog.WarnContext(ctx, "query: filters left out of remote request", "error", err)
	}
	page, err := loadPage(ctx, loader, data)
	if err != nil {
		return nil, err
	}
	// A page past the end is fetched again at the last page, so the rows
	// match the clamped index reported in the result.
	if page.Total != nil && req.PageSize > 0 {
		if _, clamped := pageWindow(*page.Total, req.PageSize, req.PageIndex); clamped != max(req.PageIndex, 0) {
			skip := clamped * req.PageSize
			data.Skip = &skip
			if page, err = loadPage(ctx, loader, data); err != nil {
				return nil, err
			}
		}
	}

	records := page.Records
	if c := req.Sort; c != nil && c.Path != nil {
		if records, err = FromSlice(records).OrderBy(sortKey(c.Path), c.SortDescending).List(); err != nil {
			return nil, fmt.Errorf("query: sort: %w", err)
		}
	}

	total := len(page.Records)
	if page.Total != nil {
		total = *page.Total
	}
	res := &Result[T]{Page: records, TotalCount: total}
	res.TotalPages, res.PageIndex = pageWindow(total, req.PageSize, req.PageIndex)
	if hasAggregates(req.Columns) {
		if res.Aggregates, err = aggregates(records, req.Columns); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func loadPage[T any](ctx context.Context, loader Loader[T], data FilterData) (*PaginationResult[T], error) {
	page, err := loader.LoadPage(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("query: load page: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return page, nil
}
