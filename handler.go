package gridquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gnemet/gridquery/filter"
	"github.com/gnemet/gridquery/internal/schema"
	"github.com/gnemet/gridquery/query"
)

const maxBodyBytes = 1 << 20

// RequestParams captures search, sort, filters and pagination from the
// request.
type RequestParams struct {
	Search  string
	Sort    []string // List of "field:dir"
	Filters []filter.Spec
	Limit   int
	Offset  int
}

// Response is the JSON body of a grid request.
type Response[T any] struct {
	query.PaginationResult[T]
	TotalPages int            `json:"totalPages"`
	Aggregates map[string]any `json:"aggregates,omitempty"`
	Filters    []filter.Spec  `json:"filters,omitempty"`
	// State is the filter list packed for the state query parameter.
	State string `json:"state,omitempty"`
}

// Handler serves grid queries over HTTP. GET requests carry limit, offset,
// search, sort ("field:dir", repeatable), filter ("field:Condition:value",
// repeatable) and state parameters; POST requests carry a query.FilterData
// JSON body.
type Handler[T any] struct {
	Columns  []*query.Column[T]
	Defaults DatagridDefaults
	// Items loads the rows for in-memory querying.
	Items func(ctx context.Context) ([]T, error)
	// Loader, when set, takes precedence over Items.
	Loader  query.Loader[T]
	Limiter *rate.Limiter
	Logger  *slog.Logger

	pipeline query.Pipeline[T]
}

// NewHandler returns a handler querying the rows returned by items.
func NewHandler[T any](cols []*query.Column[T], items func(ctx context.Context) ([]T, error)) *Handler[T] {
	return &Handler[T]{Columns: cols, Items: items}
}

// NewLoaderHandler returns a handler paging through loader.
func NewLoaderHandler[T any](cols []*query.Column[T], loader query.Loader[T]) *Handler[T] {
	return &Handler[T]{Columns: cols, Loader: loader}
}

func (h *Handler[T]) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *Handler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	reqID := r.Header.Get("X-Request-ID")
	if reqID == "" {
		reqID = uuid.NewString()
	}
	w.Header().Set("X-Request-ID", reqID)
	log := h.logger().With("request_id", reqID)

	if h.Limiter != nil && !h.Limiter.Allow() {
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	params, err := h.ParseParams(r)
	if err != nil {
		log.Warn("bad grid request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.BuildRequest(params)
	if err != nil {
		log.Warn("bad grid request", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.run(r.Context(), req)
	if err != nil {
		log.Error("grid query failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp, err := h.response(req, res)
	if err != nil {
		log.Error("grid response failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error("encode response", "error", err)
		return
	}
	log.Info("grid request", "rows", len(res.Page), "total", res.TotalCount, "page", res.PageIndex, "duration", time.Since(start))
}

// ParseParams reads the request parameters from the query string or, for
// POST, from a JSON body validated against the FilterData schema.
func (h *Handler[T]) ParseParams(r *http.Request) (RequestParams, error) {
	if r.Method == http.MethodPost {
		return h.parseBody(r)
	}

	q := r.URL.Query()
	limit := 10
	if h.Defaults.PageSize > 0 {
		limit = h.Defaults.PageSize
	}
	limit, err := count(q.Get("limit"), "limit", limit)
	if err != nil {
		return RequestParams{}, err
	}
	offset, err := count(q.Get("offset"), "offset", 0)
	if err != nil {
		return RequestParams{}, err
	}

	search := h.Defaults.Search
	if q.Has("search") {
		search = q.Get("search")
	}

	var filters []filter.Spec
	for _, f := range q["filter"] {
		spec, err := filter.ParseSpec(f)
		if err != nil {
			return RequestParams{}, err
		}
		filters = append(filters, spec)
	}
	if token := q.Get("state"); token != "" {
		specs, err := filter.DecodeState(token)
		if err != nil {
			return RequestParams{}, err
		}
		filters = append(filters, specs...)
	}
	if !q.Has("filter") && !q.Has("state") {
		filters = h.Defaults.Filters
	}

	return RequestParams{
		Search:  search,
		Sort:    q["sort"],
		Filters: filters,
		Limit:   limit,
		Offset:  offset,
	}, nil
}

// count parses a non-negative integer parameter. A limit of 0 turns paging
// off.
func count(text, name string, def int) (int, error) {
	if text == "" {
		return def, nil
	}
	n, err := strconv.Atoi(text)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: want a non-negative integer", name, text)
	}
	return n, nil
}

func (h *Handler[T]) parseBody(r *http.Request) (RequestParams, error) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); mt != "application/json" {
			return RequestParams{}, fmt.Errorf("unsupported content type %q", ct)
		}
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return RequestParams{}, err
	}
	if err := schema.ValidateFilterData(body); err != nil {
		return RequestParams{}, err
	}
	var data query.FilterData
	if err := json.Unmarshal(body, &data); err != nil {
		return RequestParams{}, err
	}

	p := RequestParams{Search: data.Query, Filters: data.Filters, Limit: 10}
	if h.Defaults.PageSize > 0 {
		p.Limit = h.Defaults.PageSize
	}
	if data.Top != nil {
		p.Limit = *data.Top
	}
	if data.Skip != nil {
		p.Offset = *data.Skip
	}
	if field, desc, ok := query.ParseOrderBy(data.OrderBy); ok {
		dir := "asc"
		if desc {
			dir = "desc"
		}
		p.Sort = []string{field + ":" + dir}
	}
	return p, nil
}

// BuildRequest turns params into a query over the handler's columns. Filters
// on unknown fields are skipped; filters that do not build are an error.
func (h *Handler[T]) BuildRequest(p RequestParams) (query.Request[T], error) {
	cols := make([]*query.Column[T], len(h.Columns))
	copy(cols, h.Columns)

	for _, spec := range p.Filters {
		i := h.columnIndex(spec.Field)
		if i < 0 {
			h.logger().Debug("filter on unknown field skipped", "field", spec.Field)
			continue
		}
		node, err := cols[i].BuildFilter(spec.Condition, spec.FilterValue)
		if err != nil {
			return query.Request[T]{}, err
		}
		cols[i] = cols[i].WithFilter(node)
	}

	req := query.Request[T]{
		Columns:  cols,
		Search:   p.Search,
		Sort:     h.sortColumn(cols, p.Sort),
		PageSize: p.Limit,
		// The column list is fixed for the handler's lifetime, so the
		// compiled search stays valid across requests.
		Version: 1,
	}
	if p.Limit > 0 {
		req.PageIndex = max(p.Offset, 0) / p.Limit
	}
	return req, nil
}

func (h *Handler[T]) columnIndex(field string) int {
	for i, c := range h.Columns {
		if c.Path != nil && c.Path.String() == field {
			return i
		}
	}
	for i, c := range h.Columns {
		if c.Name == field {
			return i
		}
	}
	return -1
}

// sortColumn picks the first valid "field:dir" entry, falling back to the
// default sort.
func (h *Handler[T]) sortColumn(cols []*query.Column[T], sorts []string) *query.Column[T] {
	var all []string
	for _, s := range sorts {
		all = append(all, strings.Split(s, ",")...)
	}
	for _, s := range all {
		parts := strings.Split(s, ":")
		if len(parts) != 2 {
			continue
		}
		i := h.columnIndex(parts[0])
		if i < 0 || !cols[i].Sortable {
			continue
		}
		dir := strings.ToUpper(parts[1])
		if dir != "ASC" && dir != "DESC" {
			continue
		}
		return cols[i].WithSort(true, dir == "DESC")
	}
	if h.Defaults.SortColumn != "" {
		if i := h.columnIndex(h.Defaults.SortColumn); i >= 0 {
			return cols[i].WithSort(true, strings.EqualFold(h.Defaults.SortDirection, "DESC"))
		}
	}
	return sortColumn(cols)
}

func (h *Handler[T]) run(ctx context.Context, req query.Request[T]) (*query.Result[T], error) {
	if h.Loader != nil {
		return query.RunRemote(ctx, h.Loader, req)
	}
	if h.Items == nil {
		return nil, errors.New("gridquery: handler has no rows")
	}
	items, err := h.Items(ctx)
	if err != nil {
		return nil, err
	}
	return h.pipeline.Run(query.FromSlice(items), req)
}

func (h *Handler[T]) response(req query.Request[T], res *query.Result[T]) (*Response[T], error) {
	data, err := req.FilterData()
	if err != nil {
		return nil, err
	}
	state, err := filter.EncodeState(data.Filters)
	if err != nil {
		return nil, err
	}
	total := res.TotalCount
	records := res.Page
	if records == nil {
		records = []T{}
	}
	return &Response[T]{
		PaginationResult: query.PaginationResult[T]{
			Top:        req.PageSize,
			Skip:       res.PageIndex * max(req.PageSize, 0),
			Total:      &total,
			Records:    records,
			PageNumber: res.PageIndex + 1,
			Query:      data.Query,
			OrderBy:    data.OrderBy,
		},
		TotalPages: res.TotalPages,
		Aggregates: res.Aggregates,
		Filters:    data.Filters,
		State:      state,
	}, nil
}
