package query

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
	"github.com/gnemet/gridquery/filter"
)

type customer struct {
	Name string
	City *string
}

type order struct {
	ID       int
	Amount   int
	Price    float64
	Note     string
	Shipped  *bool
	Customer *customer
}

func ptr[V any](v V) *V { return &v }

func col(name, path string) *Column[order] {
	return NewColumn(name, fieldpath.MustNew[order](path))
}

func filtered(t *testing.T, c *Column[order], cond filter.Condition, operand string) *Column[order] {
	t.Helper()
	node, err := c.BuildFilter(cond, operand)
	if err != nil {
		t.Fatalf("BuildFilter(%s, %s, %q): %v", c.Name, cond, operand, err)
	}
	return c.WithFilter(node)
}

func ids(items []order) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func sequence(n int) []order {
	out := make([]order, n)
	for i := range out {
		out[i] = order{ID: i + 1, Amount: i + 1}
	}
	return out
}

func TestPagination(t *testing.T) {
	items := sequence(25)
	id := col("id", "ID")
	for page, want := range []int{10, 10, 5} {
		res, err := Run(FromSlice(items), Request[order]{Columns: []*Column[order]{id}, PageIndex: page, PageSize: 10})
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if len(res.Page) != want {
			t.Errorf("page %d has %d rows, want %d", page, len(res.Page), want)
		}
		if res.TotalCount != 25 || res.TotalPages != 3 {
			t.Errorf("page %d: total %d pages %d", page, res.TotalCount, res.TotalPages)
		}
	}

	res, err := Run(FromSlice(items), Request[order]{PageIndex: 5, PageSize: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.PageIndex != 2 || len(res.Page) != 5 || res.Page[0].ID != 21 {
		t.Errorf("clamped page = index %d, %d rows, first %d", res.PageIndex, len(res.Page), res.Page[0].ID)
	}
}

func TestUnpagedAndEmpty(t *testing.T) {
	res, err := Run(FromSlice(sequence(7)), Request[order]{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Page) != 7 || res.TotalPages != 1 || res.PageIndex != 0 {
		t.Errorf("unpaged = %d rows, %d pages, index %d", len(res.Page), res.TotalPages, res.PageIndex)
	}

	res, err = Run(FromSlice[order](nil), Request[order]{PageIndex: 3, PageSize: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TotalPages != 0 || res.PageIndex != 0 || len(res.Page) != 0 {
		t.Errorf("empty = %+v", res)
	}
}

func TestAggregatesOverFilteredSet(t *testing.T) {
	items := []order{{ID: 1, Amount: 2}, {ID: 2, Amount: 3}, {ID: 3, Amount: 10}}
	amount := filtered(t, col("amount", "Amount"), filter.IsLessThanOrEqualTo, "3")
	sum := col("sum", "Amount")
	sum.Aggregate = AggregateSum
	count := col("count", "Amount")
	count.Aggregate = AggregateCount
	top := col("max", "Amount")
	top.Aggregate = AggregateMax

	res, err := Run(FromSlice(items), Request[order]{
		Columns:  []*Column[order]{amount, sum, count, top},
		PageSize: 1,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := map[string]any{"sum": int64(5), "count": 2, "max": 3}
	if !reflect.DeepEqual(res.Aggregates, want) {
		t.Errorf("Aggregates = %v, want %v", res.Aggregates, want)
	}
	if len(res.Page) != 1 {
		t.Errorf("page has %d rows, want 1", len(res.Page))
	}
}

func TestAggregate(t *testing.T) {
	items := []order{
		{Price: 1.5, Note: "b", Customer: &customer{Name: "x"}},
		{Price: 2.5, Note: "a"},
		{Price: 5, Note: "c", Customer: &customer{Name: "y"}},
	}
	tests := []struct {
		path string
		op   AggregateOp
		want any
	}{
		{"Price", AggregateSum, 9.0},
		{"Price", AggregateAverage, 3.0},
		{"Price", AggregateMin, 1.5},
		{"Note", AggregateMax, "c"},
		{"Note", AggregateMin, "a"},
		{"Customer.Name", AggregateMax, "y"},
		{"Note", AggregateCount, 3},
	}
	for _, tt := range tests {
		t.Run(tt.path+"/"+string(tt.op), func(t *testing.T) {
			c := col(tt.path, tt.path)
			c.Aggregate = tt.op
			got, err := Aggregate(items, c)
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if got != tt.want {
				t.Errorf("Aggregate = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}

	avg := col("avg", "Amount")
	avg.Aggregate = AggregateAverage
	if got, err := Aggregate(nil, avg); got != nil || err != nil {
		t.Errorf("Average of nothing = %v, %v", got, err)
	}

	bad := col("note", "Note")
	bad.Aggregate = AggregateSum
	_, err := Aggregate(items, bad)
	if !errors.Is(err, ErrUnsupportedAggregateType) {
		t.Errorf("Sum over strings err = %v", err)
	}
	var ae *AggregateError
	if !errors.As(err, &ae) || ae.Column != "note" {
		t.Errorf("AggregateError = %+v", ae)
	}
}

func TestAggregateUntypedRows(t *testing.T) {
	rows := []map[string]any{{"v": 1}, {"v": 2.5}, {}}
	c := NewColumn("v", fieldpath.MustNew[map[string]any]("v"))
	c.Aggregate = AggregateSum
	got, err := Aggregate(rows, c)
	if err != nil || got != 3.5 {
		t.Errorf("Sum = %v, %v", got, err)
	}
	rows = append(rows, map[string]any{"v": "x"})
	if _, err := Aggregate(rows, c); !errors.Is(err, ErrUnsupportedAggregateType) {
		t.Errorf("Sum with text err = %v", err)
	}
}

func TestComposeColumnFilters(t *testing.T) {
	a := filtered(t, col("amount", "Amount"), filter.IsGreaterThan, "1")
	b := filtered(t, col("note", "Note"), filter.Contains, "x")
	items := []order{{Amount: 2, Note: "x"}, {Amount: 0, Note: "x"}, {Amount: 5}}

	ab := expr.Compile(ComposeColumnFilters([]*Column[order]{a, b}))
	ba := expr.Compile(ComposeColumnFilters([]*Column[order]{b, a}))
	for i, it := range items {
		x, err1 := ab(it)
		y, err2 := ba(it)
		if err1 != nil || err2 != nil || x != y {
			t.Errorf("item %d: a&&b = %v, b&&a = %v", i, x, y)
		}
	}

	if !expr.IsTrue(ComposeColumnFilters([]*Column[order]{col("id", "ID")})) {
		t.Error("no active filters should compose to true")
	}
}

func TestComposeGlobalSearch(t *testing.T) {
	cols := []*Column[order]{col("note", "Note"), col("name", "Customer.Name"), col("city", "Customer.City")}
	items := []order{
		{ID: 1, Note: "Rush delivery", Customer: &customer{Name: "Kovács", City: ptr("Budapest")}},
		{ID: 2, Note: "standard", Customer: &customer{Name: "Rush Ltd"}},
		{ID: 3, Note: "budapest pickup"},
		{ID: 4, Note: "none"},
	}
	tests := []struct {
		text string
		want []int
	}{
		{"rush", []int{1, 2}},
		{"rush budapest", []int{1}},
		{"  BUDAPEST  ", []int{1, 3}},
		{"", []int{1, 2, 3, 4}},
		{"missing", nil},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			pred := expr.Compile(ComposeGlobalSearch(tt.text, cols))
			var got []int
			for _, it := range items {
				ok, err := pred(it)
				if err != nil {
					t.Fatalf("search %q: %v", tt.text, err)
				}
				if ok {
					got = append(got, it.ID)
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("search %q = %v, want %v", tt.text, got, tt.want)
			}
		})
	}

	noSearch := col("note", "Note")
	noSearch.NoSearch = true
	pred := expr.Compile(ComposeGlobalSearch("rush", []*Column[order]{noSearch}))
	if ok, _ := pred(items[0]); ok {
		t.Error("keyword matched with no searchable columns")
	}
}

func TestSortStableNilFirst(t *testing.T) {
	items := []order{
		{ID: 1, Customer: &customer{Name: "b"}},
		{ID: 2},
		{ID: 3, Customer: &customer{Name: "a"}},
		{ID: 4, Customer: &customer{Name: "b"}},
		{ID: 5, Customer: &customer{}},
	}
	name := col("name", "Customer.Name")

	res, err := Run(FromSlice(items), Request[order]{Sort: name.WithSort(true, false)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := ids(res.Page), []int{2, 5, 3, 1, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("ascending = %v, want %v", got, want)
	}

	res, err = Run(FromSlice(items), Request[order]{Sort: name.WithSort(true, true)})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := ids(res.Page), []int{1, 4, 3, 5, 2}; !reflect.DeepEqual(got, want) {
		t.Errorf("descending = %v, want %v", got, want)
	}
	if items[0].ID != 1 || items[1].ID != 2 {
		t.Error("input slice was reordered")
	}
}

func TestNullSafeNestedFilter(t *testing.T) {
	items := []order{
		{ID: 1, Customer: &customer{City: ptr("Szeged")}},
		{ID: 2, Customer: &customer{}},
		{ID: 3},
	}
	city := filtered(t, col("city", "Customer.City"), filter.StartsWith, "sze")
	res, err := Run(FromSlice(items), Request[order]{Columns: []*Column[order]{city}})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := ids(res.Page); !reflect.DeepEqual(got, []int{1}) {
		t.Errorf("rows = %v, want [1]", got)
	}
}

func TestRowAccessIsFatal(t *testing.T) {
	unguarded := col("name", "Customer.Name").WithFilter(&expr.Call[order]{
		Func:   expr.FuncIsBlank,
		Target: &expr.Member[order]{Path: fieldpath.MustNew[order]("Customer.Name")},
	})
	_, err := Run(FromSlice([]order{{}}), Request[order]{Columns: []*Column[order]{unguarded}})
	if !errors.Is(err, expr.ErrRowAccess) {
		t.Errorf("err = %v, want ErrRowAccess", err)
	}
}

func TestSearchPredicateReuse(t *testing.T) {
	var p Pipeline[order]
	item := order{Note: "a"}
	req := Request[order]{Columns: []*Column[order]{col("note", "Note")}, Search: "a", Version: 1}
	if ok, _ := p.searchPredicate(req)(item); !ok {
		t.Fatal("search did not match note")
	}

	// Same version: the predicate compiled for the first column list is reused.
	req.Columns = []*Column[order]{col("name", "Customer.Name")}
	if ok, _ := p.searchPredicate(req)(item); !ok {
		t.Error("predicate was rebuilt for an unchanged version")
	}

	req.Version = 2
	if ok, _ := p.searchPredicate(req)(item); ok {
		t.Error("predicate was not rebuilt for a new version")
	}
}

func TestRender(t *testing.T) {
	price := col("price", "Price")
	price.Format = "%.2f"
	if got := price.Render(order{Price: 3}); got != "3.00" {
		t.Errorf("Render = %q", got)
	}
	city := col("city", "Customer.City")
	if got := city.Render(order{}); got != "" {
		t.Errorf("Render(nil parent) = %q", got)
	}
	note := col("note", "Note")
	note.Lookup = []LookupOption{{Label: "Urgent", Value: "u"}}
	if got := note.Render(order{Note: "u"}); got != "Urgent" {
		t.Errorf("Render(lookup) = %q", got)
	}
	if note.FilterKind() != filter.KindCustomLookup {
		t.Errorf("FilterKind = %s", note.FilterKind())
	}
}

func TestColumnSpec(t *testing.T) {
	c := filtered(t, col("amount", "Amount"), filter.IsGreaterThanOrEqualTo, " 4 ")
	spec, ok, err := c.Spec()
	if err != nil || !ok {
		t.Fatalf("Spec = %v, %v", ok, err)
	}
	want := filter.Spec{Field: "Amount", Condition: filter.IsGreaterThanOrEqualTo, FilterValue: "4"}
	if spec != want {
		t.Errorf("Spec = %+v, want %+v", spec, want)
	}
	if _, ok, _ := col("id", "ID").Spec(); ok {
		t.Error("unfiltered column reported a spec")
	}
}

type fakeLoader struct {
	got  FilterData
	resp *PaginationResult[order]
	err  error
}

func (f *fakeLoader) LoadPage(_ context.Context, req FilterData) (*PaginationResult[order], error) {
	f.got = req
	return f.resp, f.err
}

func TestRunRemote(t *testing.T) {
	amount := filtered(t, col("amount", "Amount"), filter.IsGreaterThan, "1")
	amount.Aggregate = AggregateSum
	note := col("note", "Note")
	total := 42
	loader := &fakeLoader{resp: &PaginationResult[order]{
		Total:   &total,
		Records: []order{{ID: 1, Amount: 3, Note: "b"}, {ID: 2, Amount: 4, Note: "a"}},
	}}

	res, err := RunRemote[order](context.Background(), loader, Request[order]{
		Columns:   []*Column[order]{amount, note},
		Search:    " rush ",
		Sort:      note.WithSort(true, false),
		PageIndex: 2,
		PageSize:  10,
	})
	if err != nil {
		t.Fatalf("RunRemote: %v", err)
	}

	got := loader.got
	if got.Query != "rush" || got.OrderBy != "Note asc" || *got.Top != 10 || *got.Skip != 20 {
		t.Errorf("FilterData = %+v", got)
	}
	wantSpecs := []filter.Spec{{Field: "Amount", Condition: filter.IsGreaterThan, FilterValue: "1"}}
	if !reflect.DeepEqual(got.Filters, wantSpecs) {
		t.Errorf("Filters = %+v", got.Filters)
	}

	if res.TotalCount != 42 || res.TotalPages != 5 || res.PageIndex != 2 {
		t.Errorf("result = total %d pages %d index %d", res.TotalCount, res.TotalPages, res.PageIndex)
	}
	if got := ids(res.Page); !reflect.DeepEqual(got, []int{2, 1}) {
		t.Errorf("page order = %v", got)
	}
	if res.Aggregates["amount"] != int64(7) {
		t.Errorf("page aggregate = %v", res.Aggregates["amount"])
	}
}

func TestRunRemoteClampsPastLastPage(t *testing.T) {
	rows := sequence(25)
	var skips []int
	loader := LoaderFunc[order](func(_ context.Context, data FilterData) (*PaginationResult[order], error) {
		skip, top := *data.Skip, *data.Top
		skips = append(skips, skip)
		total := len(rows)
		page := rows[min(skip, total):min(skip+top, total)]
		return &PaginationResult[order]{Top: top, Skip: skip, Total: &total, Records: page}, nil
	})

	res, err := RunRemote[order](context.Background(), loader, Request[order]{PageIndex: 5, PageSize: 10})
	if err != nil {
		t.Fatalf("RunRemote: %v", err)
	}
	if !reflect.DeepEqual(skips, []int{50, 20}) {
		t.Errorf("skips = %v, want [50 20]", skips)
	}
	if res.PageIndex != 2 || res.TotalPages != 3 {
		t.Errorf("index %d pages %d, want 2 3", res.PageIndex, res.TotalPages)
	}
	if got := ids(res.Page); !reflect.DeepEqual(got, []int{21, 22, 23, 24, 25}) {
		t.Errorf("page = %v", got)
	}

	skips = nil
	if _, err := RunRemote[order](context.Background(), loader, Request[order]{PageIndex: 1, PageSize: 10}); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(skips, []int{10}) {
		t.Errorf("in-range page fetched with skips %v", skips)
	}
}

func TestRunRemoteWithoutTotal(t *testing.T) {
	loader := LoaderFunc[order](func(context.Context, FilterData) (*PaginationResult[order], error) {
		return &PaginationResult[order]{Records: sequence(3)}, nil
	})
	res, err := RunRemote[order](context.Background(), loader, Request[order]{PageSize: 10})
	if err != nil {
		t.Fatalf("RunRemote: %v", err)
	}
	if res.TotalCount != 3 || res.TotalPages != 1 {
		t.Errorf("result = %+v", res)
	}

	failing := &fakeLoader{err: errors.New("boom")}
	if _, err := RunRemote[order](context.Background(), failing, Request[order]{}); err == nil {
		t.Error("loader error not returned")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := RunRemote[order](ctx, loader, Request[order]{}); !errors.Is(err, context.Canceled) {
		t.Errorf("canceled err = %v", err)
	}
}

func TestOrderBy(t *testing.T) {
	tests := []struct {
		in    string
		field string
		desc  bool
		ok    bool
	}{
		{"Name asc", "Name", false, true},
		{"Name DESC", "Name", true, true},
		{"Name", "Name", false, true},
		{"Name sideways", "", false, false},
		{"", "", false, false},
	}
	for _, tt := range tests {
		f, d, ok := ParseOrderBy(tt.in)
		if f != tt.field || d != tt.desc || ok != tt.ok {
			t.Errorf("ParseOrderBy(%q) = %q, %v, %v", tt.in, f, d, ok)
		}
	}
	if FormatOrderBy("a.b", true) != "a.b desc" {
		t.Error("FormatOrderBy")
	}
}
