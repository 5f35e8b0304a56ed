package pgloader

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/gnemet/gridquery/filter"
	"github.com/gnemet/gridquery/query"
)

func ptr[V any](v V) *V { return &v }

func ordersLoader() *Loader {
	return &Loader{
		Table: "public.orders",
		Fields: []Field{
			{Name: "id", Type: reflect.TypeFor[int64]()},
			{Name: "customer", Type: reflect.TypeFor[string]()},
			{Name: "amount", Type: reflect.TypeFor[float64]()},
			{Name: "placed", Type: reflect.TypeFor[time.Time]()},
			{Name: "paid", Type: reflect.TypeFor[bool]()},
		},
		DefaultOrder: "id desc",
	}
}

func TestLoadPage(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l := ordersLoader()
	l.DB = db

	where := ` WHERE "amount" > $1 AND ("customer"::text ILIKE $2)`
	mock.ExpectQuery(`SELECT COUNT(*) FROM "public"."orders"` + where).
		WithArgs(10.0, "%acme%").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))
	mock.ExpectQuery(`SELECT "id", "customer", "amount", "placed", "paid" FROM "public"."orders"` + where +
		` ORDER BY "customer" ASC LIMIT $3 OFFSET $4`).
		WithArgs(10.0, "%acme%", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer", "amount", "placed", "paid"}).
			AddRow(int64(3), "Acme", []byte("12.50"), nil, true).
			AddRow(int64(4), "Acme Ltd", nil, nil, false))

	res, err := l.LoadPage(context.Background(), query.FilterData{
		OrderBy: "customer asc",
		Query:   "acme",
		Top:     ptr(2),
		Skip:    ptr(2),
		Filters: []filter.Spec{{Field: "amount", Condition: filter.IsGreaterThan, FilterValue: "10"}},
	})
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if res.Total == nil || *res.Total != 7 {
		t.Errorf("Total = %v, want 7", res.Total)
	}
	if res.PageNumber != 2 || res.Top != 2 || res.Skip != 2 {
		t.Errorf("page = %d top %d skip %d, want 2/2/2", res.PageNumber, res.Top, res.Skip)
	}
	if len(res.Records) != 2 {
		t.Fatalf("got %d records, want 2", len(res.Records))
	}
	if got := res.Records[0]["amount"]; got != 12.5 {
		t.Errorf("amount = %#v, want 12.5", got)
	}
	if got := res.Records[1]["amount"]; got != nil {
		t.Errorf("amount = %#v, want nil", got)
	}
	if got := res.Records[0]["id"]; got != int64(3) {
		t.Errorf("id = %#v, want int64(3)", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoadPageWithoutTop(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l := ordersLoader()
	l.DB = db

	mock.ExpectQuery(`SELECT COUNT(*) FROM "public"."orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT "id", "customer", "amount", "placed", "paid" FROM "public"."orders" ORDER BY "id" DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "customer"}).AddRow(int64(1), "Acme"))

	res, err := l.LoadPage(context.Background(), query.FilterData{})
	if err != nil {
		t.Fatalf("LoadPage: %v", err)
	}
	if len(res.Records) != 1 || res.PageNumber != 0 {
		t.Errorf("records %d page %d, want 1 record on page 0", len(res.Records), res.PageNumber)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestLoadPageCountError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	l := ordersLoader()
	l.DB = db
	boom := errors.New("boom")
	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(boom)

	if _, err := l.LoadPage(context.Background(), query.FilterData{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestWhere(t *testing.T) {
	tests := []struct {
		name  string
		specs []filter.Spec
		query string
		want  string
		args  []any
	}{
		{"none", nil, "", "", nil},
		{
			"contains escapes wildcards",
			[]filter.Spec{{Field: "customer", Condition: filter.Contains, FilterValue: "50%_off"}},
			"", ` WHERE "customer"::text ILIKE $1`, []any{`%50\%\_off%`},
		},
		{
			"starts and ends",
			[]filter.Spec{
				{Field: "customer", Condition: filter.StartsWith, FilterValue: "Ac"},
				{Field: "customer", Condition: filter.EndsWith, FilterValue: "me"},
			},
			"", ` WHERE "customer"::text ILIKE $1 AND "customer"::text ILIKE $2`, []any{"Ac%", "%me"},
		},
		{
			"text equality folds case",
			[]filter.Spec{{Field: "customer", Condition: filter.IsNotEqualTo, FilterValue: "acme"}},
			"", ` WHERE "customer"::text NOT ILIKE $1`, []any{"acme"},
		},
		{
			"nullity",
			[]filter.Spec{
				{Field: "amount", Condition: filter.IsNull},
				{Field: "customer", Condition: filter.IsNotNullOrEmpty},
			},
			"", ` WHERE "amount" IS NULL AND ("customer" IS NOT NULL AND "customer"::text <> '')`, nil,
		},
		{
			"boolean",
			[]filter.Spec{{Field: "paid", Condition: filter.False}},
			"", ` WHERE "paid" = FALSE`, nil,
		},
		{
			"typed comparison",
			[]filter.Spec{{Field: "id", Condition: filter.IsLessThanOrEqualTo, FilterValue: " 42 "}},
			"", ` WHERE "id" <= $1`, []any{int64(42)},
		},
		{
			"date comparison",
			[]filter.Spec{{Field: "placed", Condition: filter.IsGreaterThanOrEqualTo, FilterValue: "2024-03-01"}},
			"", ` WHERE "placed" >= $1`, []any{time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
		{
			"blank operand is inactive",
			[]filter.Spec{{Field: "id", Condition: filter.IsEqualTo, FilterValue: "  "}},
			"", "", nil,
		},
		{
			"unknown field skipped",
			[]filter.Spec{{Field: "nope", Condition: filter.IsNull}},
			"", "", nil,
		},
		{
			"search ands keywords",
			nil, "acme  north",
			` WHERE ("customer"::text ILIKE $1) AND ("customer"::text ILIKE $2)`, []any{"%acme%", "%north%"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, args, err := ordersLoader().Where(query.FilterData{Filters: tt.specs, Query: tt.query})
			if err != nil {
				t.Fatalf("Where: %v", err)
			}
			if got != tt.want {
				t.Errorf("Where = %q, want %q", got, tt.want)
			}
			if len(args) != len(tt.args) {
				t.Fatalf("args = %#v, want %#v", args, tt.args)
			}
			for i := range args {
				if want, ok := tt.args[i].(time.Time); ok {
					if got, _ := args[i].(time.Time); !got.Equal(want) {
						t.Errorf("arg %d = %v, want %v", i, args[i], want)
					}
					continue
				}
				if !reflect.DeepEqual(args[i], tt.args[i]) {
					t.Errorf("arg %d = %#v, want %#v", i, args[i], tt.args[i])
				}
			}
		})
	}
}

func TestWhereSearchFields(t *testing.T) {
	l := ordersLoader()
	l.Searchable = []string{"customer", "id", "missing"}
	got, _, err := l.Where(query.FilterData{Query: "7"})
	if err != nil {
		t.Fatal(err)
	}
	want := ` WHERE ("customer"::text ILIKE $1 OR "id"::text ILIKE $1)`
	if got != want {
		t.Errorf("Where = %q, want %q", got, want)
	}

	l = &Loader{Fields: []Field{{Name: "id", Type: reflect.TypeFor[int64]()}}}
	if got, _, _ := l.Where(query.FilterData{Query: "x"}); got != " WHERE FALSE" {
		t.Errorf("Where without searchable fields = %q", got)
	}
}

func TestWhereErrors(t *testing.T) {
	l := ordersLoader()
	_, _, err := l.Where(query.FilterData{Filters: []filter.Spec{{Field: "id", Condition: filter.IsGreaterThan, FilterValue: "ten"}}})
	if !errors.Is(err, filter.ErrOperandConversion) {
		t.Errorf("bad operand: err = %v", err)
	}
	_, _, err = l.Where(query.FilterData{Filters: []filter.Spec{{Field: "id", Condition: "Between", FilterValue: "1"}}})
	if !errors.Is(err, filter.ErrUnsupportedCondition) {
		t.Errorf("unknown condition: err = %v", err)
	}
}

func TestOrder(t *testing.T) {
	l := ordersLoader()
	tests := []struct{ in, want string }{
		{"amount desc", ` ORDER BY "amount" DESC`},
		{"customer", ` ORDER BY "customer" ASC`},
		{"nope asc", ` ORDER BY "id" DESC`},
		{"", ` ORDER BY "id" DESC`},
	}
	for _, tt := range tests {
		if got := l.Order(tt.in); got != tt.want {
			t.Errorf("Order(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	l.DefaultOrder = ""
	if got := l.Order(""); got != "" {
		t.Errorf("Order without default = %q", got)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   any
		t    reflect.Type
		want any
	}{
		{"12.5", reflect.TypeFor[float64](), 12.5},
		{int32(4), reflect.TypeFor[int64](), int64(4)},
		{"true", reflect.TypeFor[bool](), true},
		{"n/a", reflect.TypeFor[int64](), "n/a"},
		{nil, reflect.TypeFor[int64](), nil},
		{"raw", nil, "raw"},
	}
	for _, tt := range tests {
		if got := normalize(tt.in, tt.t); got != tt.want {
			t.Errorf("normalize(%#v, %v) = %#v, want %#v", tt.in, tt.t, got, tt.want)
		}
	}
}

func TestNormalizeRecords(t *testing.T) {
	rows := []map[string]any{
		{"id": 1.0, "created": "2024-03-01", "note": "x"},
		{"id": 2.0, "created": nil},
	}
	Normalize(rows, []Field{
		{Name: "id", Type: reflect.TypeFor[int64]()},
		{Name: "created", Type: reflect.TypeFor[time.Time]()},
	})
	if rows[0]["id"] != int64(1) || rows[1]["id"] != int64(2) {
		t.Errorf("ids = %#v, %#v", rows[0]["id"], rows[1]["id"])
	}
	if got, ok := rows[0]["created"].(time.Time); !ok || !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created = %#v", rows[0]["created"])
	}
	if rows[1]["created"] != nil || rows[0]["note"] != "x" {
		t.Errorf("rows = %v", rows)
	}
	if _, ok := rows[1]["note"]; ok {
		t.Error("missing key added")
	}
}

func TestLOV(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectQuery(`SELECT code, name FROM regions`).
		WillReturnRows(sqlmock.NewRows([]string{"code", "name"}).
			AddRow([]byte("N"), "North").
			AddRow([]byte("S"), "South"))

	items, err := LOV(context.Background(), db)("SELECT code, name FROM regions")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].Value != "N" || items[1].Label != "South" {
		t.Errorf("items = %+v", items)
	}
}
