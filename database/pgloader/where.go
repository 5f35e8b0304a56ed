package pgloader

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/cast"

	"github.com/gnemet/gridquery"
	"github.com/gnemet/gridquery/filter"
	"github.com/gnemet/gridquery/query"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var compareOps = map[filter.Condition]string{
	filter.IsEqualTo:              "=",
	filter.IsNotEqualTo:           "<>",
	filter.IsGreaterThan:          ">",
	filter.IsGreaterThanOrEqualTo: ">=",
	filter.IsLessThan:             "<",
	filter.IsLessThanOrEqualTo:    "<=",
}

// FieldsFor returns the selectable fields and the searchable field names of
// catalog columns.
func FieldsFor(cols []*query.Column[gridquery.Record]) (fields []Field, searchable []string) {
	for _, c := range cols {
		if c.Path == nil {
			continue
		}
		fields = append(fields, Field{Name: c.Path.String(), Type: c.Path.ValueType()})
		if !c.NoSearch {
			searchable = append(searchable, c.Path.String())
		}
	}
	return fields, searchable
}

// whereBuilder accumulates clauses and their positional arguments.
type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return fmt.Sprintf("$%d", len(w.args))
}

func (w *whereBuilder) add(format string, a ...any) {
	w.clauses = append(w.clauses, fmt.Sprintf(format, a...))
}

// Where renders the WHERE clause for the filters and search text of req.
// Filters on fields outside Fields are skipped; a blank operand leaves its
// filter inactive.
func (l *Loader) Where(req query.FilterData) (string, []any, error) {
	var w whereBuilder
	for _, spec := range req.Filters {
		f, ok := l.field(spec.Field)
		if !ok {
			l.logger().Warn("filter on unknown field skipped", "table", l.Table, "field", spec.Field)
			continue
		}
		if err := w.filter(f, spec); err != nil {
			return "", nil, err
		}
	}
	w.search(l.searchFields(), req.Query)

	if len(w.clauses) == 0 {
		return "", w.args, nil
	}
	return " WHERE " + strings.Join(w.clauses, " AND "), w.args, nil
}

func (w *whereBuilder) filter(f Field, spec filter.Spec) error {
	col := pq.QuoteIdentifier(f.Name)
	text := strings.TrimSpace(spec.FilterValue)
	if filter.TakesOperand(spec.Condition) && text == "" {
		return nil
	}

	switch spec.Condition {
	case filter.IsNull:
		w.add("%s IS NULL", col)
	case filter.IsNotNull:
		w.add("%s IS NOT NULL", col)
	case filter.IsNullOrEmpty:
		w.add("(%s IS NULL OR %s::text = '')", col, col)
	case filter.IsNotNullOrEmpty:
		w.add("(%s IS NOT NULL AND %s::text <> '')", col, col)
	case filter.True:
		w.add("%s = TRUE", col)
	case filter.False:
		w.add("%s = FALSE", col)
	case filter.Contains:
		w.add("%s::text ILIKE %s", col, w.arg("%"+likeEscaper.Replace(text)+"%"))
	case filter.DoesNotContain:
		w.add("%s::text NOT ILIKE %s", col, w.arg("%"+likeEscaper.Replace(text)+"%"))
	case filter.StartsWith:
		w.add("%s::text ILIKE %s", col, w.arg(likeEscaper.Replace(text)+"%"))
	case filter.EndsWith:
		w.add("%s::text ILIKE %s", col, w.arg("%"+likeEscaper.Replace(text)))
	default:
		op, ok := compareOps[spec.Condition]
		if !ok {
			return conditionError(f.Type, spec.Condition)
		}
		isText := textual(f.Type)
		// Text equality is case-insensitive.
		switch {
		case isText && spec.Condition == filter.IsEqualTo:
			w.add("%s::text ILIKE %s", col, w.arg(likeEscaper.Replace(text)))
			return nil
		case isText && spec.Condition == filter.IsNotEqualTo:
			w.add("%s::text NOT ILIKE %s", col, w.arg(likeEscaper.Replace(text)))
			return nil
		}
		v, err := operand(f.Type, text)
		if err != nil {
			return &filter.OperandError{Kind: filter.KindOf(f.Type), Text: text, Err: err}
		}
		w.add("%s %s %s", col, op, w.arg(v))
	}
	return nil
}

// search ANDs one clause per keyword; each matches when any field contains
// the keyword.
func (w *whereBuilder) search(fields []string, text string) {
	keywords := strings.Fields(text)
	if len(keywords) == 0 {
		return
	}
	if len(fields) == 0 {
		w.add("FALSE")
		return
	}
	for _, kw := range keywords {
		p := w.arg("%" + likeEscaper.Replace(kw) + "%")
		ors := make([]string, len(fields))
		for i, f := range fields {
			ors[i] = fmt.Sprintf("%s::text ILIKE %s", pq.QuoteIdentifier(f), p)
		}
		w.add("(%s)", strings.Join(ors, " OR "))
	}
}

func (l *Loader) searchFields() []string {
	if len(l.Searchable) > 0 {
		var out []string
		for _, s := range l.Searchable {
			if _, ok := l.field(s); ok {
				out = append(out, s)
			}
		}
		return out
	}
	var out []string
	for _, f := range l.Fields {
		if textual(f.Type) {
			out = append(out, f.Name)
		}
	}
	return out
}

// textual reports whether values of t compare as text. Untyped fields do.
func textual(t reflect.Type) bool {
	return t == nil || t.Kind() == reflect.String || t.Kind() == reflect.Interface
}

// operand converts filter text to a query argument of type t.
func operand(t reflect.Type, text string) (any, error) {
	if t == nil {
		return text, nil
	}
	if t == reflect.TypeFor[time.Time]() {
		return cast.ToTimeE(text)
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return cast.ToInt64E(text)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return cast.ToUint64E(text)
	case reflect.Float32, reflect.Float64:
		return cast.ToFloat64E(text)
	case reflect.Bool:
		return cast.ToBoolE(text)
	}
	return text, nil
}
