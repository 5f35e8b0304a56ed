// Package pgloader serves grid pages from a PostgreSQL table. Filters, search
// and ordering from a query.FilterData are encoded as SQL so only the
// requested page leaves the database.
package pgloader

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/spf13/cast"

	"github.com/gnemet/gridquery"
	"github.com/gnemet/gridquery/filter"
	"github.com/gnemet/gridquery/query"
)

// Field is a selectable column of the table. Type is the Go type values are
// normalised to; nil leaves the driver value as scanned.
type Field struct {
	Name string
	Type reflect.Type
}

// Loader pages through Table. It implements query.Loader for map rows.
type Loader struct {
	DB     *sql.DB
	Table  string
	Fields []Field
	// Searchable restricts the global search to these fields. When empty,
	// every string field is searched.
	Searchable []string
	// DefaultOrder is a FilterData OrderBy used when the request has none.
	DefaultOrder string
	Logger       *slog.Logger
}

// Open connects to PostgreSQL and tunes the pool.
func Open(connStr string, maxConns int, idleTimeout, absTimeout time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(max(maxConns/2, 1))
	}
	db.SetConnMaxLifetime(absTimeout)
	db.SetConnMaxIdleTime(idleTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// LoadPage counts the matching rows and fetches the requested page.
func (l *Loader) LoadPage(ctx context.Context, req query.FilterData) (*query.PaginationResult[map[string]any], error) {
	where, args, err := l.Where(req)
	if err != nil {
		return nil, err
	}
	table := quoteTable(l.Table)

	var total int
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, where)
	if err := l.DB.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count %s: %w", l.Table, err)
	}

	res := &query.PaginationResult[map[string]any]{
		Total:   &total,
		Query:   req.Query,
		OrderBy: req.OrderBy,
	}
	page := ""
	if req.Top != nil {
		res.Top = *req.Top
		if req.Skip != nil {
			res.Skip = *req.Skip
		}
		page = fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
		args = append(args, res.Top, res.Skip)
		if res.Top > 0 {
			res.PageNumber = res.Skip/res.Top + 1
		}
	}

	selectCols := make([]string, len(l.Fields))
	for i, f := range l.Fields {
		selectCols[i] = pq.QuoteIdentifier(f.Name)
	}
	pageSQL := fmt.Sprintf("SELECT %s FROM %s%s%s%s",
		strings.Join(selectCols, ", "), table, where, l.Order(req.OrderBy), page)

	rows, err := l.DB.QueryContext(ctx, pageSQL, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", l.Table, err)
	}
	defer rows.Close()

	if res.Records, err = scanRows(rows, l.types()); err != nil {
		return nil, err
	}
	return res, nil
}

func (l *Loader) field(name string) (Field, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

func (l *Loader) types() map[string]reflect.Type {
	m := make(map[string]reflect.Type, len(l.Fields))
	for _, f := range l.Fields {
		if f.Type != nil {
			m[f.Name] = f.Type
		}
	}
	return m
}

// Order renders the ORDER BY clause for orderBy, falling back to
// DefaultOrder. Unknown fields are ignored.
func (l *Loader) Order(orderBy string) string {
	for _, s := range []string{orderBy, l.DefaultOrder} {
		field, desc, ok := query.ParseOrderBy(s)
		if !ok {
			continue
		}
		if _, known := l.field(field); !known {
			continue
		}
		dir := "ASC"
		if desc {
			dir = "DESC"
		}
		return fmt.Sprintf(" ORDER BY %s %s", pq.QuoteIdentifier(field), dir)
	}
	return ""
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func scanRows(rows *sql.Rows, types map[string]reflect.Type) ([]map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	results := []map[string]any{}
	for rows.Next() {
		values := make([]any, len(cols))
		pointers := make([]any, len(cols))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			val := values[i]
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			row[col] = normalize(val, types[col])
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// Normalize converts the values of rows decoded elsewhere, such as JSON
// files, to the types of fields. Rows are changed in place.
func Normalize(rows []gridquery.Record, fields []Field) {
	for _, row := range rows {
		for _, f := range fields {
			if v, ok := row[f.Name]; ok {
				row[f.Name] = normalize(v, f.Type)
			}
		}
	}
}

// normalize converts a scanned value to t. Values that do not convert are
// kept as scanned.
func normalize(v any, t reflect.Type) any {
	if v == nil || t == nil {
		return v
	}
	var (
		out any
		err error
	)
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		out, err = cast.ToInt64E(v)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		out, err = cast.ToUint64E(v)
	case reflect.Float32, reflect.Float64:
		out, err = cast.ToFloat64E(v)
	case reflect.Bool:
		out, err = cast.ToBoolE(v)
	case reflect.String:
		out, err = cast.ToStringE(v)
	default:
		if t == reflect.TypeFor[time.Time]() {
			out, err = cast.ToTimeE(v)
		} else {
			return v
		}
	}
	if err != nil {
		return v
	}
	return out
}

// LOV returns a catalog list-of-values resolver. Each query yields value and
// label columns.
func LOV(ctx context.Context, db *sql.DB) gridquery.LOVQuery {
	return func(q string) ([]gridquery.LOVItem, error) {
		rows, err := db.QueryContext(ctx, q)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var items []gridquery.LOVItem
		for rows.Next() {
			var val, lbl any
			if err := rows.Scan(&val, &lbl); err != nil {
				return nil, err
			}
			if b, ok := val.([]byte); ok {
				val = string(b)
			}
			items = append(items, gridquery.LOVItem{Value: val, Label: cast.ToString(lbl)})
		}
		return items, rows.Err()
	}
}

var _ query.Loader[map[string]any] = (*Loader)(nil)

// conditionError reports a condition the SQL encoder has no rendering for.
func conditionError(t reflect.Type, c filter.Condition) error {
	return &filter.ConditionError{Kind: filter.KindOf(t), Condition: c}
}
