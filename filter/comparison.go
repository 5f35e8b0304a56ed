package filter

import (
	"fmt"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
)

var condOps = map[Condition]expr.Op{
	IsEqualTo:              expr.OpEqual,
	IsNotEqualTo:           expr.OpNotEqual,
	IsGreaterThan:          expr.OpGreater,
	IsGreaterThanOrEqualTo: expr.OpGreaterOrEqual,
	IsLessThan:             expr.OpLess,
	IsLessThanOrEqualTo:    expr.OpLessOrEqual,
}

var opConds = func() map[expr.Op]Condition {
	m := make(map[expr.Op]Condition, len(condOps))
	for c, op := range condOps {
		m[op] = c
	}
	return m
}()

// comparisonFactory covers the kinds whose core test is Compare(op, m, v):
// numbers, dates, enums and lookups. They differ only in how operand text is
// parsed and how a constant is written back.
type comparisonFactory[T any] struct {
	kind   Kind
	parse  func(t reflect.Type, text string) (any, error)
	format func(v any) string
}

func (f *comparisonFactory[T]) Kind() Kind { return f.kind }

func (f *comparisonFactory[T]) Build(path *fieldpath.Path[T], cond Condition, operand string) (expr.Node[T], error) {
	if err := check(f.kind, cond); err != nil {
		return nil, err
	}
	if IsNullity(cond) {
		return guarded(path, cond, nullityCore(path, cond)), nil
	}
	text, ok := operandText(cond, operand)
	if !ok {
		return nil, nil
	}
	v, err := f.parse(path.NonNullableType(), text)
	if err != nil {
		return nil, &OperandError{Kind: f.kind, Text: text, Err: err}
	}
	core := &expr.Compare[T]{Op: condOps[cond], Left: member(path), Right: constant[T](v)}
	return guarded(path, cond, core), nil
}

func (f *comparisonFactory[T]) Recover(pred expr.Node[T]) (Condition, string, error) {
	core, err := coreOf(f.kind, pred)
	if err != nil {
		return "", "", err
	}
	if cond, ok := recoverNullity(core); ok {
		return cond, "", nil
	}
	if c, ok := core.(*expr.Compare[T]); ok {
		if k, ok := c.Right.(*expr.Constant[T]); ok {
			if cond, ok := opConds[c.Op]; ok {
				return cond, f.format(k.Value), nil
			}
		}
	}
	return "", "", unrecognized(f.kind, core.String())
}

var float64Type = reflect.TypeFor[float64]()

func parseNumber(t reflect.Type, text string) (any, error) {
	if t.Kind() == reflect.Interface {
		t = float64Type
	}
	v := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(text, 10, t.Bits())
		if err != nil {
			return nil, err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(text, t.Bits())
		if err != nil {
			return nil, err
		}
		v.SetFloat(n)
	default:
		return nil, fmt.Errorf("%s is not numeric", t)
	}
	return v.Interface(), nil
}

func formatNumber(v any) string {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, rv.Type().Bits())
	}
	return fmt.Sprint(v)
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly}

func parseDate(t reflect.Type, text string) (any, error) {
	if t != timeType && t.Kind() != reflect.Interface {
		return nil, fmt.Errorf("%s is not a date", t)
	}
	var err error
	for _, layout := range dateLayouts {
		var d time.Time
		if d, err = time.Parse(layout, text); err == nil {
			return d, nil
		}
	}
	return nil, err
}

// formatDate writes midnight UTC as a bare date and anything else as RFC 3339.
func formatDate(v any) string {
	d, ok := v.(time.Time)
	if !ok {
		return fmt.Sprint(v)
	}
	if d.Location() == time.UTC && d.Equal(d.Truncate(24*time.Hour)) {
		return d.Format(time.DateOnly)
	}
	return d.Format(time.RFC3339Nano)
}

func parseEnum(t reflect.Type, text string) (any, error) {
	values := EnumValues(t)
	for _, v := range values {
		if strings.EqualFold(fmt.Sprint(v), text) {
			return v, nil
		}
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, t.Bits())
		if err != nil {
			break
		}
		ev := reflect.New(t).Elem()
		ev.SetInt(n)
		if v := ev.Interface(); len(values) == 0 || slices.Contains(values, v) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%q is not a value of %s", text, t)
}

func formatEnum(v any) string { return fmt.Sprint(v) }

func lookupParser(options []any) func(reflect.Type, string) (any, error) {
	return func(t reflect.Type, text string) (any, error) {
		for _, o := range options {
			if expr.Format(o) == text {
				return o, nil
			}
		}
		v, err := convert(t, text)
		if err != nil {
			return nil, err
		}
		if len(options) == 0 {
			return v, nil
		}
		for _, o := range options {
			if c, ok := expr.CompareValues(o, v); ok && c == 0 {
				return o, nil
			}
		}
		return nil, fmt.Errorf("%q is not a lookup option", text)
	}
}

// convert turns text into a value of t.
func convert(t reflect.Type, text string) (any, error) {
	if t.Kind() == reflect.Interface {
		return text, nil
	}
	if t == timeType {
		return cast.ToTimeE(text)
	}

	var (
		v   any
		err error
	)
	switch t.Kind() {
	case reflect.String:
		v = text
	case reflect.Bool:
		v, err = cast.ToBoolE(text)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		v, err = cast.ToInt64E(text)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		v, err = cast.ToUint64E(text)
	case reflect.Float32, reflect.Float64:
		v, err = cast.ToFloat64E(text)
	default:
		return nil, fmt.Errorf("cannot convert to %s", t)
	}
	if err != nil {
		return nil, err
	}
	return reflect.ValueOf(v).Convert(t).Interface(), nil
}
