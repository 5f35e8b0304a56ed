package query

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/spf13/cast"

	"github.com/gnemet/gridquery/expr"
)

// AggregateOp selects the footer aggregate of a column.
type AggregateOp string

const (
	AggregateNone    AggregateOp = ""
	AggregateSum     AggregateOp = "sum"
	AggregateAverage AggregateOp = "average"
	AggregateCount   AggregateOp = "count"
	AggregateMin     AggregateOp = "min"
	AggregateMax     AggregateOp = "max"
)

// ErrUnsupportedAggregateType is returned for Sum or Average over a
// non-numeric field.
var ErrUnsupportedAggregateType = errors.New("unsupported aggregate type")

// AggregateError reports the column and type an aggregate was refused for.
type AggregateError struct {
	Column string
	Op     AggregateOp
	Type   reflect.Type
	Err    error
}

func (e *AggregateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("query: %s of %s: %v", e.Op, e.Column, e.Err)
	}
	return fmt.Sprintf("query: %v: %s of %s (%v)", ErrUnsupportedAggregateType, e.Op, e.Column, e.Type)
}

func (e *AggregateError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrUnsupportedAggregateType
}

type numericKind int

const (
	numInt numericKind = iota
	numUint
	numFloat
)

func numericKindOf(t reflect.Type) (numericKind, bool) {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return numInt, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return numUint, true
	case reflect.Float32, reflect.Float64:
		return numFloat, true
	}
	return 0, false
}

type reducer func(values []any) (any, error)

// reducers is the op × numeric-kind table for Sum and Average. Sums keep the
// widest type of their kind; averages are float64, nil over no values.
var reducers = map[AggregateOp]map[numericKind]reducer{
	AggregateSum: {
		numInt:   sum(cast.ToInt64E),
		numUint:  sum(cast.ToUint64E),
		numFloat: sum(cast.ToFloat64E),
	},
	AggregateAverage: {
		numInt:   average(cast.ToInt64E),
		numUint:  average(cast.ToUint64E),
		numFloat: average(cast.ToFloat64E),
	},
}

type number interface{ int64 | uint64 | float64 }

func sum[N number](conv func(any) (N, error)) reducer {
	return func(values []any) (any, error) {
		var total N
		for _, v := range values {
			n, err := conv(v)
			if err != nil {
				return nil, err
			}
			total += n
		}
		return total, nil
	}
}

func average[N number](conv func(any) (N, error)) reducer {
	return func(values []any) (any, error) {
		if len(values) == 0 {
			return nil, nil
		}
		var total float64
		for _, v := range values {
			n, err := conv(v)
			if err != nil {
				return nil, err
			}
			total += float64(n)
		}
		return total / float64(len(values)), nil
	}
}

// Aggregate computes col's aggregate over items. Count is the number of items;
// Min and Max ignore nil values and return nil when none remain; Sum and
// Average require a numeric field. Values behind a nil parent count as nil.
func Aggregate[T any](items []T, col *Column[T]) (any, error) {
	if col.Aggregate == AggregateNone {
		return nil, nil
	}
	if col.Aggregate == AggregateCount {
		return len(items), nil
	}
	if col.Path == nil {
		return nil, &AggregateError{Column: col.Name, Op: col.Aggregate, Err: errNoField}
	}

	values := make([]any, 0, len(items))
	for _, it := range items {
		v, err := col.Path.Eval(it)
		if errors.Is(err, expr.ErrRowAccess) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if v != nil {
			values = append(values, v)
		}
	}

	switch col.Aggregate {
	case AggregateMin, AggregateMax:
		return extremum(values, col.Aggregate == AggregateMax), nil
	case AggregateSum, AggregateAverage:
		t := col.Path.NonNullableType()
		kind, ok := numericKindOf(t)
		if !ok {
			if t.Kind() != reflect.Interface {
				return nil, &AggregateError{Column: col.Name, Op: col.Aggregate, Type: t}
			}
			// Untyped rows: every value must itself be a number.
			for _, v := range values {
				if !expr.IsNumeric(v) {
					return nil, &AggregateError{Column: col.Name, Op: col.Aggregate, Type: reflect.TypeOf(v)}
				}
			}
			kind = numFloat
		}
		out, err := reducers[col.Aggregate][kind](values)
		if err != nil {
			return nil, &AggregateError{Column: col.Name, Op: col.Aggregate, Type: t, Err: err}
		}
		return out, nil
	}
	return nil, fmt.Errorf("query: unknown aggregate %q on %s", col.Aggregate, col.Name)
}

func extremum(values []any, largest bool) any {
	var best any
	for _, v := range values {
		if best == nil {
			best = v
			continue
		}
		n := Order(v, best)
		if (largest && n > 0) || (!largest && n < 0) {
			best = v
		}
	}
	return best
}
