package filter

import (
	"reflect"
	"sync"
	"time"
)

// Kind selects the condition vocabulary and operand parsing of a column filter.
type Kind string

const (
	KindNone         Kind = ""
	KindString       Kind = "string"
	KindNumber       Kind = "number"
	KindDate         Kind = "date"
	KindBoolean      Kind = "boolean"
	KindEnum         Kind = "enum"
	KindCustomLookup Kind = "lookup"
)

var timeType = reflect.TypeFor[time.Time]()

// KindOf derives the filter kind of a non-nullable value type. Types with
// registered enum values are KindEnum. Untyped values report KindNone.
func KindOf(t reflect.Type) Kind {
	if t == nil {
		return KindNone
	}
	if _, ok := enums.Load(t); ok {
		return KindEnum
	}
	if t == timeType {
		return KindDate
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return KindNumber
	}
	return KindNone
}

var enums sync.Map // reflect.Type -> []any

// RegisterEnum declares the closed value set of an enumeration type. Columns
// over E filter as KindEnum and accept the values' names (fmt.Sprint, usually a
// String method) or their underlying integers as operands.
func RegisterEnum[E comparable](values ...E) {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	enums.Store(reflect.TypeFor[E](), vals)
}

// EnumValues returns the registered values of t, or nil.
func EnumValues(t reflect.Type) []any {
	v, ok := enums.Load(t)
	if !ok {
		return nil
	}
	return v.([]any)
}
