package expr

import (
	"cmp"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/cast"
	"golang.org/x/text/cases"
)

// CompareValues orders two non-nil values of compatible kinds. Numbers of any
// width and signedness compare by value, strings (including named string types)
// lexically, booleans false before true and times chronologically. The second
// result is false when the values cannot be ordered against each other.
func CompareValues(a, b any) (int, bool) {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return ta.Compare(tb), true
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	ka, kb := class(va.Kind()), class(vb.Kind())
	if ka == classNone || kb == classNone {
		return 0, false
	}
	switch {
	case ka == classInt && kb == classInt:
		return cmp.Compare(va.Int(), vb.Int()), true
	case ka == classUint && kb == classUint:
		return cmp.Compare(va.Uint(), vb.Uint()), true
	case ka.numeric() && kb.numeric():
		return cmp.Compare(toFloat(va), toFloat(vb)), true
	case ka == classString && kb == classString:
		return strings.Compare(va.String(), vb.String()), true
	case ka == classBool && kb == classBool:
		x, y := va.Bool(), vb.Bool()
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

type valueClass int

const (
	classNone valueClass = iota
	classInt
	classUint
	classFloat
	classString
	classBool
)

func (c valueClass) numeric() bool { return c == classInt || c == classUint || c == classFloat }

func class(k reflect.Kind) valueClass {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return classInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return classUint
	case reflect.Float32, reflect.Float64:
		return classFloat
	case reflect.String:
		return classString
	case reflect.Bool:
		return classBool
	}
	return classNone
}

func toFloat(v reflect.Value) float64 {
	switch class(v.Kind()) {
	case classInt:
		return float64(v.Int())
	case classUint:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

// IsNumeric reports whether v is a Go number of any width.
func IsNumeric(v any) bool {
	return v != nil && class(reflect.ValueOf(v).Kind()).numeric()
}

// Format renders v as display text. Nil renders as the empty string.
func Format(v any) string {
	if v == nil {
		return ""
	}
	if t, ok := v.(time.Time); ok {
		return t.Format(time.DateTime)
	}
	s, err := cast.ToStringE(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return s
}

// text returns the string form of a value reaching a string function.
func text(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v != nil {
		if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
			return rv.String()
		}
	}
	return Format(v)
}

// Fold applies Unicode full case folding, the comparison form used by every
// case-insensitive function.
func Fold(s string) string {
	return cases.Fold().String(s)
}
