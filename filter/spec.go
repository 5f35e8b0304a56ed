package filter

import (
	"fmt"
	"strings"

	"github.com/gnemet/gridquery/expr"
	"github.com/gnemet/gridquery/fieldpath"
)

// Spec is the portable form of one column filter: the dotted field path, the
// condition machine name and the operand text.
type Spec struct {
	Field       string    `json:"field" msgpack:"f" jsonschema:"required,minLength=1"`
	Condition   Condition `json:"condition" msgpack:"c" jsonschema:"required,enum=Contains,enum=DoesNotContain,enum=StartsWith,enum=EndsWith,enum=IsEqualTo,enum=IsNotEqualTo,enum=IsNullOrEmpty,enum=IsNotNullOrEmpty,enum=IsGreaterThan,enum=IsGreaterThanOrEqualTo,enum=IsLessThan,enum=IsLessThanOrEqualTo,enum=IsNull,enum=IsNotNull,enum=True,enum=False"`
	FilterValue string    `json:"filterValue,omitempty" msgpack:"v,omitempty"`
}

// String renders the spec in the compact "field:Condition:value" form used in
// query strings.
func (s Spec) String() string {
	if s.FilterValue == "" {
		return s.Field + ":" + string(s.Condition)
	}
	return s.Field + ":" + string(s.Condition) + ":" + s.FilterValue
}

// ParseSpec parses the compact form produced by Spec.String. The value may
// itself contain colons.
func ParseSpec(s string) (Spec, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) < 2 || strings.TrimSpace(parts[0]) == "" || strings.TrimSpace(parts[1]) == "" {
		return Spec{}, fmt.Errorf("filter: malformed filter %q, want field:Condition[:value]", s)
	}
	spec := Spec{Field: strings.TrimSpace(parts[0]), Condition: Condition(strings.TrimSpace(parts[1]))}
	if len(parts) == 3 {
		spec.FilterValue = parts[2]
	}
	return spec, nil
}

// ToSpec recovers the Spec of a predicate built by f over path.
func ToSpec[T any](f Factory[T], path *fieldpath.Path[T], pred expr.Node[T]) (Spec, error) {
	cond, value, err := f.Recover(pred)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Field: path.String(), Condition: cond, FilterValue: value}, nil
}

// FromSpec rebuilds the predicate described by s. The spec must name path.
func FromSpec[T any](f Factory[T], path *fieldpath.Path[T], s Spec) (expr.Node[T], error) {
	if s.Field != path.String() {
		return nil, fmt.Errorf("filter: spec field %q does not match %q", s.Field, path)
	}
	return f.Build(path, s.Condition, s.FilterValue)
}
