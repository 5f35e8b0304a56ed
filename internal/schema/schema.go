// Package schema publishes the JSON Schema of the grid request body and
// validates documents against it.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"

	"github.com/gnemet/gridquery/query"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("document does not match schema")

// ValidationError lists the schema violations of a document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrInvalid, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func reflectSchema(v any, strict bool) *jsonschema.Schema {
	r := jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
		AllowAdditionalProperties:  !strict,
	}
	s := r.Reflect(v)
	// gojsonschema knows drafts up to 7; without $schema it detects the
	// keywords it supports.
	s.Version = ""
	s.ID = ""
	return s
}

// Reflect returns the JSON Schema of v's type. Unknown properties are
// allowed; required properties come from `jsonschema:"required"` tags.
func Reflect(v any) *jsonschema.Schema {
	return reflectSchema(v, false)
}

// FilterData returns the schema of a query.FilterData request body. Unknown
// properties are rejected.
func FilterData() *jsonschema.Schema {
	s := reflectSchema(&query.FilterData{}, true)
	s.Title = "Grid request"
	return s
}

var filterDataSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	raw, err := json.Marshal(FilterData())
	if err != nil {
		return nil, err
	}
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
})

// ValidateFilterData checks a request body against the FilterData schema.
func ValidateFilterData(doc []byte) error {
	s, err := filterDataSchema()
	if err != nil {
		return fmt.Errorf("schema: compile: %w", err)
	}
	return Validate(s, gojsonschema.NewBytesLoader(doc))
}

// Validate checks doc against s.
func Validate(s *gojsonschema.Schema, doc gojsonschema.JSONLoader) error {
	res, err := s.Validate(doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if res.Valid() {
		return nil
	}
	verr := &ValidationError{}
	for _, desc := range res.Errors() {
		verr.Problems = append(verr.Problems, desc.String())
	}
	return verr
}
