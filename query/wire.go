package query

import (
	"context"
	"strings"

	"github.com/gnemet/gridquery/filter"
)

// FilterData is the request sent to a server-side loader.
type FilterData struct {
	// OrderBy is "<field> asc" or "<field> desc". A bare field sorts ascending.
	OrderBy string        `json:"orderBy,omitempty" jsonschema:"pattern=^\\S+( (asc|desc|ASC|DESC))?$"`
	Query   string        `json:"query,omitempty"`
	Top     *int          `json:"top,omitempty" jsonschema:"minimum=0"`
	Skip    *int          `json:"skip,omitempty" jsonschema:"minimum=0"`
	Filters []filter.Spec `json:"filters,omitempty"`
}

// PaginationResult is a loader's response: one page of records plus the total
// number of matching records when the server knows it.
type PaginationResult[T any] struct {
	Top        int    `json:"top"`
	Skip       int    `json:"skip"`
	Total      *int   `json:"total,omitempty"`
	Records    []T    `json:"records"`
	PageNumber int    `json:"pageNumber"`
	Query      string `json:"query,omitempty"`
	OrderBy    string `json:"orderBy,omitempty"`
}

// Loader fetches pages from a remote store.
type Loader[T any] interface {
	LoadPage(ctx context.Context, req FilterData) (*PaginationResult[T], error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc[T any] func(ctx context.Context, req FilterData) (*PaginationResult[T], error)

func (f LoaderFunc[T]) LoadPage(ctx context.Context, req FilterData) (*PaginationResult[T], error) {
	return f(ctx, req)
}

// FormatOrderBy renders the OrderBy clause of a FilterData.
func FormatOrderBy(field string, descending bool) string {
	if descending {
		return field + " desc"
	}
	return field + " asc"
}

// ParseOrderBy splits an OrderBy clause. A bare field name sorts ascending.
func ParseOrderBy(s string) (field string, descending bool, ok bool) {
	parts := strings.Fields(s)
	switch len(parts) {
	case 1:
		return parts[0], false, true
	case 2:
		switch strings.ToLower(parts[1]) {
		case "asc":
			return parts[0], false, true
		case "desc":
			return parts[0], true, true
		}
	}
	return "", false, false
}
