package gridquery

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/gnemet/gridquery/fieldpath"
	"github.com/gnemet/gridquery/filter"
	"github.com/gnemet/gridquery/query"
)

// UIColumn describes a column to the client: how to label it and which filter
// conditions to offer.
type UIColumn struct {
	Field      string             `json:"field"`
	Label      string             `json:"label"`
	Type       string             `json:"type"`
	Kind       filter.Kind        `json:"kind,omitempty"`
	Conditions []filter.Condition `json:"conditions,omitempty"`
	Sortable   bool               `json:"sortable"`
	Visible    bool               `json:"visible"`
	Aggregate  query.AggregateOp  `json:"aggregate,omitempty"`
	LOV        []LOVItem          `json:"lov,omitempty"`
}

type LOVItem struct {
	Value  interface{}       `json:"value"`
	Labels map[string]string `json:"labels,omitempty"`
	Label  string            `json:"label,omitempty"`
}

// Catalog describes one or more tables and how the grid presents them.
type Catalog struct {
	Version  string         `json:"version"`
	Title    string         `json:"title,omitempty"`
	Icon     string         `json:"icon,omitempty"`
	Datagrid DatagridConfig `json:"datagrid,omitempty"`
	Objects  []ObjectDef    `json:"objects" jsonschema:"required,minItems=1"`
}

type DatagridConfig struct {
	Defaults   DatagridDefaults             `json:"defaults"`
	LOVs       map[string][]LOVItem         `json:"lovs"`
	Filters    map[string]FilterDef         `json:"filters"`
	Columns    map[string]DatagridColumnDef `json:"columns"`
	Searchable []string                     `json:"searchable_columns"`
}

type DatagridDefaults struct {
	PageSize      int           `json:"page_size"`
	SortColumn    string        `json:"sort_column"`
	SortDirection string        `json:"sort_direction"`
	Filters       []filter.Spec `json:"filters"`
	Search        string        `json:"search"`
}

// FilterDef overrides the filter kind of a column.
type FilterDef struct {
	Column string `json:"column"`
	Type   string `json:"type"` // text, number, date, boolean, lookup
}

type DatagridColumnDef struct {
	Visible   bool              `json:"visible"`
	Labels    map[string]string `json:"labels"`
	Aggregate string            `json:"aggregate,omitempty"`
	Format    string            `json:"format,omitempty"`
}

type ObjectDef struct {
	Name    string      `json:"name" jsonschema:"required,minLength=1"`
	Columns []ColumnDef `json:"columns"`
}

type ColumnDef struct {
	Name       string            `json:"name" jsonschema:"required,minLength=1"`
	Type       string            `json:"type"`
	Labels     map[string]string `json:"labels"`
	LOV        interface{}       `json:"lov,omitempty"`
	PrimaryKey bool              `json:"primary_key,omitempty"`
}

// LOVQuery runs a dynamic list-of-values query and returns value/label
// pairs.
type LOVQuery func(query string) ([]LOVItem, error)

// LoadCatalog reads a catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog JSON.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := json.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("gridquery: catalog: %w", err)
	}
	if len(cat.Objects) == 0 {
		return nil, fmt.Errorf("gridquery: catalog: no objects found")
	}
	return &cat, nil
}

// Table returns the name of the first object, the table a catalog grid
// reads.
func (c *Catalog) Table() string { return c.Objects[0].Name }

// ColumnsFromCatalog builds Record columns for the first object of cat.
// Labels resolve in lang with English as fallback. Dynamic SQL LOVs are
// resolved through lov when it is not nil.
func ColumnsFromCatalog(cat *Catalog, lang string, lov LOVQuery) ([]*query.Column[Record], error) {
	obj := cat.Objects[0]
	cfg := cat.Datagrid

	searchable := make(map[string]bool, len(cfg.Searchable))
	for _, s := range cfg.Searchable {
		searchable[s] = true
	}

	kinds := make(map[string]filter.Kind, len(cfg.Filters))
	for name, def := range cfg.Filters {
		col := def.Column
		if col == "" {
			col = name
		}
		kinds[col] = filterKind(def.Type)
	}

	cols := make([]*query.Column[Record], 0, len(obj.Columns))
	for _, def := range obj.Columns {
		path, err := fieldpath.New[Record](def.Name, fieldpath.Declare(sqlType(def.Type)))
		if err != nil {
			return nil, err
		}
		col := query.NewColumn(def.Name, path)
		col.Title = label(def.Labels, lang, def.Name)
		col.Kind = kinds[def.Name]
		col.NoSearch = len(searchable) > 0 && !searchable[def.Name]

		if override, ok := cfg.Columns[def.Name]; ok {
			col.Title = label(override.Labels, lang, col.Title)
			col.Format = override.Format
			col.Aggregate = query.AggregateOp(strings.ToLower(override.Aggregate))
		}
		if cfg.Defaults.SortColumn == def.Name {
			col.SortActive = true
			col.SortDescending = strings.EqualFold(cfg.Defaults.SortDirection, "desc")
		}

		items, err := lovItems(cfg.LOVs[def.Name], def.LOV, lang, lov)
		if err != nil {
			return nil, fmt.Errorf("gridquery: lov of %s: %w", def.Name, err)
		}
		for _, it := range items {
			col.Lookup = append(col.Lookup, query.LookupOption{Label: it.Label, Value: it.Value})
		}
		cols = append(cols, col)
	}
	return cols, nil
}

// UIColumns describes cols for the client. Column visibility comes from cat.
func UIColumns[T any](cols []*query.Column[T], cat *Catalog) []UIColumn {
	out := make([]UIColumn, 0, len(cols))
	for _, c := range cols {
		ui := UIColumn{
			Field:     c.Name,
			Label:     c.Title,
			Kind:      c.FilterKind(),
			Sortable:  c.Sortable,
			Visible:   true,
			Aggregate: c.Aggregate,
		}
		if c.Path != nil {
			ui.Field = c.Path.String()
			ui.Type = strings.ToLower(c.Path.NonNullableType().Kind().String())
		}
		if c.Filterable() {
			ui.Conditions = filter.Conditions(ui.Kind)
		}
		if cat != nil {
			if override, ok := cat.Datagrid.Columns[c.Name]; ok {
				ui.Visible = override.Visible
			}
		}
		for _, o := range c.Lookup {
			ui.LOV = append(ui.LOV, LOVItem{Value: o.Value, Label: o.Label})
		}
		out = append(out, ui)
	}
	return out
}

func label(labels map[string]string, lang, fallback string) string {
	if l, ok := labels[lang]; ok {
		return l
	}
	if l, ok := labels["en"]; ok {
		return l
	}
	return fallback
}

func filterKind(t string) filter.Kind {
	switch strings.ToLower(t) {
	case "text", "string":
		return filter.KindString
	case "number", "int_bool":
		return filter.KindNumber
	case "date":
		return filter.KindDate
	case "boolean":
		return filter.KindBoolean
	case "lookup", "lov":
		return filter.KindCustomLookup
	}
	return filter.KindNone
}

// sqlType maps a catalog column type to the Go type its values scan into.
func sqlType(t string) reflect.Type {
	t = strings.ToLower(t)
	if i := strings.IndexAny(t, "( "); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "text", "varchar", "char", "character", "string", "uuid", "citext":
		return reflect.TypeFor[string]()
	case "int", "integer", "int2", "int4", "int8", "smallint", "bigint", "serial", "bigserial":
		return reflect.TypeFor[int64]()
	case "numeric", "decimal", "real", "float", "float4", "float8", "double", "money", "number":
		return reflect.TypeFor[float64]()
	case "bool", "boolean":
		return reflect.TypeFor[bool]()
	case "date", "timestamp", "timestamptz", "time":
		return reflect.TypeFor[time.Time]()
	}
	return nil
}

func lovItems(global []LOVItem, inline interface{}, lang string, lov LOVQuery) ([]LOVItem, error) {
	items := []LOVItem{}
	for _, item := range global {
		items = append(items, processLovItem(item, lang))
	}

	switch v := inline.(type) {
	case string: // Dynamic SQL
		if lov == nil {
			break
		}
		dyn, err := lov(strings.ReplaceAll(v, "{lang}", lang))
		if err != nil {
			return nil, err
		}
		items = append(items, dyn...)
	case []interface{}: // Static list
		for _, item := range v {
			m, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			li := LOVItem{Value: m["value"]}
			if labels, ok := m["labels"].(map[string]interface{}); ok {
				li.Labels = make(map[string]string)
				for k, v := range labels {
					if s, ok := v.(string); ok {
						li.Labels[k] = s
					}
				}
			}
			if s, ok := m["label"].(string); ok {
				li.Label = s
			} else if m["label"] != nil {
				li.Label = fmt.Sprintf("%v", m["label"])
			}
			items = append(items, processLovItem(li, lang))
		}
	}
	return items, nil
}

func processLovItem(item LOVItem, lang string) LOVItem {
	li := LOVItem{
		Value:  item.Value,
		Labels: item.Labels,
		Label:  item.Label,
	}
	if item.Labels != nil {
		li.Label = label(item.Labels, lang, item.Label)
	}
	return li
}
