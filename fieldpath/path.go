// Package fieldpath resolves dotted member paths such as "Child.GrandChild.Name"
// against items of a fixed type.
//
// A Path is resolved once against the item type and is immutable afterwards, so a
// single Path can be shared by every column, filter and sorter that refers to the
// same piece of data. Struct fields are matched by their exported Go name; map
// segments are looked up by key, which is how dynamic rows (map[string]any) are
// addressed.
package fieldpath

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrRowAccess is returned when a path is evaluated through a nil intermediate
// value. Correctly guarded predicates never produce it.
var ErrRowAccess = errors.New("row access failure")

// AccessError reports the segment that could not be dereferenced.
type AccessError struct {
	Path    string
	Segment string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%v: %s is nil while reading %s", ErrRowAccess, e.Segment, e.Path)
}

func (e *AccessError) Unwrap() error { return ErrRowAccess }

var anyType = reflect.TypeFor[any]()

// Segment is one member access within a Path.
type Segment struct {
	// Name is the struct field name or map key.
	Name string
	// Type is the declared type of the value produced by this access.
	Type reflect.Type
	// Nullable reports whether the value produced by this access can be nil.
	Nullable bool

	index []int
}

// Path is an immutable chain of member accesses from T down to a value.
type Path[T any] struct {
	segs     []Segment
	declared reflect.Type
}

// Option configures path resolution.
type Option func(*options)

type options struct {
	declared reflect.Type
}

// Declare sets the terminal value type for paths whose last segment is untyped,
// typically a key in a map[string]any row.
func Declare(t reflect.Type) Option {
	return func(o *options) { o.declared = t }
}

// New resolves path against T.
func New[T any](path string, opts ...Option) (*Path[T], error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("fieldpath: empty path")
	}

	p := &Path[T]{declared: o.declared}
	typ := reflect.TypeFor[T]()
	for _, name := range strings.Split(path, ".") {
		if name == "" {
			return nil, fmt.Errorf("fieldpath: empty segment in %q", path)
		}
		seg, err := resolve(typ, name)
		if err != nil {
			return nil, fmt.Errorf("fieldpath: %s: %w", path, err)
		}
		p.segs = append(p.segs, seg)
		typ = seg.Type
	}
	return p, nil
}

// MustNew is like New but panics on error. It is meant for column declarations
// built from literals.
func MustNew[T any](path string, opts ...Option) *Path[T] {
	p, err := New[T](path, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func resolve(typ reflect.Type, name string) (Segment, error) {
	t := typ
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		f, ok := t.FieldByName(name)
		if !ok {
			return Segment{}, fmt.Errorf("field %s not found on %s", name, t)
		}
		if !f.IsExported() {
			return Segment{}, fmt.Errorf("field %s on %s is not exported", name, t)
		}
		return Segment{Name: name, Type: f.Type, Nullable: nullable(f.Type), index: f.Index}, nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return Segment{}, fmt.Errorf("map key of %s is not a string", t)
		}
		return Segment{Name: name, Type: t.Elem(), Nullable: true}, nil
	case reflect.Interface:
		// Resolved at evaluation time.
		return Segment{Name: name, Type: anyType, Nullable: true}, nil
	default:
		return Segment{}, fmt.Errorf("cannot access %s on %s", name, t)
	}
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return true
	}
	return false
}

// String returns the dotted form of the path.
func (p *Path[T]) String() string {
	names := make([]string, len(p.segs))
	for i := range p.segs {
		names[i] = p.segs[i].Name
	}
	return strings.Join(names, ".")
}

// Name returns the terminal member name.
func (p *Path[T]) Name() string { return p.segs[len(p.segs)-1].Name }

// Len returns the number of member accesses.
func (p *Path[T]) Len() int { return len(p.segs) }

// Segment returns the i-th member access, root first.
func (p *Path[T]) Segment(i int) Segment { return p.segs[i] }

// Prefix returns the sub-path made of the first n segments.
func (p *Path[T]) Prefix(n int) *Path[T] {
	if n >= len(p.segs) {
		return p
	}
	return &Path[T]{segs: p.segs[:n:n]}
}

// ValueType returns the declared type of the terminal value.
func (p *Path[T]) ValueType() reflect.Type {
	t := p.segs[len(p.segs)-1].Type
	if p.declared != nil && t.Kind() == reflect.Interface {
		return p.declared
	}
	return t
}

// NonNullableType returns the terminal type with pointer indirections removed.
// Untyped terminals report the empty interface type.
func (p *Path[T]) NonNullableType() reflect.Type {
	t := p.ValueType()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

// Eval reads the terminal value from item. Pointers are followed, so a *int
// field yields an int, and a nil terminal yields nil. A nil intermediate value
// yields an *AccessError.
func (p *Path[T]) Eval(item T) (any, error) {
	v := reflect.ValueOf(&item).Elem()
	for i := range p.segs {
		s := &p.segs[i]
		v = indirect(v)
		if !v.IsValid() {
			parent := "item"
			if i > 0 {
				parent = p.segs[i-1].Name
			}
			return nil, &AccessError{Path: p.String(), Segment: parent}
		}
		switch v.Kind() {
		case reflect.Struct:
			if s.index == nil {
				f := v.FieldByName(s.Name)
				if !f.IsValid() {
					return nil, fmt.Errorf("fieldpath: %s: field %s not found on %s", p, s.Name, v.Type())
				}
				v = f
				continue
			}
			f, err := v.FieldByIndexErr(s.index)
			if err != nil {
				// nil embedded pointer
				return nil, &AccessError{Path: p.String(), Segment: s.Name}
			}
			v = f
		case reflect.Map:
			if v.Type().Key().Kind() != reflect.String {
				return nil, fmt.Errorf("fieldpath: %s: map key of %s is not a string", p, v.Type())
			}
			v = v.MapIndex(reflect.ValueOf(s.Name).Convert(v.Type().Key()))
		default:
			return nil, fmt.Errorf("fieldpath: %s: cannot access %s on %s", p, s.Name, v.Type())
		}
	}
	return value(v), nil
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func value(v reflect.Value) any {
	v = indirect(v)
	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}
	if !v.CanInterface() {
		return nil
	}
	return v.Interface()
}
