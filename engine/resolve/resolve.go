// Package resolve walks dotted paths ("players.0.zones.hand.cards") through
// a heterogeneous value tree of maps, slices and objects.
package resolve

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Error kinds. Match with errors.Is.
var (
	ErrMissingKey      = errors.New("missing key")
	ErrNotIndex        = errors.New("segment is not a sequence index")
	ErrIndexOutOfRange = errors.New("index out of bounds")
	ErrUnresolvable    = errors.New("cannot resolve segment")
)

// Error reports a failed path step.
type Error struct {
	Kind    error
	Path    string
	Segment string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: segment %q in path %q", e.Kind, e.Segment, e.Path)
}

func (e *Error) Unwrap() error { return e.Kind }

// Fielder is implemented by objects that expose named fields to paths.
type Fielder interface {
	Field(name string) (any, bool)
}

// Lookup is the generic keyed-access fallback tried last.
type Lookup interface {
	Lookup(key string) (any, bool)
}

// Path resolves path against root. An empty path returns root unchanged.
func Path(root any, path string) (any, error) {
	if path == "" {
		return root, nil
	}
	current := root
	for _, seg := range strings.Split(path, ".") {
		next, err := step(current, seg)
		if err != nil {
			return nil, &Error{Kind: err, Path: path, Segment: seg}
		}
		current = next
	}
	return current, nil
}

// step resolves one segment against the current value.
func step(current any, seg string) (any, error) {
	if current == nil {
		return nil, ErrUnresolvable
	}
	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Interface {
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		return mapStep(rv, seg)
	case reflect.Slice, reflect.Array:
		return sliceStep(rv, seg)
	case reflect.Pointer:
		if rv.IsNil() {
			return nil, ErrUnresolvable
		}
	}

	if f, ok := current.(Fielder); ok {
		if v, ok := f.Field(seg); ok {
			return v, nil
		}
	}
	if v, ok := structField(rv, seg); ok {
		return v, nil
	}
	if l, ok := current.(Lookup); ok {
		if v, ok := l.Lookup(seg); ok {
			return v, nil
		}
	}
	return nil, ErrUnresolvable
}

func mapStep(m reflect.Value, seg string) (any, error) {
	if m.IsNil() {
		return nil, ErrMissingKey
	}
	keyType := m.Type().Key()

	// Exact key first.
	switch keyType.Kind() {
	case reflect.String:
		if v := m.MapIndex(reflect.ValueOf(seg).Convert(keyType)); v.IsValid() {
			return v.Interface(), nil
		}
	case reflect.Interface:
		if v := m.MapIndex(reflect.ValueOf(seg)); v.IsValid() {
			return v.Interface(), nil
		}
	}

	// Integer-keyed fallback for definitions that stringify integer keys.
	n, err := strconv.Atoi(seg)
	if err != nil {
		return nil, ErrMissingKey
	}
	switch keyType.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		k := reflect.New(keyType).Elem()
		k.SetInt(int64(n))
		if v := m.MapIndex(k); v.IsValid() {
			return v.Interface(), nil
		}
	case reflect.Interface:
		if v := m.MapIndex(reflect.ValueOf(n)); v.IsValid() {
			return v.Interface(), nil
		}
	}
	return nil, ErrMissingKey
}

func sliceStep(s reflect.Value, seg string) (any, error) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 {
		return nil, ErrNotIndex
	}
	if idx >= s.Len() {
		return nil, ErrIndexOutOfRange
	}
	return s.Index(idx).Interface(), nil
}

// structField reads an exported struct field by json tag or field name.
func structField(rv reflect.Value, name string) (any, bool) {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if tag == name || f.Name == name {
			return rv.Field(i).Interface(), true
		}
	}
	return nil, false
}
