// Package format turns call arguments into key/value lists for the path,
// query and header of a request. Formatters are selected by the type tag
// resolved when the method descriptor was built.
package format

import (
	"context"
	"reflect"
	"sync"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// Formatter formats one argument. name is the parameter name; formatters
// for composite values may ignore it and use field names instead.
type Formatter interface {
	Format(ctx context.Context, value any, name string) (map[string][]string, error)
}

// FormatterFunc adapts a function to Formatter.
type FormatterFunc func(ctx context.Context, value any, name string) (map[string][]string, error)

// Format calls f.
func (f FormatterFunc) Format(ctx context.Context, value any, name string) (map[string][]string, error) {
	return f(ctx, value, name)
}

// Registry is a rabbit.KeyValueFormatterFactory that dispatches on the
// parameter's type tag.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
}

// NewRegistry returns a registry with the built-in formatters.
func NewRegistry() *Registry {
	r := &Registry{formatters: make(map[string]Formatter)}
	scalar := Scalar()
	r.Register(rabbit.TagScalar, scalar)
	r.Register(rabbit.TagTime, Time())
	r.Register(rabbit.TagSlice, Slice(scalar))
	r.Register(rabbit.TagMap, Map(scalar))
	r.Register(rabbit.TagStruct, QueryString())
	r.Register(rabbit.TagForm, Form())
	return r
}

// Register sets the formatter for tag, replacing any previous one.
func (r *Registry) Register(tag string, f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatters[tag] = f
}

// Lookup returns the formatter for tag.
func (r *Registry) Lookup(tag string) (Formatter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.formatters[tag]
	return f, ok
}

// Format implements rabbit.KeyValueFormatterFactory. Nil arguments format
// to an empty mapping.
func (r *Registry) Format(ctx context.Context, value any, param *rabbit.ParameterDescriptor) (map[string][]string, error) {
	value, ok := deref(value)
	if !ok {
		return map[string][]string{}, nil
	}
	tag := param.Format
	if tag == "" {
		tag = rabbit.TagFor(reflect.TypeOf(value))
	}
	f, ok := r.Lookup(tag)
	if !ok {
		return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "no formatter for tag %q of parameter %s", tag, param.Name)
	}
	return f.Format(ctx, value, param.Name)
}

// deref follows pointers. It reports false for nil values.
func deref(v any) (any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false
		}
		// Keep pointers whose target formats through a method set.
		if rv.Type().Implements(textMarshalerType) || rv.Type().Implements(stringerType) {
			return rv.Interface(), true
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		if rv.IsNil() {
			return nil, false
		}
	}
	return rv.Interface(), true
}

var _ rabbit.KeyValueFormatterFactory = (*Registry)(nil)
