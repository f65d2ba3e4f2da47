package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// Types maps the type names used in method tables to Go types.
type Types map[string]reflect.Type

// DefaultTypes returns the built-in type names. An empty name means any.
func DefaultTypes() Types {
	return Types{
		"":                  reflect.TypeFor[any](),
		"any":               reflect.TypeFor[any](),
		"string":            reflect.TypeFor[string](),
		"int":               reflect.TypeFor[int](),
		"int64":             reflect.TypeFor[int64](),
		"uint":              reflect.TypeFor[uint](),
		"float64":           reflect.TypeFor[float64](),
		"bool":              reflect.TypeFor[bool](),
		"time":              reflect.TypeFor[time.Time](),
		"bytes":             reflect.TypeFor[[]byte](),
		"[]string":          reflect.TypeFor[[]string](),
		"[]int":             reflect.TypeFor[[]int](),
		"map[string]string": reflect.TypeFor[map[string]string](),
		"object":            reflect.TypeFor[map[string]any](),
		"[]object":          reflect.TypeFor[[]map[string]any](),
	}
}

// Descriptors builds a method descriptor for every declared method. extra
// adds or overrides type names.
func (c *Config) Descriptors(extra Types) ([]*rabbit.MethodDescriptor, error) {
	types := DefaultTypes()
	for name, typ := range extra {
		types[name] = typ
	}

	descs := make([]*rabbit.MethodDescriptor, 0, len(c.Methods))
	for _, m := range c.Methods {
		desc, err := c.descriptor(m, types)
		if err != nil {
			return nil, err
		}
		descs = append(descs, desc)
	}
	return descs, nil
}

func (c *Config) descriptor(m Method, types Types) (*rabbit.MethodDescriptor, error) {
	lookup := func(name string) (reflect.Type, error) {
		typ, ok := types[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "method %s: unknown type %q", m.ID, name)
		}
		return typ, nil
	}

	var opts []rabbit.MethodOption
	for _, p := range m.Params {
		target, err := rabbit.ParseTarget(p.In)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "method "+m.ID)
		}
		typ, err := lookup(p.Type)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rabbit.Param(p.Name, target, typ, p.Format))
	}
	if m.Returns != "" {
		typ, err := lookup(m.Returns)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rabbit.ReturnsType(typ))
	}

	return rabbit.NewMethod(m.ID, m.HTTPMethod, c.resolveURL(m.URL), opts...)
}

// resolveURL prefixes relative method URLs with BaseURL.
func (c *Config) resolveURL(u string) string {
	if c.BaseURL == "" || strings.Contains(u, "://") {
		return u
	}
	return strings.TrimSuffix(c.BaseURL, "/") + "/" + strings.TrimPrefix(u, "/")
}
