package format

import (
	"context"
	"reflect"
	"time"

	"github.com/google/go-querystring/query"
	"github.com/gorilla/schema"

	"github.com/go-thor/rabbit/errors"
)

// QueryString formats a struct from its `url` field tags, see
// github.com/google/go-querystring. The parameter name is not used.
//
//	type ListOptions struct {
//		Page    int      `url:"page,omitempty"`
//		Labels  []string `url:"label"`
//	}
func QueryString() Formatter {
	return FormatterFunc(func(_ context.Context, value any, _ string) (map[string][]string, error) {
		values, err := query.Values(value)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "format struct")
		}
		return values, nil
	})
}

// Form formats a struct from its `schema` field tags with the gorilla/schema
// encoder. Time fields are written as RFC 3339.
func Form() Formatter {
	enc := NewSchemaEncoder()
	return FormatterFunc(func(_ context.Context, value any, _ string) (map[string][]string, error) {
		dst := make(map[string][]string)
		if err := enc.Encode(value, dst); err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "format form")
		}
		return dst, nil
	})
}

// NewSchemaEncoder returns the gorilla/schema encoder used for forms.
func NewSchemaEncoder() *schema.Encoder {
	enc := schema.NewEncoder()
	enc.RegisterEncoder(time.Time{}, func(v reflect.Value) string {
		return v.Interface().(time.Time).Format(time.RFC3339)
	})
	return enc
}
