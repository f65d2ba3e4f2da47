package format

import (
	"context"
	"encoding"
	"fmt"
	"reflect"
	"strconv"
	"time"

	"github.com/araddon/dateparse"

	"github.com/go-thor/rabbit/errors"
)

var (
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	stringerType      = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// Scalar formats a single value as {name: [value]}.
func Scalar() Formatter {
	return FormatterFunc(func(_ context.Context, value any, name string) (map[string][]string, error) {
		s, err := formatScalar(value)
		if err != nil {
			return nil, err
		}
		return map[string][]string{name: {s}}, nil
	})
}

// Time formats time values with layout, RFC 3339 when none is given.
// String arguments are parsed with dateparse first, so "2024-03-01" and
// "Mar 1 2024" both format to the same instant. Strings without a zone are
// read as UTC.
func Time(layout ...string) Formatter {
	l := time.RFC3339
	if len(layout) > 0 && layout[0] != "" {
		l = layout[0]
	}
	return FormatterFunc(func(_ context.Context, value any, name string) (map[string][]string, error) {
		var t time.Time
		switch v := value.(type) {
		case time.Time:
			t = v
		case *time.Time:
			t = *v
		case string:
			parsed, err := dateparse.ParseIn(v, time.UTC)
			if err != nil {
				return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "parse time of "+name)
			}
			t = parsed
		case int64:
			t = time.Unix(v, 0)
		default:
			return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "cannot format %T as time", value)
		}
		return map[string][]string{name: {t.Format(l)}}, nil
	})
}

// Slice formats each element with elem and collects every value under
// name, so a []int{1, 2} becomes name=1&name=2.
func Slice(elem Formatter) Formatter {
	return FormatterFunc(func(ctx context.Context, value any, name string) (map[string][]string, error) {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return elem.Format(ctx, value, name)
		}
		values := make([]string, 0, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, ok := deref(rv.Index(i).Interface())
			if !ok {
				continue
			}
			formatted, err := elem.Format(ctx, item, name)
			if err != nil {
				return nil, err
			}
			values = append(values, formatted[name]...)
		}
		return map[string][]string{name: values}, nil
	})
}

// Map formats every entry of a map with the entry key as key. Values may
// be scalars or slices of scalars.
func Map(elem Formatter) Formatter {
	slice := Slice(elem)
	return FormatterFunc(func(ctx context.Context, value any, name string) (map[string][]string, error) {
		rv := reflect.ValueOf(value)
		if rv.Kind() != reflect.Map {
			return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "cannot format %T as map", value)
		}
		out := make(map[string][]string, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := formatScalar(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			item, ok := deref(iter.Value().Interface())
			if !ok {
				continue
			}
			formatted, err := slice.Format(ctx, item, key)
			if err != nil {
				return nil, err
			}
			out[key] = formatted[key]
		}
		return out, nil
	})
}

func formatScalar(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case bool:
		return strconv.FormatBool(v), nil
	case time.Time:
		return v.Format(time.RFC3339), nil
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return "", err
		}
		return string(b), nil
	case fmt.Stringer:
		return v.String(), nil
	}

	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 32), nil
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), nil
	}
	return "", errors.Newf(errors.ErrorCodeInvalidArgument, "cannot format %T as scalar", value)
}
