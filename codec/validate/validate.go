// Package validate checks request bodies with struct tags before they are
// encoded.
package validate

import (
	"context"
	"reflect"

	"github.com/go-playground/validator/v10"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// Encoder validates struct bodies and hands them to the next encoder.
type Encoder struct {
	next     rabbit.Encoder
	validate *validator.Validate
}

// Option configures the encoder.
type Option func(*Encoder)

// WithValidator replaces the default validator instance.
func WithValidator(v *validator.Validate) Option {
	return func(e *Encoder) {
		e.validate = v
	}
}

// New wraps next with struct validation.
func New(next rabbit.Encoder, opts ...Option) *Encoder {
	e := &Encoder{
		next:     next,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode validates value when it is a struct or a pointer to one. Other
// values pass through untouched.
func (e *Encoder) Encode(ctx context.Context, value any, typ reflect.Type, req *rabbit.Request) error {
	rv := reflect.ValueOf(value)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if err := e.validate.StructCtx(ctx, value); err != nil {
			return errors.Wrap(errors.ErrorCodeInvalidArgument, err, "invalid request body")
		}
	}
	return e.next.Encode(ctx, value, typ, req)
}

// Codec wraps the encoder of c with validation.
func Codec(c rabbit.Codec, opts ...Option) rabbit.Codec {
	return rabbit.Codec{Encoder: New(c.Encoder, opts...), Decoder: c.Decoder}
}
