package rabbit

import (
	"context"
	"reflect"
)

// KeyValueFormatterFactory turns one argument into a multi-valued key/value
// mapping for placement into the path, query or headers.
type KeyValueFormatterFactory interface {
	// Format formats value, declared by param.
	Format(ctx context.Context, value any, param *ParameterDescriptor) (map[string][]string, error)
}

// TemplateParser substitutes placeholders in a URL template.
type TemplateParser interface {
	// Parse returns template with every placeholder replaced from values.
	Parse(template string, values map[string]string) (string, error)
}

// Encoder serializes the body argument into the request.
type Encoder interface {
	// Encode writes value, declared as typ, into req.
	Encode(ctx context.Context, value any, typ reflect.Type, req *Request) error
}

// Decoder deserializes a response into the declared return type.
type Decoder interface {
	// Decode reads resp and returns a value of type typ.
	Decode(ctx context.Context, resp *Response, typ reflect.Type) (any, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, value any, typ reflect.Type, req *Request) error

// Encode calls f.
func (f EncoderFunc) Encode(ctx context.Context, value any, typ reflect.Type, req *Request) error {
	return f(ctx, value, typ, req)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, resp *Response, typ reflect.Type) (any, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, resp *Response, typ reflect.Type) (any, error) {
	return f(ctx, resp, typ)
}

// Codec pairs an encoder with a decoder. Either may be nil: without an
// encoder no body is attached, without a decoder every result is nil.
type Codec struct {
	Encoder Encoder
	Decoder Decoder
}

// Transport executes a built request and fills the invocation's response.
// Implementations are shared between concurrent invocations.
type Transport interface {
	Dispatch(ctx context.Context, inv *Invocation) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, inv *Invocation) error

// Dispatch calls f.
func (f TransportFunc) Dispatch(ctx context.Context, inv *Invocation) error {
	return f(ctx, inv)
}
