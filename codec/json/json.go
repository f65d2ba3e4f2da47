package json

import (
	"bytes"
	"context"
	"reflect"

	jsoniter "github.com/json-iterator/go"

	"github.com/go-thor/rabbit"
)

// ContentType is the media type written by the codec
const ContentType = "application/json"

// Codec is a JSON codec
type Codec struct {
	api jsoniter.API
}

// Option configures the codec
type Option func(*jsoniter.Config)

// WithDisallowUnknownFields rejects response fields missing from the return type
func WithDisallowUnknownFields() Option {
	return func(c *jsoniter.Config) {
		c.DisallowUnknownFields = true
	}
}

// WithUseNumber decodes numbers into json.Number instead of float64
func WithUseNumber() Option {
	return func(c *jsoniter.Config) {
		c.UseNumber = true
	}
}

// New creates a new JSON codec
func New(opts ...Option) *Codec {
	cfg := jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Codec{api: cfg.Froze()}
}

// Encode marshals value into the request body
func (c *Codec) Encode(_ context.Context, value any, _ reflect.Type, req *rabbit.Request) error {
	data, err := c.api.Marshal(value)
	if err != nil {
		return err
	}
	req.SetBody(data, ContentType)
	return nil
}

// Decode unmarshals the response body into a new value of typ. An empty
// body yields the zero value.
func (c *Codec) Decode(_ context.Context, resp *rabbit.Response, typ reflect.Type) (any, error) {
	if typ == nil {
		return nil, nil
	}
	ptr := reflect.New(typ)
	if len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := c.api.Unmarshal(resp.Body, ptr.Interface()); err != nil {
			return nil, err
		}
	}
	return ptr.Elem().Interface(), nil
}

// Codec returns c as both encoder and decoder
func (c *Codec) Codec() rabbit.Codec {
	return rabbit.Codec{Encoder: c, Decoder: c}
}

// Name returns the name of the codec
func (c *Codec) Name() string {
	return "json"
}
