// Package yaml encodes bodies as YAML. Values go through their JSON
// representation, so `json` field tags apply.
package yaml

import (
	"context"
	"reflect"

	"github.com/ghodss/yaml"

	"github.com/go-thor/rabbit"
)

// ContentType is the media type written by the codec.
const ContentType = "application/yaml"

// Codec is a YAML codec.
type Codec struct{}

// New creates a new YAML codec.
func New() *Codec {
	return &Codec{}
}

// Encode marshals value into the request body.
func (c *Codec) Encode(_ context.Context, value any, _ reflect.Type, req *rabbit.Request) error {
	data, err := yaml.Marshal(value)
	if err != nil {
		return err
	}
	req.SetBody(data, ContentType)
	return nil
}

// Decode unmarshals the response body into a new value of typ.
func (c *Codec) Decode(_ context.Context, resp *rabbit.Response, typ reflect.Type) (any, error) {
	if typ == nil {
		return nil, nil
	}
	ptr := reflect.New(typ)
	if len(resp.Body) > 0 {
		if err := yaml.Unmarshal(resp.Body, ptr.Interface()); err != nil {
			return nil, err
		}
	}
	return ptr.Elem().Interface(), nil
}

// Codec returns c as both encoder and decoder.
func (c *Codec) Codec() rabbit.Codec {
	return rabbit.Codec{Encoder: c, Decoder: c}
}

// Name returns the name of the codec.
func (c *Codec) Name() string {
	return "yaml"
}
