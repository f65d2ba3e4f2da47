// Package form encodes request bodies as application/x-www-form-urlencoded.
package form

import (
	"context"
	"fmt"
	"net/url"
	"reflect"

	"github.com/gorilla/schema"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/format"
)

// ContentType is the media type written by the encoder.
const ContentType = "application/x-www-form-urlencoded"

// Encoder writes structs tagged with `schema` as a form body. Maps of
// string lists are written as they are.
type Encoder struct {
	enc *schema.Encoder
}

// New creates a form encoder.
func New() *Encoder {
	return &Encoder{enc: format.NewSchemaEncoder()}
}

// Encode writes value as a form body.
func (e *Encoder) Encode(_ context.Context, value any, _ reflect.Type, req *rabbit.Request) error {
	var values url.Values
	switch v := value.(type) {
	case url.Values:
		values = v
	case map[string][]string:
		values = v
	case map[string]string:
		values = make(url.Values, len(v))
		for k, s := range v {
			values.Set(k, s)
		}
	default:
		values = make(url.Values)
		if err := e.enc.Encode(value, values); err != nil {
			return fmt.Errorf("form: %w", err)
		}
	}
	req.SetBody([]byte(values.Encode()), ContentType)
	return nil
}

// Codec pairs the form encoder with decoder, since form bodies are only
// sent, not received.
func Codec(decoder rabbit.Decoder) rabbit.Codec {
	return rabbit.Codec{Encoder: New(), Decoder: decoder}
}
