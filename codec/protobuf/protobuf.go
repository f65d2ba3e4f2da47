package protobuf

import (
	"context"
	"fmt"
	"reflect"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/go-thor/rabbit"
)

// Content types written by the codec
const (
	ContentType     = "application/x-protobuf"
	JSONContentType = "application/json"
)

var messageType = reflect.TypeOf((*proto.Message)(nil)).Elem()

// Codec is a protobuf codec
type Codec struct {
	json bool
}

// Option configures the codec
type Option func(*Codec)

// WithJSON switches the wire format to protojson
func WithJSON() Option {
	return func(c *Codec) {
		c.json = true
	}
}

// New creates a new protobuf codec
func New(opts ...Option) *Codec {
	c := &Codec{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Encode marshals a proto.Message into the request body
func (c *Codec) Encode(_ context.Context, value any, _ reflect.Type, req *rabbit.Request) error {
	message, ok := value.(proto.Message)
	if !ok {
		return fmt.Errorf("type %T is not proto.Message", value)
	}
	if c.json {
		data, err := protojson.Marshal(message)
		if err != nil {
			return err
		}
		req.SetBody(data, JSONContentType)
		return nil
	}
	data, err := proto.Marshal(message)
	if err != nil {
		return err
	}
	req.SetBody(data, ContentType)
	return nil
}

// Decode unmarshals the response body into a new message of typ, which
// must be a pointer to a generated message struct
func (c *Codec) Decode(_ context.Context, resp *rabbit.Response, typ reflect.Type) (any, error) {
	if typ == nil {
		return nil, nil
	}
	if typ.Kind() != reflect.Pointer || !typ.Implements(messageType) {
		return nil, fmt.Errorf("type %s is not proto.Message", typ)
	}
	message := reflect.New(typ.Elem()).Interface().(proto.Message)
	var err error
	if c.json {
		err = protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(resp.Body, message)
	} else {
		err = proto.Unmarshal(resp.Body, message)
	}
	if err != nil {
		return nil, err
	}
	return message, nil
}

// Codec returns c as both encoder and decoder
func (c *Codec) Codec() rabbit.Codec {
	return rabbit.Codec{Encoder: c, Decoder: c}
}

// Name returns the name of the codec
func (c *Codec) Name() string {
	if c.json {
		return "protojson"
	}
	return "protobuf"
}
