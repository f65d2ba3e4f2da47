// Package codec holds codecs that are not tied to a serialization format:
// a passthrough codec for raw bodies and a decoder that picks its
// implementation from the response Content-Type.
package codec

import (
	"context"
	"fmt"
	"io"
	"mime"
	"reflect"
	"strings"
	"sync"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

var (
	bytesType  = reflect.TypeOf([]byte(nil))
	stringType = reflect.TypeOf("")
)

// Raw sends string and []byte bodies as they are and decodes responses
// into string or []byte return types.
type Raw struct {
	ContentType string
}

// NewRaw creates a raw codec writing contentType, application/octet-stream
// when empty.
func NewRaw(contentType string) *Raw {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Raw{ContentType: contentType}
}

// Encode writes value as the body.
func (r *Raw) Encode(_ context.Context, value any, _ reflect.Type, req *rabbit.Request) error {
	switch v := value.(type) {
	case []byte:
		req.SetBody(v, r.ContentType)
	case string:
		req.SetBody([]byte(v), r.ContentType)
	case io.Reader:
		data, err := io.ReadAll(v)
		if err != nil {
			return err
		}
		req.SetBody(data, r.ContentType)
	default:
		return fmt.Errorf("raw codec cannot encode %T", value)
	}
	return nil
}

// Decode returns the body as typ.
func (r *Raw) Decode(_ context.Context, resp *rabbit.Response, typ reflect.Type) (any, error) {
	switch {
	case typ == nil:
		return nil, nil
	case typ == bytesType:
		return append([]byte(nil), resp.Body...), nil
	case typ == stringType:
		return string(resp.Body), nil
	case typ.Kind() == reflect.Interface && stringType.Implements(typ):
		return string(resp.Body), nil
	}
	return nil, fmt.Errorf("raw codec cannot decode into %s", typ)
}

// Codec returns r as both encoder and decoder.
func (r *Raw) Codec() rabbit.Codec {
	return rabbit.Codec{Encoder: r, Decoder: r}
}

// Negotiator decodes with the decoder registered for the response media
// type. Structured suffixes such as application/problem+json fall back to
// the decoder of application/json.
type Negotiator struct {
	mu       sync.RWMutex
	decoders map[string]rabbit.Decoder
	fallback rabbit.Decoder
}

// Negotiate creates a negotiator. fallback handles responses without a
// registered media type and may be nil.
func Negotiate(fallback rabbit.Decoder) *Negotiator {
	return &Negotiator{
		decoders: make(map[string]rabbit.Decoder),
		fallback: fallback,
	}
}

// Register binds a media type to a decoder.
func (n *Negotiator) Register(mediaType string, d rabbit.Decoder) *Negotiator {
	n.mu.Lock()
	n.decoders[strings.ToLower(mediaType)] = d
	n.mu.Unlock()
	return n
}

// Decode dispatches on the Content-Type of resp.
func (n *Negotiator) Decode(ctx context.Context, resp *rabbit.Response, typ reflect.Type) (any, error) {
	ct := resp.Header.Get("Content-Type")
	d := n.lookup(ct)
	if d == nil {
		return nil, errors.Newf(errors.ErrorCodeDecode, "no decoder for content type %q", ct)
	}
	return d.Decode(ctx, resp, typ)
}

func (n *Negotiator) lookup(contentType string) rabbit.Decoder {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return n.fallback
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if d, ok := n.decoders[mediaType]; ok {
		return d
	}
	if i := strings.LastIndexByte(mediaType, '+'); i >= 0 {
		slash := strings.IndexByte(mediaType, '/')
		if d, ok := n.decoders[mediaType[:slash+1]+mediaType[i+1:]]; ok {
			return d
		}
	}
	return n.fallback
}
