package requestid

import (
	"context"

	"github.com/google/uuid"

	"github.com/go-thor/rabbit"
)

// Header is the default request id header.
const Header = "X-Request-Id"

type ctxKey struct{}

// NewContext returns a context carrying id. New uses it instead of
// generating one, so a server can forward the id it received.
func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the id carried by ctx.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok && id != ""
}

// New creates an interceptor that sets header on requests that do not
// carry it yet. An empty header means Header.
func New(header string) rabbit.Interceptor {
	if header == "" {
		header = Header
	}
	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		req := inv.Request()
		id := req.Header.Get(header)
		if id == "" {
			var ok bool
			if id, ok = FromContext(ctx); !ok {
				id = uuid.NewString()
			}
			req.SetHeader(header, id)
		}
		return next(NewContext(ctx, id), inv)
	}
}
