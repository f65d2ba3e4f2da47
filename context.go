package rabbit

import (
	"context"

	"github.com/go-thor/rabbit/errors"
)

// Invocation is the per-call state threaded through the interceptor chain.
// It owns exactly one Request/Response pair; interceptors may mutate the
// pair but cannot replace it.
type Invocation struct {
	// Method describes the method being invoked.
	Method *MethodDescriptor
	// Arguments are the call arguments in parameter order.
	Arguments []any
	// Items is scratch space shared by the interceptors of this call.
	Items map[string]any

	request  *Request
	response *Response
	decoder  Decoder
}

// NewInvocation creates the state for one call of method. decoder may be nil.
func NewInvocation(method *MethodDescriptor, args []any, decoder Decoder) *Invocation {
	httpMethod := method.HTTPMethod
	if httpMethod == "" {
		httpMethod = "GET"
	}
	return &Invocation{
		Method:    method,
		Arguments: args,
		Items:     make(map[string]any),
		request:   NewRequest(httpMethod),
		response:  NewResponse(),
		decoder:   decoder,
	}
}

// Request returns the request of this invocation.
func (inv *Invocation) Request() *Request {
	return inv.request
}

// Response returns the response of this invocation.
func (inv *Invocation) Response() *Response {
	return inv.response
}

// Clone returns an invocation with a copy of the request and an empty
// response. Arguments and item values are shared with inv.
func (inv *Invocation) Clone() *Invocation {
	items := make(map[string]any, len(inv.Items))
	for k, v := range inv.Items {
		items[k] = v
	}
	return &Invocation{
		Method:    inv.Method,
		Arguments: inv.Arguments,
		Items:     items,
		request:   inv.request.Clone(),
		response:  NewResponse(),
		decoder:   inv.decoder,
	}
}

// Decode decodes the current response into the method's return type.
// Without a decoder the result is nil. Failures are decode failures.
func (inv *Invocation) Decode(ctx context.Context) (any, error) {
	if inv.decoder == nil {
		return nil, nil
	}
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	v, err := inv.decoder.Decode(ctx, inv.response, inv.Method.ReturnType)
	if err != nil {
		return nil, errors.DecodeFailure(err)
	}
	return v, nil
}

type contextKey struct {
	name string
}

var invocationKey = &contextKey{"invocation"}

// WithInvocation returns a context carrying inv.
func WithInvocation(ctx context.Context, inv *Invocation) context.Context {
	return context.WithValue(ctx, invocationKey, inv)
}

// InvocationFromContext returns the invocation carried by ctx.
func InvocationFromContext(ctx context.Context) (*Invocation, bool) {
	inv, ok := ctx.Value(invocationKey).(*Invocation)
	return inv, ok
}
