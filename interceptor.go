package rabbit

import (
	"context"
)

// HandlerFunc is the next link of an interceptor chain.
type HandlerFunc func(ctx context.Context, inv *Invocation) (any, error)

// Interceptor wraps the dispatch of an invocation. It may
//   - inspect or mutate the request before calling next
//   - inspect or mutate the response and result after next returns
//   - short-circuit by not calling next
//   - replace ctx passed to next, e.g. to add a deadline
//
// Interceptors are shared between concurrent invocations and must not keep
// per-call state outside the Invocation.
type Interceptor func(ctx context.Context, inv *Invocation, next HandlerFunc) (any, error)

// ChainInterceptors combines interceptors into one. The first interceptor
// is the outer-most one: its pre-logic runs first and its post-logic last.
func ChainInterceptors(interceptors ...Interceptor) Interceptor {
	switch len(interceptors) {
	case 0:
		return nil
	case 1:
		return interceptors[0]
	}
	return func(ctx context.Context, inv *Invocation, next HandlerFunc) (any, error) {
		chain := next
		for i := len(interceptors) - 1; i >= 0; i-- {
			current, inner := interceptors[i], chain
			chain = func(ctx context.Context, inv *Invocation) (any, error) {
				return current(ctx, inv, inner)
			}
		}
		return chain(ctx, inv)
	}
}
