package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// Option is an interceptor option
type Option func(*options)

type options struct {
	perMethod bool
}

// PerMethod gives every method its own limiter instead of sharing one
func PerMethod() Option {
	return func(o *options) {
		o.perMethod = true
	}
}

// New creates an interceptor that waits for a token before each
// invocation. Invocations that cannot get one before their deadline fail
// with ErrorCodeResourceExhausted.
func New(limit rate.Limit, burst int, opts ...Option) rabbit.Interceptor {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}

	shared := rate.NewLimiter(limit, burst)
	var limiters sync.Map

	limiterFor := func(id string) *rate.Limiter {
		if !options.perMethod {
			return shared
		}
		if l, ok := limiters.Load(id); ok {
			return l.(*rate.Limiter)
		}
		l, _ := limiters.LoadOrStore(id, rate.NewLimiter(limit, burst))
		return l.(*rate.Limiter)
	}

	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		if err := limiterFor(inv.Method.ID).Wait(ctx); err != nil {
			if ctxErr := errors.FromContext(ctx); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, errors.Wrap(errors.ErrorCodeResourceExhausted, err, "rate limit of "+inv.Method.ID)
		}
		return next(ctx, inv)
	}
}
