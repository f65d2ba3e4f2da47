package timeout

import (
	"context"
	"time"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// WithTimeout creates a timeout interceptor with the specified duration.
// The deadline covers every link after it, including the decode.
func WithTimeout(timeout time.Duration) rabbit.Interceptor {
	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := next(timeoutCtx, inv)
		if err != nil && ctx.Err() == nil && timeoutCtx.Err() == context.DeadlineExceeded {
			return nil, errors.Wrap(errors.ErrorCodeDeadlineExceeded, err,
				"invocation of "+inv.Method.ID+" timed out after "+timeout.String())
		}
		return result, err
	}
}
