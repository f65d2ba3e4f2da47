package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// Options configures the retry interceptor
type Options struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	// InitialInterval is the wait before the first retry
	InitialInterval time.Duration
	// MaxInterval caps the exponential wait
	MaxInterval time.Duration
	// RetryableErrors lists the error codes that are retried
	RetryableErrors []string
	// OnRetry is called before each retry
	OnRetry func(ctx context.Context, attempt int, err error)
}

// Option configures the retry interceptor
type Option func(*Options)

// WithMaxRetries sets the maximum number of retries
func WithMaxRetries(max int) Option {
	return func(o *Options) {
		o.MaxRetries = max
	}
}

// WithInterval sets the initial and maximum backoff interval
func WithInterval(initial, max time.Duration) Option {
	return func(o *Options) {
		o.InitialInterval = initial
		o.MaxInterval = max
	}
}

// WithRetryableErrors sets the retryable error codes
func WithRetryableErrors(codes ...string) Option {
	return func(o *Options) {
		o.RetryableErrors = codes
	}
}

// WithOnRetry sets the retry callback
func WithOnRetry(fn func(ctx context.Context, attempt int, err error)) Option {
	return func(o *Options) {
		o.OnRetry = fn
	}
}

// New creates a retry interceptor. Each retry runs the rest of the chain
// again on the same invocation after resetting its response.
func New(opts ...Option) rabbit.Interceptor {
	options := &Options{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		RetryableErrors: []string{
			errors.ErrorCodeTimeout,
			errors.ErrorCodeUnavailable,
			errors.ErrorCodeResourceExhausted,
		},
		OnRetry: func(ctx context.Context, attempt int, err error) {
			slog.WarnContext(ctx, "retrying invocation",
				slog.Int("attempt", attempt),
				slog.Any("error", err))
		},
	}

	for _, opt := range opts {
		opt(options)
	}

	retryable := make(map[string]bool, len(options.RetryableErrors))
	for _, code := range options.RetryableErrors {
		retryable[code] = true
	}

	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = options.InitialInterval
		eb.MaxInterval = options.MaxInterval
		eb.MaxElapsedTime = 0
		eb.Reset()
		var policy backoff.BackOff = &backoff.StopBackOff{}
		if options.MaxRetries > 0 {
			// WithMaxRetries treats zero as unlimited
			policy = backoff.WithMaxRetries(eb, uint64(options.MaxRetries))
		}
		b := backoff.WithContext(policy, ctx)

		var (
			result  any
			attempt int
		)
		operation := func() error {
			if attempt > 0 {
				inv.Response().Reset()
			}
			attempt++

			r, err := next(ctx, inv)
			if err == nil {
				result = r
				return nil
			}
			if !retryable[errors.Code(err)] {
				return backoff.Permanent(err)
			}
			return err
		}
		notify := func(err error, _ time.Duration) {
			if options.OnRetry != nil {
				options.OnRetry(ctx, attempt, err)
			}
		}

		if err := backoff.RetryNotify(operation, b, notify); err != nil {
			if ctxErr := errors.FromContext(ctx); ctxErr != nil && err == ctx.Err() {
				return nil, ctxErr
			}
			return nil, err
		}
		return result, nil
	}
}
