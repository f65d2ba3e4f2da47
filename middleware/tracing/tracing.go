package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

const instrumentationName = "github.com/go-thor/rabbit/middleware/tracing"

// Option is an interceptor option
type Option func(*options)

type options struct {
	provider   trace.TracerProvider
	propagator propagation.TextMapPropagator
}

// WithTracerProvider sets the provider spans are started from. Defaults
// to the global provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(o *options) {
		o.provider = provider
	}
}

// WithPropagator sets the propagator used to inject the span context into
// request headers. Defaults to the global propagator.
func WithPropagator(propagator propagation.TextMapPropagator) Option {
	return func(o *options) {
		o.propagator = propagator
	}
}

// New creates a tracing interceptor. It starts a client span per
// invocation and injects its context into the request headers.
func New(opts ...Option) rabbit.Interceptor {
	options := &options{}
	for _, opt := range opts {
		opt(options)
	}
	if options.provider == nil {
		options.provider = otel.GetTracerProvider()
	}
	if options.propagator == nil {
		options.propagator = otel.GetTextMapPropagator()
	}
	tracer := options.provider.Tracer(instrumentationName)

	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		req := inv.Request()
		spanCtx, span := tracer.Start(ctx, inv.Method.ID,
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("rpc.method", inv.Method.ID),
				attribute.String("http.request.method", req.Method),
				attribute.String("url.full", req.URL().Redacted()),
				attribute.String("server.address", req.Host),
				attribute.Int("server.port", req.Port),
			),
		)
		defer span.End()

		options.propagator.Inject(spanCtx, propagation.HeaderCarrier(req.Header))

		result, err := next(spanCtx, inv)

		if status := inv.Response().StatusCode; status != 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}
		if err != nil {
			span.RecordError(err)
			span.SetAttributes(attribute.String("error.type", errors.Code(err)))
			span.SetStatus(codes.Error, err.Error())
		}

		return result, err
	}
}
