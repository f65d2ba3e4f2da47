package tracing

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

func setup() (*tracetest.SpanRecorder, rabbit.Interceptor) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	return recorder, New(WithTracerProvider(provider), WithPropagator(propagation.TraceContext{}))
}

func newInvocation() *rabbit.Invocation {
	inv := rabbit.NewInvocation(rabbit.MustMethod("users.get", "GET", "http://api.test/users/1"), nil, nil)
	inv.Request().Scheme = "http"
	inv.Request().Host = "api.test"
	inv.Request().Port = 80
	inv.Request().Path = "/users/1"
	return inv
}

func TestNew_Span(t *testing.T) {
	recorder, interceptor := setup()
	inv := newInvocation()

	var inner trace.SpanContext
	_, err := interceptor(context.Background(), inv, func(ctx context.Context, inv *rabbit.Invocation) (any, error) {
		inner = trace.SpanContextFromContext(ctx)
		inv.Response().StatusCode = 200
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("Span count mismatch: got %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "users.get" {
		t.Errorf("Span name mismatch: got %s", span.Name())
	}
	if span.SpanKind() != trace.SpanKindClient {
		t.Errorf("Span kind mismatch: got %v", span.SpanKind())
	}
	if span.SpanContext().SpanID() != inner.SpanID() {
		t.Error("next should run inside the span")
	}

	found := false
	for _, kv := range span.Attributes() {
		if kv.Key == "http.response.status_code" && kv.Value.AsInt64() == 200 {
			found = true
		}
	}
	if !found {
		t.Error("expected status code attribute")
	}

	if got := inv.Request().Header.Get("Traceparent"); got == "" {
		t.Error("expected traceparent header to be injected")
	}
}

func TestNew_Error(t *testing.T) {
	recorder, interceptor := setup()

	_, err := interceptor(context.Background(), newInvocation(), func(ctx context.Context, inv *rabbit.Invocation) (any, error) {
		return nil, errors.New(errors.ErrorCodeUnavailable, "down")
	})
	if err == nil {
		t.Fatal("expected error")
	}

	span := recorder.Ended()[0]
	if span.Status().Code != codes.Error {
		t.Errorf("Status mismatch: got %v", span.Status().Code)
	}
	want := attribute.String("error.type", errors.ErrorCodeUnavailable)
	found := false
	for _, kv := range span.Attributes() {
		if kv == want {
			found = true
		}
	}
	if !found {
		t.Errorf("expected %v attribute", want)
	}
	if len(span.Events()) == 0 {
		t.Error("expected recorded error event")
	}
}
