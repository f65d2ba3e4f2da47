package main

import (
	"context"
	stderrors "errors"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/middleware/metrics"
	"github.com/go-thor/rabbit/middleware/tracing"
)

// telemetry exports invocation spans and metrics to an OTLP collector.
type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

func newTelemetry(ctx context.Context, endpoint string, insecure bool) (*telemetry, error) {
	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(endpoint)}
	if insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}

	traceExporter, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, err
	}
	metricExporter, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, err
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("rabbit"),
		semconv.ServiceVersion(Version()),
	)
	return &telemetry{
		tracerProvider: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(traceExporter),
			sdktrace.WithResource(res),
		),
		meterProvider: sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
			sdkmetric.WithResource(res),
		),
	}, nil
}

// Interceptors returns the tracing and metrics interceptors bound to the
// exporting providers.
func (t *telemetry) Interceptors() ([]rabbit.Interceptor, error) {
	reporter, err := metrics.NewOTelReporter(t.meterProvider)
	if err != nil {
		return nil, err
	}
	return []rabbit.Interceptor{
		tracing.New(tracing.WithTracerProvider(t.tracerProvider)),
		metrics.New(metrics.WithReporter(reporter)),
	}, nil
}

// Shutdown flushes pending spans and metrics.
func (t *telemetry) Shutdown(ctx context.Context) error {
	return stderrors.Join(
		t.tracerProvider.Shutdown(ctx),
		t.meterProvider.Shutdown(ctx),
	)
}
