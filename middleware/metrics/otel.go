package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/go-thor/rabbit/errors"
)

const instrumentationName = "github.com/go-thor/rabbit/middleware/metrics"

// OTelReporter records invocation metrics with OpenTelemetry instruments.
type OTelReporter struct {
	requests metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
}

// NewOTelReporter creates the instruments on the meter of provider, the
// global provider when nil.
func NewOTelReporter(provider metric.MeterProvider) (*OTelReporter, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}
	meter := provider.Meter(instrumentationName)

	requests, err := meter.Int64Counter("rabbit.client.invocations",
		metric.WithDescription("The number of method invocations."))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("rabbit.client.invocation_failures",
		metric.WithDescription("The number of failed method invocations."))
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram("rabbit.client.duration",
		metric.WithDescription("The time taken by a method invocation."),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &OTelReporter{requests: requests, failures: failures, latency: latency}, nil
}

func attrs(service, method string) attribute.Set {
	return attribute.NewSet(
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
	)
}

// ReportRequest is part of the Reporter interface.
func (r *OTelReporter) ReportRequest(ctx context.Context, service, method string) {
	r.requests.Add(ctx, 1, metric.WithAttributeSet(attrs(service, method)))
}

// ReportLatency is part of the Reporter interface.
func (r *OTelReporter) ReportLatency(ctx context.Context, service, method string, latency time.Duration) {
	r.latency.Record(ctx, latency.Seconds(), metric.WithAttributeSet(attrs(service, method)))
}

// ReportError is part of the Reporter interface.
func (r *OTelReporter) ReportError(ctx context.Context, service, method string, err error) {
	r.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("rpc.service", service),
		attribute.String("rpc.method", method),
		attribute.String("error.code", errors.Code(err)),
	))
}
