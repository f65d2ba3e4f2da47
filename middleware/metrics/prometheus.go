package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/go-thor/rabbit/errors"
)

const metricsNamespace = "rabbit_client"

// PrometheusReporter is a Reporter and a prometheus.Collector. Register it
// with a prometheus.Registerer to export the invocation metrics.
type PrometheusReporter struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewPrometheusReporter returns a new PrometheusReporter.
func NewPrometheusReporter() *PrometheusReporter {
	return &PrometheusReporter{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "invocations_total",
				Help:      "The number of method invocations.",
			}, []string{"service", "method"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "invocation_failures_total",
				Help:      "The number of failed method invocations by error code.",
			}, []string{"service", "method", "code"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "invocation_duration_seconds",
				Help:      "The time taken by a method invocation.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"service", "method"},
		),
	}
}

// ReportRequest is part of the Reporter interface.
func (r *PrometheusReporter) ReportRequest(_ context.Context, service, method string) {
	r.requests.WithLabelValues(service, method).Inc()
}

// ReportLatency is part of the Reporter interface.
func (r *PrometheusReporter) ReportLatency(_ context.Context, service, method string, latency time.Duration) {
	r.latency.WithLabelValues(service, method).Observe(latency.Seconds())
}

// ReportError is part of the Reporter interface.
func (r *PrometheusReporter) ReportError(_ context.Context, service, method string, err error) {
	r.failures.WithLabelValues(service, method, errors.Code(err)).Inc()
}

// Describe is part of the prometheus.Collector interface.
func (r *PrometheusReporter) Describe(ch chan<- *prometheus.Desc) {
	r.requests.Describe(ch)
	r.failures.Describe(ch)
	r.latency.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (r *PrometheusReporter) Collect(ch chan<- prometheus.Metric) {
	r.requests.Collect(ch)
	r.failures.Collect(ch)
	r.latency.Collect(ch)
}
