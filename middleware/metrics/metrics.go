package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-thor/rabbit"
)

// Option is an interceptor option
type Option func(*options)

type options struct {
	reporter Reporter
}

// Reporter defines the interface for a metrics reporter. Method ids are
// split on their last dot into service and method.
type Reporter interface {
	// ReportLatency reports the latency of an invocation
	ReportLatency(ctx context.Context, service, method string, latency time.Duration)
	// ReportRequest reports an invocation
	ReportRequest(ctx context.Context, service, method string)
	// ReportError reports a failed invocation
	ReportError(ctx context.Context, service, method string, err error)
}

// DefaultReporter keeps counters in memory
type DefaultReporter struct {
	mu sync.RWMutex

	requestCount map[string]int64
	errorCount   map[string]int64
	latencies    map[string][]time.Duration
}

// NewDefaultReporter creates a new default reporter
func NewDefaultReporter() *DefaultReporter {
	return &DefaultReporter{
		requestCount: make(map[string]int64),
		errorCount:   make(map[string]int64),
		latencies:    make(map[string][]time.Duration),
	}
}

// ReportLatency reports the latency of an invocation
func (r *DefaultReporter) ReportLatency(_ context.Context, service, method string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := service + "." + method
	r.latencies[key] = append(r.latencies[key], latency)
}

// ReportRequest reports an invocation
func (r *DefaultReporter) ReportRequest(_ context.Context, service, method string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.requestCount[service+"."+method]++
}

// ReportError reports a failed invocation
func (r *DefaultReporter) ReportError(_ context.Context, service, method string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errorCount[service+"."+method]++
}

// GetRequestCount gets the request count for a service method
func (r *DefaultReporter) GetRequestCount(service, method string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.requestCount[service+"."+method]
}

// GetErrorCount gets the error count for a service method
func (r *DefaultReporter) GetErrorCount(service, method string) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.errorCount[service+"."+method]
}

// GetAverageLatency gets the average latency for a service method
func (r *DefaultReporter) GetAverageLatency(service, method string) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	latencies := r.latencies[service+"."+method]
	if len(latencies) == 0 {
		return 0
	}

	var sum time.Duration
	for _, latency := range latencies {
		sum += latency
	}

	return sum / time.Duration(len(latencies))
}

// WithReporter sets the reporter for the interceptor
func WithReporter(reporter Reporter) Option {
	return func(o *options) {
		o.reporter = reporter
	}
}

// New creates a new metrics interceptor
func New(opts ...Option) rabbit.Interceptor {
	options := &options{
		reporter: NewDefaultReporter(),
	}

	for _, opt := range opts {
		opt(options)
	}

	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		service, method := splitServiceMethod(inv.Method.ID)

		options.reporter.ReportRequest(ctx, service, method)

		start := time.Now()
		result, err := next(ctx, inv)
		options.reporter.ReportLatency(ctx, service, method, time.Since(start))

		if err != nil {
			options.reporter.ReportError(ctx, service, method, err)
		}

		return result, err
	}
}

// splitServiceMethod splits "users.get" into "users" and "get". An id
// without a dot is all service.
func splitServiceMethod(serviceMethod string) (string, string) {
	if i := strings.LastIndexByte(serviceMethod, '.'); i >= 0 {
		return serviceMethod[:i], serviceMethod[i+1:]
	}
	return serviceMethod, ""
}
