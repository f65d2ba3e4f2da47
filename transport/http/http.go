package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

const (
	// DefaultReadTimeout is the default read timeout
	DefaultReadTimeout = 30 * time.Second
	// DefaultWriteTimeout is the default write timeout
	DefaultWriteTimeout = 30 * time.Second
	// DefaultDialTimeout is the default dial timeout
	DefaultDialTimeout = 10 * time.Second
	// DefaultMaxMessageSize is the default maximum message size (10MB)
	DefaultMaxMessageSize = 10 * 1024 * 1024
)

// StatusError is the cause of the error returned for a non-2xx response
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return "unexpected status code: " + e.Status
}

// Transport dispatches invocations over HTTP
type Transport struct {
	readTimeout  time.Duration
	writeTimeout time.Duration
	dialTimeout  time.Duration
	maxMsgSize   int
	checkStatus  bool

	client *http.Client
}

// Option is a transport option
type Option func(*Transport)

// WithReadTimeout sets the read timeout
func WithReadTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.readTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout
func WithWriteTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.writeTimeout = timeout
	}
}

// WithDialTimeout sets the dial timeout
func WithDialTimeout(timeout time.Duration) Option {
	return func(t *Transport) {
		t.dialTimeout = timeout
	}
}

// WithMaxMessageSize sets the maximum request and response body size
func WithMaxMessageSize(size int) Option {
	return func(t *Transport) {
		t.maxMsgSize = size
	}
}

// WithClient uses client instead of the one built from the timeouts
func WithClient(client *http.Client) Option {
	return func(t *Transport) {
		t.client = client
	}
}

// WithoutStatusCheck hands non-2xx responses to the decoder instead of
// failing the call
func WithoutStatusCheck() Option {
	return func(t *Transport) {
		t.checkStatus = false
	}
}

// New creates a new HTTP transport
func New(opts ...Option) *Transport {
	t := &Transport{
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		dialTimeout:  DefaultDialTimeout,
		maxMsgSize:   DefaultMaxMessageSize,
		checkStatus:  true,
	}

	for _, opt := range opts {
		opt(t)
	}

	if t.client == nil {
		t.client = &http.Client{
			Timeout: t.readTimeout + t.writeTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
				DialContext: (&net.Dialer{
					Timeout:   t.dialTimeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				ResponseHeaderTimeout: t.readTimeout,
			},
		}
	}

	return t
}

// Dispatch sends the request of inv and fills its response
func (t *Transport) Dispatch(ctx context.Context, inv *rabbit.Invocation) error {
	r := inv.Request()
	if len(r.Body) > t.maxMsgSize {
		return errors.New(errors.ErrorCodeInvalidArgument, "message too large")
	}

	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL().String(), body)
	if err != nil {
		return errors.Wrap(errors.ErrorCodeInvalidArgument, err, "failed to create request")
	}
	req.Header = r.Header.Clone()
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrap(errors.ErrorCodeUnavailable, err, "failed to do request")
	}
	defer resp.Body.Close()

	// Read one byte past the limit to tell a full body from an oversized one
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxMsgSize)+1))
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrap(errors.ErrorCodeUnavailable, err, "failed to read response")
	}
	if len(respBody) > t.maxMsgSize {
		return errors.New(errors.ErrorCodeResourceExhausted, "response too large")
	}

	out := inv.Response()
	out.StatusCode = resp.StatusCode
	out.Header = resp.Header.Clone()
	out.Body = respBody

	if t.checkStatus && !out.IsSuccess() {
		return errors.Wrap(errors.CodeForHTTPStatus(resp.StatusCode),
			&StatusError{StatusCode: resp.StatusCode, Status: resp.Status},
			fmt.Sprintf("%s %s", r.Method, req.URL.Redacted()))
	}
	return nil
}

// Close releases idle connections
func (t *Transport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// Name returns the name of the transport
func (t *Transport) Name() string {
	return "http"
}

var _ rabbit.Transport = (*Transport)(nil)
