// Package grpc dispatches invocations as unary gRPC calls. The request
// path is the full method name, the body is sent as the already encoded
// message and headers travel as metadata.
package grpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// Headers that are never forwarded as metadata.
var skipHeaders = map[string]bool{
	"content-type":      true,
	"content-length":    true,
	"user-agent":        true,
	"te":                true,
	"connection":        true,
	"transfer-encoding": true,
	"host":              true,
}

// rawCodec passes pre-encoded bytes through. It keeps the proto name so
// servers select their regular codec.
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	p, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("raw codec cannot marshal %T", v)
	}
	return *p, nil
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec cannot unmarshal into %T", v)
	}
	*p = append((*p)[:0], data...)
	return nil
}

func (rawCodec) Name() string {
	return "proto"
}

// Transport keeps one client connection per target
type Transport struct {
	mu       sync.Mutex
	conns    map[string]*grpc.ClientConn
	dialOpts []grpc.DialOption
	closed   bool
}

// Option is a transport option
type Option func(*Transport)

// WithDialOptions appends options used when dialing a target
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(t *Transport) {
		t.dialOpts = append(t.dialOpts, opts...)
	}
}

// New creates a new gRPC transport
func New(opts ...Option) *Transport {
	t := &Transport{conns: make(map[string]*grpc.ClientConn)}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dispatch performs the unary call described by the request of inv
func (t *Transport) Dispatch(ctx context.Context, inv *rabbit.Invocation) error {
	r := inv.Request()
	conn, err := t.conn(ctx, r)
	if err != nil {
		return err
	}

	md := metadata.MD{}
	for k, vs := range r.Header {
		key := strings.ToLower(k)
		if skipHeaders[key] || strings.HasPrefix(key, "grpc-") {
			continue
		}
		md.Append(key, vs...)
	}
	ctx = metadata.NewOutgoingContext(ctx, md)

	in := r.Body
	var out []byte
	var header, trailer metadata.MD
	err = conn.Invoke(ctx, r.Path, &in, &out,
		grpc.ForceCodec(rawCodec{}), grpc.Header(&header), grpc.Trailer(&trailer))

	resp := inv.Response()
	resp.Header = make(http.Header)
	for _, m := range []metadata.MD{header, trailer} {
		for k, vs := range m {
			for _, v := range vs {
				resp.Header.Add(k, v)
			}
		}
	}
	if err != nil {
		if ctxErr := errors.FromContext(ctx); ctxErr != nil {
			return ctxErr
		}
		st := status.Convert(err)
		resp.StatusCode = statusCode(st.Code())
		return errors.Wrap(codeFor(st.Code()), err, r.Path)
	}
	resp.StatusCode = http.StatusOK
	resp.Body = out
	return nil
}

func (t *Transport) conn(ctx context.Context, r *rabbit.Request) (*grpc.ClientConn, error) {
	if r.Port == 0 {
		return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "%s://%s has no port", r.Scheme, r.Host)
	}
	target := net.JoinHostPort(r.Host, strconv.Itoa(r.Port))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, errors.ErrClientClosed
	}
	if conn, ok := t.conns[target]; ok {
		return conn, nil
	}

	creds := insecure.NewCredentials()
	if r.Scheme == "https" || r.Scheme == "grpcs" {
		creds = credentials.NewTLS(&tls.Config{ServerName: r.Host})
	}
	opts := append([]grpc.DialOption{grpc.WithTransportCredentials(creds)}, t.dialOpts...)
	conn, err := grpc.DialContext(ctx, target, opts...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrorCodeUnavailable, err, "failed to dial "+target)
	}
	t.conns[target] = conn
	return conn, nil
}

// Close closes every connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	var firstErr error
	for target, conn := range t.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(t.conns, target)
	}
	return firstErr
}

// Name returns the name of the transport
func (t *Transport) Name() string {
	return "grpc"
}

func codeFor(c codes.Code) string {
	switch c {
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return errors.ErrorCodeInvalidArgument
	case codes.NotFound, codes.Unimplemented:
		return errors.ErrorCodeNotFound
	case codes.AlreadyExists:
		return errors.ErrorCodeAlreadyExists
	case codes.PermissionDenied:
		return errors.ErrorCodePermissionDenied
	case codes.Unauthenticated:
		return errors.ErrorCodeUnauthenticated
	case codes.Canceled:
		return errors.ErrorCodeCancelled
	case codes.DeadlineExceeded:
		return errors.ErrorCodeDeadlineExceeded
	case codes.Unavailable, codes.Aborted:
		return errors.ErrorCodeUnavailable
	case codes.ResourceExhausted:
		return errors.ErrorCodeResourceExhausted
	case codes.Internal, codes.DataLoss:
		return errors.ErrorCodeInternal
	}
	return errors.ErrorCodeUnknown
}

// statusCode maps a gRPC code to the closest HTTP status, the way
// grpc-gateway reports it.
func statusCode(c codes.Code) int {
	switch c {
	case codes.OK:
		return http.StatusOK
	case codes.Canceled:
		return 499
	case codes.InvalidArgument, codes.OutOfRange, codes.FailedPrecondition:
		return http.StatusBadRequest
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unimplemented:
		return http.StatusNotImplemented
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

var _ rabbit.Transport = (*Transport)(nil)
