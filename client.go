package rabbit

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-thor/rabbit/errors"
)

// Call represents an active asynchronous invocation
type Call struct {
	// Method is the ID of the invoked method
	Method string
	// Args holds the arguments of the call
	Args []any
	// Reply holds the decoded result
	Reply any
	// Error holds the error from the call
	Error error
	// Done receives the call when it is complete
	Done chan *Call
	// Seq is the sequence number of the call
	Seq uint64
}

// done marks the call as done
func (call *Call) done(logger *slog.Logger) {
	select {
	case call.Done <- call:
		// ok
	default:
		// We don't want to block here. It's the caller's responsibility to make
		// sure the channel has enough buffer space. See comment in Go().
		logger.Warn("discarding call reply due to insufficient Done chan capacity",
			slog.String("method", call.Method),
			slog.Uint64("seq", call.Seq))
	}
}

// Client invokes registered methods over a transport.
type Client struct {
	registry  *Registry
	transport Transport
	logger    *slog.Logger
	seq       atomic.Uint64

	mu           sync.RWMutex
	codec        Codec
	formatter    KeyValueFormatterFactory
	parser       TemplateParser
	interceptors []Interceptor
	header       http.Header
	invokers     map[string]*MethodInvoker
	closed       bool
}

// ClientOption configures a Client
type ClientOption func(*Client)

// WithClientCodec sets the default codec
func WithClientCodec(codec Codec) ClientOption {
	return func(c *Client) {
		c.codec = codec
	}
}

// WithFormatter sets the key-value formatter factory
func WithFormatter(f KeyValueFormatterFactory) ClientOption {
	return func(c *Client) {
		c.formatter = f
	}
}

// WithTemplateParser sets the URL template parser
func WithTemplateParser(p TemplateParser) ClientOption {
	return func(c *Client) {
		c.parser = p
	}
}

// WithInterceptors appends interceptors
func WithInterceptors(interceptors ...Interceptor) ClientOption {
	return func(c *Client) {
		c.interceptors = append(c.interceptors, interceptors...)
	}
}

// WithLogger sets the logger, slog.Default() otherwise
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDefaultHeaders adds headers to every request
func WithDefaultHeaders(h http.Header) ClientOption {
	return func(c *Client) {
		if c.header == nil {
			c.header = make(http.Header)
		}
		for k, vs := range h {
			for _, v := range vs {
				c.header.Add(k, v)
			}
		}
	}
}

// WithRegistry makes the client look methods up in r
func WithRegistry(r *Registry) ClientOption {
	return func(c *Client) {
		c.registry = r
	}
}

// NewClient creates a new client
func NewClient(transport Transport, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		invokers:  make(map[string]*MethodInvoker),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewRegistry()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Register registers method descriptors
func (c *Client) Register(descs ...*MethodDescriptor) error {
	if err := c.registry.Register(descs...); err != nil {
		return err
	}
	for _, d := range descs {
		c.logger.Debug("method registered",
			slog.String("method", d.ID),
			slog.String("http_method", d.HTTPMethod),
			slog.String("url", d.URL.Template))
	}
	return nil
}

// Methods returns the IDs of the registered methods
func (c *Client) Methods() []string {
	return c.registry.Methods()
}

// Use adds interceptors to the client
func (c *Client) Use(interceptors ...Interceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.interceptors = append(c.interceptors, interceptors...)
	c.invokers = make(map[string]*MethodInvoker)
}

// Invoke calls the method registered under id with args and returns the
// decoded result
func (c *Client) Invoke(ctx context.Context, id string, args ...any) (any, error) {
	return c.invoke(ctx, id, c.seq.Add(1), args)
}

func (c *Client) invoke(ctx context.Context, id string, seq uint64, args []any) (any, error) {
	invoker, err := c.invoker(id)
	if err != nil {
		return nil, err
	}

	res, err := invoker.Invoke(ctx, args)
	if err != nil {
		c.logger.DebugContext(ctx, "invocation failed",
			slog.String("method", id),
			slog.Uint64("seq", seq),
			slog.String("code", errors.Code(err)),
			slog.Any("error", err))
		return nil, err
	}
	return res, nil
}

// Go invokes the method asynchronously. The call is sent on done when it
// completes; done must be buffered, a nil done allocates one.
func (c *Client) Go(ctx context.Context, id string, args []any, done chan *Call) *Call {
	if done == nil {
		done = make(chan *Call, 1)
	}
	call := &Call{
		Method: id,
		Args:   args,
		Done:   done,
		Seq:    c.seq.Add(1),
	}
	go func() {
		call.Reply, call.Error = c.invoke(ctx, id, call.Seq, args)
		call.done(c.logger)
	}()
	return call
}

// Close closes the client and its transport when it implements io.Closer
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errors.ErrClientClosed
	}
	c.closed = true
	c.invokers = nil

	if closer, ok := c.transport.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// invoker returns the cached invoker of id, building it on first use
func (c *Client) invoker(id string) (*MethodInvoker, error) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return nil, errors.ErrClientClosed
	}
	invoker, ok := c.invokers[id]
	c.mu.RUnlock()
	if ok {
		return invoker, nil
	}

	desc, err := c.registry.Lookup(id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errors.ErrClientClosed
	}
	if invoker, ok := c.invokers[id]; ok {
		return invoker, nil
	}
	invoker = NewMethodInvoker(desc, InvokerConfig{
		Formatter:    c.formatter,
		Parser:       c.parser,
		Codec:        c.codec,
		Transport:    c.transport,
		Interceptors: append([]Interceptor(nil), c.interceptors...),
		Header:       c.header,
	})
	c.invokers[id] = invoker
	return invoker, nil
}

// InvokeAs invokes the method and asserts the result to T. A nil result
// yields the zero value of T.
func InvokeAs[T any](ctx context.Context, c *Client, id string, args ...any) (T, error) {
	var zero T
	res, err := c.Invoke(ctx, id, args...)
	if err != nil || res == nil {
		return zero, err
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.Newf(errors.ErrorCodeInternal, "method %s returned %T, not %T", id, res, zero)
	}
	return v, nil
}
