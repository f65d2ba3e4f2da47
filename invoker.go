package rabbit

import (
	"context"
	"net/http"
	"net/url"
	"reflect"
	"strconv"

	"github.com/go-thor/rabbit/errors"
	"github.com/go-thor/rabbit/template"
)

// InvokerConfig holds the collaborators shared by the invokers of a client.
// All of them are read concurrently and must not keep per-call state.
type InvokerConfig struct {
	// Formatter formats path, query and header arguments. When nil no
	// argument is formatted and only the literal template applies.
	Formatter KeyValueFormatterFactory
	// Parser resolves URL placeholders. Defaults to template.New().
	Parser TemplateParser
	// Codec is used unless the method carries its own.
	Codec Codec
	// Transport performs the dispatch.
	Transport Transport
	// Interceptors wrap the dispatch, outer-most first.
	Interceptors []Interceptor
	// Header is added to every request before formatted headers.
	Header http.Header
}

// MethodInvoker runs invocations of a single method.
type MethodInvoker struct {
	method      *MethodDescriptor
	formatter   KeyValueFormatterFactory
	parser      TemplateParser
	codec       Codec
	transport   Transport
	interceptor Interceptor
	header      http.Header
}

// NewMethodInvoker creates an invoker for method.
func NewMethodInvoker(method *MethodDescriptor, cfg InvokerConfig) *MethodInvoker {
	m := &MethodInvoker{
		method:      method,
		formatter:   cfg.Formatter,
		parser:      cfg.Parser,
		codec:       cfg.Codec,
		transport:   cfg.Transport,
		interceptor: ChainInterceptors(cfg.Interceptors...),
		header:      cfg.Header,
	}
	if m.parser == nil {
		m.parser = template.New()
	}
	if method.Codec != nil {
		m.codec = *method.Codec
	}
	return m
}

// Method returns the descriptor of the invoked method.
func (m *MethodInvoker) Method() *MethodDescriptor {
	return m.method
}

// Invoke builds the request from args, runs the interceptor chain and the
// transport, and decodes the response.
func (m *MethodInvoker) Invoke(ctx context.Context, args []any) (any, error) {
	if len(args) != len(m.method.Parameters) {
		return nil, errors.Newf(errors.ErrorCodeInvalidArgument,
			"method %s takes %d arguments, got %d", m.method.ID, len(m.method.Parameters), len(args))
	}
	if m.transport == nil {
		return nil, errors.Newf(errors.ErrorCodeInternal, "method %s has no transport", m.method.ID)
	}

	inv := NewInvocation(m.method, args, m.codec.Decoder)
	ctx = WithInvocation(ctx, inv)

	if err := m.initializeRequest(ctx, inv); err != nil {
		return nil, err
	}

	if m.interceptor == nil {
		return m.dispatch(ctx, inv)
	}
	return m.interceptor(ctx, inv, m.dispatch)
}

// dispatch is the terminal link of the chain.
func (m *MethodInvoker) dispatch(ctx context.Context, inv *Invocation) (any, error) {
	if err := errors.FromContext(ctx); err != nil {
		return nil, err
	}
	if err := m.transport.Dispatch(ctx, inv); err != nil {
		return nil, err
	}
	return inv.Decode(ctx)
}

func (m *MethodInvoker) initializeRequest(ctx context.Context, inv *Invocation) error {
	req := inv.Request()
	for k, vs := range m.header {
		req.AddHeader(k, vs...)
	}

	formatted, err := m.format(ctx, inv.Arguments)
	if err != nil {
		return err
	}

	rawURL := m.method.URL.Template
	if m.method.URL.NeedParse {
		pathValues := map[string]string{}
		if formatted != nil {
			pathValues = formatted.PathValues()
		}
		if rawURL, err = m.parser.Parse(rawURL, pathValues); err != nil {
			if errors.IsTemplateFailure(err) {
				return err
			}
			return errors.Wrap(errors.ErrorCodeTemplate, err, "resolve url of "+m.method.ID)
		}
	}

	if err := setURL(req, rawURL); err != nil {
		return err
	}

	if err := m.encodeBody(ctx, inv); err != nil {
		return err
	}

	if formatted != nil {
		formatted.Query.Range(func(key string, values []string) {
			req.AddQuery(key, values...)
		})
		formatted.Header.Range(func(key string, values []string) {
			req.AddHeader(key, values...)
		})
	}
	return nil
}

// format runs the formatter over every path, query and header argument.
// Later arguments replace earlier ones that format to the same key.
func (m *MethodInvoker) format(ctx context.Context, args []any) (*FormattedParameters, error) {
	if m.formatter == nil {
		return nil, nil
	}
	result := NewFormattedParameters()
	for i := range m.method.Parameters {
		param := &m.method.Parameters[i]
		target := result.For(param.Target)
		if target == nil {
			continue
		}
		if err := errors.FromContext(ctx); err != nil {
			return nil, err
		}
		values, err := m.formatter.Format(ctx, args[i], param)
		if err != nil {
			if errors.HasCode(err, errors.ErrorCodeInvalidArgument) {
				return nil, err
			}
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "format parameter "+param.Name)
		}
		for k, vs := range values {
			target.Set(k, vs)
		}
	}
	return result, nil
}

// setURL decomposes rawURL into the request. The literal query string is
// added before any formatted query values.
func setURL(req *Request, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errors.Wrap(errors.ErrorCodeInvalidArgument, err, "invalid url")
	}
	if u.Scheme == "" || u.Host == "" {
		return errors.Newf(errors.ErrorCodeInvalidArgument, "url %q is not absolute", rawURL)
	}

	req.Scheme = u.Scheme
	req.Host = u.Hostname()
	req.Port = defaultPort(u.Scheme)
	if p := u.Port(); p != "" {
		if req.Port, err = strconv.Atoi(p); err != nil {
			return errors.Wrap(errors.ErrorCodeInvalidArgument, err, "invalid port")
		}
	}
	req.Path = u.EscapedPath()
	if req.Path == "" {
		req.Path = "/"
	}

	if u.RawQuery != "" {
		// Malformed pairs are skipped; the well-formed ones are still added.
		query, _ := url.ParseQuery(u.RawQuery)
		for k, vs := range query {
			req.AddQuery(k, vs...)
		}
	}
	return nil
}

func (m *MethodInvoker) encodeBody(ctx context.Context, inv *Invocation) error {
	encoder := m.codec.Encoder
	if encoder == nil {
		return nil
	}
	i := m.method.BodyIndex()
	if i < 0 || isNil(inv.Arguments[i]) {
		return nil
	}
	if err := errors.FromContext(ctx); err != nil {
		return err
	}
	if err := encoder.Encode(ctx, inv.Arguments[i], m.method.Parameters[i].Type, inv.Request()); err != nil {
		return errors.EncodeFailure(err)
	}
	return nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
