package rabbit_test

import (
	"context"
	stderrors "errors"
	"reflect"
	"strings"
	"testing"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
	"github.com/go-thor/rabbit/format"
)

// recorder is a transport that keeps a copy of the last request and
// answers with a fixed response.
type recorder struct {
	calls   int
	request *rabbit.Request
	status  int
	body    string
	err     error
}

func (r *recorder) Dispatch(_ context.Context, inv *rabbit.Invocation) error {
	r.calls++
	r.request = inv.Request().Clone()
	if r.err != nil {
		return r.err
	}
	resp := inv.Response()
	resp.StatusCode = r.status
	resp.Body = []byte(r.body)
	return nil
}

func newInvoker(t *testing.T, desc *rabbit.MethodDescriptor, cfg rabbit.InvokerConfig) *rabbit.MethodInvoker {
	t.Helper()
	if cfg.Formatter == nil {
		cfg.Formatter = format.NewRegistry()
	}
	return rabbit.NewMethodInvoker(desc, cfg)
}

func TestInvoke_QueryMerge(t *testing.T) {
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/api/{id}?foo=1",
		rabbit.PathParam[int]("id"),
		rabbit.QueryParam[int]("foo"),
	)
	tr := &recorder{status: 200}
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: tr})

	if _, err := inv.Invoke(context.Background(), []any{5, 2}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if got, want := tr.request.Path, "/api/5"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
	if got, want := tr.request.Query["foo"], []string{"1", "2"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Query[foo] = %v, want %v", got, want)
	}
	if got, want := tr.request.URL().String(), "http://host/api/5?foo=1&foo=2"; got != want {
		t.Errorf("URL = %q, want %q", got, want)
	}
}

func TestInvoke_NoBody(t *testing.T) {
	encoded := 0
	encoder := rabbit.EncoderFunc(func(_ context.Context, _ any, _ reflect.Type, req *rabbit.Request) error {
		encoded++
		req.SetBody([]byte("{}"), "application/json")
		return nil
	})

	tests := []struct {
		name string
		desc *rabbit.MethodDescriptor
		args []any
	}{
		{
			name: "no body parameter",
			desc: rabbit.MustMethod("Items.List", "GET", "http://host/items", rabbit.QueryParam[string]("q")),
			args: []any{"x"},
		},
		{
			name: "absent body argument",
			desc: rabbit.MustMethod("Items.Create", "POST", "http://host/items", rabbit.BodyParam[*struct{ Name string }]("item")),
			args: []any{nil},
		},
		{
			name: "typed nil body argument",
			desc: rabbit.MustMethod("Items.Update", "PUT", "http://host/items", rabbit.BodyParam[*struct{ Name string }]("item")),
			args: []any{(*struct{ Name string })(nil)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded = 0
			tr := &recorder{status: 204}
			inv := newInvoker(t, tt.desc, rabbit.InvokerConfig{
				Transport: tr,
				Codec:     rabbit.Codec{Encoder: encoder},
			})
			if _, err := inv.Invoke(context.Background(), tt.args); err != nil {
				t.Fatalf("Invoke: %v", err)
			}
			if encoded != 0 {
				t.Errorf("encoder called %d times, want 0", encoded)
			}
			if tr.request.Body != nil {
				t.Errorf("Body = %q, want none", tr.request.Body)
			}
			if ct := tr.request.Header.Get("Content-Type"); ct != "" {
				t.Errorf("Content-Type = %q, want none", ct)
			}
		})
	}
}

func TestInvoke_EncodeFailure(t *testing.T) {
	desc := rabbit.MustMethod("Items.Create", "POST", "http://host/items", rabbit.BodyParam[string]("item"))
	cause := stderrors.New("boom")

	t.Run("generic failure is wrapped once", func(t *testing.T) {
		tr := &recorder{status: 200}
		inv := newInvoker(t, desc, rabbit.InvokerConfig{
			Transport: tr,
			Codec: rabbit.Codec{Encoder: rabbit.EncoderFunc(func(context.Context, any, reflect.Type, *rabbit.Request) error {
				return cause
			})},
		})
		_, err := inv.Invoke(context.Background(), []any{"x"})

		var e *errors.Error
		if !errors.As(err, &e) || e.Code != errors.ErrorCodeEncode {
			t.Fatalf("Invoke error = %v, want encode failure", err)
		}
		if e.Cause != cause {
			t.Errorf("Cause = %v, want %v", e.Cause, cause)
		}
		if strings.Count(err.Error(), errors.ErrorCodeEncode) != 1 {
			t.Errorf("error %q wrapped more than once", err)
		}
		if tr.calls != 0 {
			t.Errorf("transport called %d times, want 0", tr.calls)
		}
	})

	t.Run("encode failure is not rewrapped", func(t *testing.T) {
		failure := errors.New(errors.ErrorCodeEncode, "unsupported value")
		inv := newInvoker(t, desc, rabbit.InvokerConfig{
			Transport: &recorder{status: 200},
			Codec: rabbit.Codec{Encoder: rabbit.EncoderFunc(func(context.Context, any, reflect.Type, *rabbit.Request) error {
				return failure
			})},
		})
		_, err := inv.Invoke(context.Background(), []any{"x"})
		if err != failure {
			t.Errorf("Invoke error = %v, want %v", err, failure)
		}
	})
}

func TestInvoke_DecodeFailure(t *testing.T) {
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/items", rabbit.Returns[int]())
	decodeWith := func(err error) *rabbit.MethodInvoker {
		return newInvoker(t, desc, rabbit.InvokerConfig{
			Transport: &recorder{status: 200, body: "x"},
			Codec: rabbit.Codec{Decoder: rabbit.DecoderFunc(func(context.Context, *rabbit.Response, reflect.Type) (any, error) {
				return nil, err
			})},
		})
	}

	t.Run("generic failure is wrapped once", func(t *testing.T) {
		cause := stderrors.New("bad payload")
		_, err := decodeWith(cause).Invoke(context.Background(), nil)

		var e *errors.Error
		if !errors.As(err, &e) || e.Code != errors.ErrorCodeDecode {
			t.Fatalf("Invoke error = %v, want decode failure", err)
		}
		if e.Cause != cause {
			t.Errorf("Cause = %v, want %v", e.Cause, cause)
		}
	})

	t.Run("decode failure is not rewrapped", func(t *testing.T) {
		failure := errors.New(errors.ErrorCodeDecode, "truncated body")
		_, err := decodeWith(failure).Invoke(context.Background(), nil)
		if err != failure {
			t.Errorf("Invoke error = %v, want %v", err, failure)
		}
	})
}

func TestInvoke_NoFormatter(t *testing.T) {
	t.Run("literal template only", func(t *testing.T) {
		desc := rabbit.MustMethod("Items.List", "GET", "http://host/items?foo=1",
			rabbit.QueryParam[int]("foo"),
			rabbit.HeaderParam[string]("X-Trace"),
		)
		tr := &recorder{status: 200}
		inv := rabbit.NewMethodInvoker(desc, rabbit.InvokerConfig{Transport: tr})
		if _, err := inv.Invoke(context.Background(), []any{2, "v"}); err != nil {
			t.Fatalf("Invoke: %v", err)
		}
		if got, want := tr.request.Query["foo"], []string{"1"}; !reflect.DeepEqual(got, want) {
			t.Errorf("Query[foo] = %v, want %v", got, want)
		}
		if got := tr.request.Header.Get("X-Trace"); got != "" {
			t.Errorf("Header[X-Trace] = %q, want none", got)
		}
	})

	t.Run("placeholder stays unresolved", func(t *testing.T) {
		desc := rabbit.MustMethod("Items.Get", "GET", "http://host/items/{id}", rabbit.PathParam[int]("id"))
		tr := &recorder{status: 200}
		inv := rabbit.NewMethodInvoker(desc, rabbit.InvokerConfig{Transport: tr})
		_, err := inv.Invoke(context.Background(), []any{7})
		if !errors.IsTemplateFailure(err) {
			t.Errorf("Invoke error = %v, want template failure", err)
		}
		if tr.calls != 0 {
			t.Errorf("transport called %d times, want 0", tr.calls)
		}
	})
}

func TestInvoke_NoDecoder(t *testing.T) {
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/items", rabbit.Returns[map[string]any]())
	inv := newInvoker(t, desc, rabbit.InvokerConfig{
		Transport: &recorder{status: 200, body: `{"id":1}`},
	})
	res, err := inv.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res != nil {
		t.Errorf("Invoke = %v, want nil", res)
	}
}

func TestInvoke_PathOverwrite(t *testing.T) {
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/api/{id}",
		rabbit.PathParam[int]("id"),
		rabbit.PathParam[int]("id"),
	)
	tr := &recorder{status: 200}
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: tr})
	if _, err := inv.Invoke(context.Background(), []any{1, 2}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got, want := tr.request.Path, "/api/2"; got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
}

func TestInvoke_HeaderCaseInsensitive(t *testing.T) {
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/items",
		rabbit.HeaderParam[string]("Foo"),
		rabbit.HeaderParam[string]("foo"),
	)
	tr := &recorder{status: 200}
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: tr})
	if _, err := inv.Invoke(context.Background(), []any{"a", "b"}); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got, want := tr.request.Header.Values("Foo"), []string{"b"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Header[Foo] = %v, want %v", got, want)
	}
}

func TestInvoke_InterceptorOrder(t *testing.T) {
	var trace []string
	record := func(name string) rabbit.Interceptor {
		return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
			trace = append(trace, name+"-pre")
			res, err := next(ctx, inv)
			trace = append(trace, name+"-post")
			return res, err
		}
	}
	transport := rabbit.TransportFunc(func(context.Context, *rabbit.Invocation) error {
		trace = append(trace, "transport")
		return nil
	})

	desc := rabbit.MustMethod("Items.List", "GET", "http://host/items")
	inv := newInvoker(t, desc, rabbit.InvokerConfig{
		Transport:    transport,
		Interceptors: []rabbit.Interceptor{record("A"), record("B")},
	})
	if _, err := inv.Invoke(context.Background(), nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	want := []string{"A-pre", "B-pre", "transport", "B-post", "A-post"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestInvoke_ShortCircuit(t *testing.T) {
	tr := &recorder{status: 200}
	stub := func(_ context.Context, inv *rabbit.Invocation, _ rabbit.HandlerFunc) (any, error) {
		inv.Response().StatusCode = 200
		return "stubbed", nil
	}
	desc := rabbit.MustMethod("Items.List", "GET", "http://host/items")
	inv := newInvoker(t, desc, rabbit.InvokerConfig{
		Transport:    tr,
		Interceptors: []rabbit.Interceptor{stub},
	})
	res, err := inv.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res != "stubbed" {
		t.Errorf("Invoke = %v, want stubbed", res)
	}
	if tr.calls != 0 {
		t.Errorf("transport called %d times, want 0", tr.calls)
	}
}

func TestInvoke_InvocationInContext(t *testing.T) {
	desc := rabbit.MustMethod("Items.List", "GET", "http://host/items")
	var seen *rabbit.Invocation
	transport := rabbit.TransportFunc(func(ctx context.Context, inv *rabbit.Invocation) error {
		got, ok := rabbit.InvocationFromContext(ctx)
		if !ok || got != inv {
			t.Errorf("InvocationFromContext = %v, %v, want %v", got, ok, inv)
		}
		seen = inv
		return nil
	})
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: transport})
	if _, err := inv.Invoke(context.Background(), nil); err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if seen == nil || seen.Method != desc {
		t.Errorf("Invocation.Method = %v, want %v", seen, desc)
	}
}

func TestInvoke_Arity(t *testing.T) {
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/items/{id}", rabbit.PathParam[int]("id"))
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: &recorder{status: 200}})
	_, err := inv.Invoke(context.Background(), []any{1, 2})
	if !errors.HasCode(err, errors.ErrorCodeInvalidArgument) {
		t.Errorf("Invoke error = %v, want invalid_argument", err)
	}
}

func TestInvoke_Cancelled(t *testing.T) {
	tr := &recorder{status: 200}
	desc := rabbit.MustMethod("Items.List", "GET", "http://host/items")
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: tr})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := inv.Invoke(ctx, nil)
	if !errors.HasCode(err, errors.ErrorCodeCancelled) {
		t.Errorf("Invoke error = %v, want cancelled", err)
	}
	if tr.calls != 0 {
		t.Errorf("transport called %d times, want 0", tr.calls)
	}
}

func TestInvoke_TemplateFailure(t *testing.T) {
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/items/{id}", rabbit.PathParam[*int]("id"))
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: &recorder{status: 200}})
	_, err := inv.Invoke(context.Background(), []any{nil})
	if !errors.IsTemplateFailure(err) {
		t.Errorf("Invoke error = %v, want template failure", err)
	}
}

func TestInvoke_MethodCodec(t *testing.T) {
	decoder := rabbit.DecoderFunc(func(_ context.Context, resp *rabbit.Response, _ reflect.Type) (any, error) {
		return string(resp.Body), nil
	})
	desc := rabbit.MustMethod("Items.Get", "GET", "http://host/items",
		rabbit.Returns[string](),
		rabbit.WithCodec(rabbit.Codec{Decoder: decoder}),
	)
	inv := newInvoker(t, desc, rabbit.InvokerConfig{Transport: &recorder{status: 200, body: "raw"}})
	res, err := inv.Invoke(context.Background(), nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res != "raw" {
		t.Errorf("Invoke = %v, want raw", res)
	}
}
