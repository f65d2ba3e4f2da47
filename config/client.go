package config

import (
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/balancer"
	"github.com/go-thor/rabbit/balancer/random"
	"github.com/go-thor/rabbit/balancer/round_robin"
	"github.com/go-thor/rabbit/codec"
	"github.com/go-thor/rabbit/codec/form"
	"github.com/go-thor/rabbit/codec/json"
	"github.com/go-thor/rabbit/codec/protobuf"
	validatecodec "github.com/go-thor/rabbit/codec/validate"
	"github.com/go-thor/rabbit/codec/yaml"
	"github.com/go-thor/rabbit/errors"
	"github.com/go-thor/rabbit/format"
	"github.com/go-thor/rabbit/middleware/cache"
	"github.com/go-thor/rabbit/middleware/logging"
	"github.com/go-thor/rabbit/middleware/ratelimit"
	"github.com/go-thor/rabbit/middleware/requestid"
	"github.com/go-thor/rabbit/middleware/retry"
	"github.com/go-thor/rabbit/middleware/timeout"
	grpctransport "github.com/go-thor/rabbit/transport/grpc"
	httptransport "github.com/go-thor/rabbit/transport/http"
)

// NewTransport builds the configured transport.
func (c *Config) NewTransport() (rabbit.Transport, error) {
	t := c.Transport
	switch t.Kind {
	case "", "http":
		opts := []httptransport.Option{
			httptransport.WithReadTimeout(time.Duration(t.ReadTimeout)),
			httptransport.WithWriteTimeout(time.Duration(t.WriteTimeout)),
			httptransport.WithDialTimeout(time.Duration(t.DialTimeout)),
			httptransport.WithMaxMessageSize(t.MaxMessageSize),
		}
		if t.SkipStatusCheck {
			opts = append(opts, httptransport.WithoutStatusCheck())
		}
		return httptransport.New(opts...), nil
	case "grpc":
		return grpctransport.New(), nil
	}
	return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "unknown transport %q", t.Kind)
}

// NewCodec builds the configured codec. Responses are decoded by content
// type, falling back to the configured format.
func (c *Config) NewCodec() (rabbit.Codec, error) {
	var cc rabbit.Codec
	switch c.Codec {
	case "", "json":
		cc = json.New().Codec()
	case "yaml":
		cc = yaml.New().Codec()
	case "protobuf":
		cc = protobuf.New().Codec()
	case "protojson":
		cc = protobuf.New(protobuf.WithJSON()).Codec()
	case "form":
		cc = form.Codec(json.New())
	case "raw":
		cc = codec.NewRaw("").Codec()
	default:
		return rabbit.Codec{}, errors.Newf(errors.ErrorCodeInvalidArgument, "unknown codec %q", c.Codec)
	}

	if c.Codec != "protobuf" && c.Codec != "raw" {
		cc.Decoder = codec.Negotiate(cc.Decoder).
			Register("application/json", json.New()).
			Register(yaml.ContentType, yaml.New()).
			Register("application/x-yaml", yaml.New()).
			Register("text/plain", codec.NewRaw("text/plain"))
	}
	if c.Validate {
		cc = validatecodec.Codec(cc)
	}
	return cc, nil
}

// Interceptors builds the configured interceptors, outer-most first.
func (c *Config) Interceptors(logger *slog.Logger) ([]rabbit.Interceptor, error) {
	interceptors := []rabbit.Interceptor{
		requestid.New(""),
		logging.New(logger),
	}
	if c.Timeout > 0 {
		interceptors = append(interceptors, timeout.WithTimeout(time.Duration(c.Timeout)))
	}
	if c.Cache != nil {
		opts := []cache.Option{cache.WithVaryHeaders(c.Cache.VaryHeaders...)}
		if c.Cache.TTL > 0 {
			opts = append(opts, cache.WithTTL(time.Duration(c.Cache.TTL)))
		}
		if c.Cache.MaxEntries > 0 {
			opts = append(opts, cache.WithMaxEntries(c.Cache.MaxEntries))
		}
		interceptors = append(interceptors, cache.New(opts...).Interceptor())
	}
	if rl := c.RateLimit; rl != nil {
		var opts []ratelimit.Option
		if rl.PerMethod {
			opts = append(opts, ratelimit.PerMethod())
		}
		interceptors = append(interceptors, ratelimit.New(rate.Limit(rl.PerSecond), rl.Burst, opts...))
	}
	if r := c.Retry; r != nil {
		opts := []retry.Option{retry.WithMaxRetries(r.MaxRetries)}
		if r.InitialInterval > 0 && r.MaxInterval > 0 {
			opts = append(opts, retry.WithInterval(time.Duration(r.InitialInterval), time.Duration(r.MaxInterval)))
		}
		if len(r.Codes) > 0 {
			opts = append(opts, retry.WithRetryableErrors(r.Codes...))
		}
		interceptors = append(interceptors, retry.New(opts...))
	}
	if b := c.Balancer; b != nil {
		endpoints := make([]balancer.Endpoint, 0, len(b.Endpoints))
		for _, raw := range b.Endpoints {
			e, err := balancer.ParseEndpoint(raw)
			if err != nil {
				return nil, err
			}
			endpoints = append(endpoints, e)
		}
		var picker balancer.Picker = round_robin.New()
		if b.Policy == "random" {
			picker = random.New()
		}
		interceptors = append(interceptors, balancer.Interceptor(endpoints, picker))
	}
	return interceptors, nil
}

// ClientOptions returns the options for rabbit.NewClient, with every
// configured method registered.
func (c *Config) ClientOptions(logger *slog.Logger, types Types) ([]rabbit.ClientOption, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cc, err := c.NewCodec()
	if err != nil {
		return nil, err
	}
	interceptors, err := c.Interceptors(logger)
	if err != nil {
		return nil, err
	}
	descs, err := c.Descriptors(types)
	if err != nil {
		return nil, err
	}
	registry := rabbit.NewRegistry()
	if err := registry.Register(descs...); err != nil {
		return nil, err
	}

	header := make(http.Header, len(c.Headers))
	for k, v := range c.Headers {
		header.Set(k, v)
	}

	return []rabbit.ClientOption{
		rabbit.WithLogger(logger),
		rabbit.WithClientCodec(cc),
		rabbit.WithFormatter(format.NewRegistry()),
		rabbit.WithRegistry(registry),
		rabbit.WithDefaultHeaders(header),
		rabbit.WithInterceptors(interceptors...),
	}, nil
}
