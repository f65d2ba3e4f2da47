package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/araddon/dateparse"
	jsoniter "github.com/json-iterator/go"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/config"
	"github.com/go-thor/rabbit/errors"
)

var timeType = reflect.TypeFor[time.Time]()

// InvokeCmd invokes one method.
type InvokeCmd struct {
	Config       string            `short:"c" required:"" type:"existingfile" help:"Client configuration file (TOML, YAML or JSON)."`
	Method       string            `arg:"" help:"ID of the method to invoke."`
	Args         []string          `arg:"" optional:"" help:"Arguments as name=value. Repeat a name to pass a list."`
	Header       map[string]string `short:"H" help:"Extra request headers."`
	OTLPEndpoint string            `name:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" help:"Export traces and metrics to this OTLP gRPC endpoint."`
	Insecure     bool              `help:"Connect to the OTLP endpoint without TLS."`
	Verbose      bool              `short:"v" help:"Log every invocation."`
}

func (c *InvokeCmd) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := newLogger(c.Verbose)

	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	for k, v := range c.Header {
		if cfg.Headers == nil {
			cfg.Headers = make(map[string]string)
		}
		cfg.Headers[k] = v
	}

	desc, err := lookupMethod(cfg, c.Method)
	if err != nil {
		return err
	}
	args, err := parseArgs(desc, c.Args)
	if err != nil {
		return err
	}

	transport, err := cfg.NewTransport()
	if err != nil {
		return err
	}
	opts, err := cfg.ClientOptions(logger, nil)
	if err != nil {
		return err
	}
	client := rabbit.NewClient(transport, opts...)
	defer client.Close()

	if c.OTLPEndpoint != "" {
		tel, err := newTelemetry(ctx, c.OTLPEndpoint, c.Insecure)
		if err != nil {
			return fmt.Errorf("setting up telemetry: %w", err)
		}
		defer func() {
			if err := tel.Shutdown(context.Background()); err != nil {
				logger.Warn("telemetry shutdown failed", slog.Any("error", err))
			}
		}()
		interceptors, err := tel.Interceptors()
		if err != nil {
			return err
		}
		client.Use(interceptors...)
	}

	res, err := client.Invoke(ctx, c.Method, args...)
	if err != nil {
		return err
	}
	return printResult(os.Stdout, res)
}

// MethodsCmd lists the declared methods.
type MethodsCmd struct {
	Config string `short:"c" required:"" type:"existingfile" help:"Client configuration file (TOML, YAML or JSON)."`
}

func (c *MethodsCmd) Run() error {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return err
	}
	descs, err := cfg.Descriptors(nil)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "METHOD\tHTTP\tURL\tPARAMETERS")
	for _, d := range descs {
		params := make([]string, 0, len(d.Parameters))
		for _, p := range d.Parameters {
			params = append(params, fmt.Sprintf("%s:%s", p.Name, p.Target))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.HTTPMethod, d.URL.Template, strings.Join(params, " "))
	}
	return w.Flush()
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func lookupMethod(cfg *config.Config, id string) (*rabbit.MethodDescriptor, error) {
	descs, err := cfg.Descriptors(nil)
	if err != nil {
		return nil, err
	}
	for _, d := range descs {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, errors.Newf(errors.ErrorCodeNotFound, "method %s is not declared", id)
}

// parseArgs converts name=value pairs into the positional arguments of
// desc. Parameters without a value are passed as nil.
func parseArgs(desc *rabbit.MethodDescriptor, pairs []string) ([]any, error) {
	index := make(map[string]int, len(desc.Parameters))
	for i, p := range desc.Parameters {
		index[p.Name] = i
	}

	raw := make(map[int][]string)
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "argument %q is not name=value", pair)
		}
		i, ok := index[name]
		if !ok {
			return nil, errors.Newf(errors.ErrorCodeInvalidArgument, "method %s has no parameter %q", desc.ID, name)
		}
		raw[i] = append(raw[i], value)
	}

	args := make([]any, len(desc.Parameters))
	for i, values := range raw {
		p := desc.Parameters[i]
		v, err := convert(p.Type, values)
		if err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "argument "+p.Name)
		}
		args[i] = v.Interface()
	}
	return args, nil
}

func convert(typ reflect.Type, values []string) (reflect.Value, error) {
	if typ.Kind() == reflect.Slice && isScalar(typ.Elem()) {
		out := reflect.MakeSlice(typ, 0, len(values))
		for _, s := range values {
			v, err := convertOne(typ.Elem(), s)
			if err != nil {
				return reflect.Value{}, err
			}
			out = reflect.Append(out, v)
		}
		return out, nil
	}
	return convertOne(typ, values[len(values)-1])
}

func isScalar(typ reflect.Type) bool {
	if typ == timeType {
		return true
	}
	switch typ.Kind() {
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

func convertOne(typ reflect.Type, s string) (reflect.Value, error) {
	v := reflect.New(typ).Elem()
	if typ == timeType {
		t, err := dateparse.ParseIn(s, time.UTC)
		if err != nil {
			return v, err
		}
		v.Set(reflect.ValueOf(t))
		return v, nil
	}

	switch typ.Kind() {
	case reflect.String:
		v.SetString(s)
	case reflect.Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return v, err
		}
		v.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(s, 10, typ.Bits())
		if err != nil {
			return v, err
		}
		v.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(s, 10, typ.Bits())
		if err != nil {
			return v, err
		}
		v.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(s, typ.Bits())
		if err != nil {
			return v, err
		}
		v.SetFloat(f)
	case reflect.Slice:
		if typ.Elem().Kind() == reflect.Uint8 {
			v.SetBytes([]byte(s))
			return v, nil
		}
		return decodeJSON(typ, s)
	case reflect.Interface:
		// Untyped parameters take JSON when the value parses as JSON and
		// the plain string otherwise.
		if typ.NumMethod() > 0 || jsoniter.Valid([]byte(s)) {
			return decodeJSON(typ, s)
		}
		v.Set(reflect.ValueOf(s))
	default:
		return decodeJSON(typ, s)
	}
	return v, nil
}

func decodeJSON(typ reflect.Type, s string) (reflect.Value, error) {
	ptr := reflect.New(typ)
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(s, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

func printResult(w io.Writer, res any) error {
	switch v := res.(type) {
	case nil:
		return nil
	case string:
		_, err := fmt.Fprintln(w, v)
		return err
	case []byte:
		_, err := w.Write(v)
		return err
	}
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
