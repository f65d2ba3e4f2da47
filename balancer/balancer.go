// Package balancer spreads invocations over a fixed set of endpoints by
// rewriting the scheme, host and port of each request.
package balancer

import (
	"context"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-thor/rabbit"
	"github.com/go-thor/rabbit/errors"
)

// ErrNoEndpoint is returned when there is nothing to pick from
var ErrNoEndpoint = errors.New(errors.ErrorCodeUnavailable, "no available endpoint")

// ItemKey is the Invocation.Items key holding the picked endpoint
const ItemKey = "endpoint"

// Endpoint is one backend address
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
}

// String returns scheme://host:port
func (e Endpoint) String() string {
	u := url.URL{Scheme: e.Scheme, Host: e.Host}
	switch {
	case e.Port != 0:
		u.Host = net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
	case strings.Contains(e.Host, ":"):
		u.Host = "[" + e.Host + "]"
	}
	return u.String()
}

// ParseEndpoint parses an absolute URL into an Endpoint. Path and query
// are ignored.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "invalid endpoint")
	}
	if u.Scheme == "" || u.Host == "" {
		return Endpoint{}, errors.Newf(errors.ErrorCodeInvalidArgument, "endpoint %q is not absolute", raw)
	}
	e := Endpoint{Scheme: u.Scheme, Host: u.Hostname()}
	if p := u.Port(); p != "" {
		if e.Port, err = strconv.Atoi(p); err != nil {
			return Endpoint{}, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "invalid endpoint port")
		}
	}
	return e, nil
}

// Picker selects an endpoint for an invocation
type Picker interface {
	Pick(endpoints []Endpoint, methodID string) (Endpoint, error)
}

// Interceptor returns an interceptor routing every request to an endpoint
// chosen by picker. The URL template still provides path and query.
func Interceptor(endpoints []Endpoint, picker Picker) rabbit.Interceptor {
	endpoints = append([]Endpoint(nil), endpoints...)
	return func(ctx context.Context, inv *rabbit.Invocation, next rabbit.HandlerFunc) (any, error) {
		e, err := picker.Pick(endpoints, inv.Method.ID)
		if err != nil {
			return nil, err
		}
		req := inv.Request()
		req.Scheme = e.Scheme
		req.Host = e.Host
		req.Port = e.Port
		inv.Items[ItemKey] = e
		return next(ctx, inv)
	}
}
