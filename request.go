package rabbit

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
)

// Request is the wire-level request under construction. It belongs to a
// single invocation. Port is the explicit or scheme default port, 0 when
// unknown.
type Request struct {
	Method string
	Scheme string
	Host   string
	Port   int
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// NewRequest returns an empty request for method.
func NewRequest(method string) *Request {
	return &Request{
		Method: method,
		Query:  make(url.Values),
		Header: make(http.Header),
	}
}

// AddQuery appends values to key. Existing values are kept.
func (r *Request) AddQuery(key string, values ...string) *Request {
	if r.Query == nil {
		r.Query = make(url.Values)
	}
	r.Query[key] = append(r.Query[key], values...)
	return r
}

// AddHeader appends values to the header key. Keys are case-insensitive.
func (r *Request) AddHeader(key string, values ...string) *Request {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	for _, v := range values {
		r.Header.Add(key, v)
	}
	return r
}

// SetHeader replaces the values of the header key.
func (r *Request) SetHeader(key string, values ...string) *Request {
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Header.Del(key)
	return r.AddHeader(key, values...)
}

// SetBody attaches data as the body. A non-empty contentType is set as
// the Content-Type header.
func (r *Request) SetBody(data []byte, contentType string) *Request {
	r.Body = data
	if contentType != "" {
		r.SetHeader("Content-Type", contentType)
	}
	return r
}

// URL assembles the absolute request URL. Scheme default ports are omitted.
func (r *Request) URL() *url.URL {
	host := r.Host
	if r.Port != 0 && r.Port != defaultPort(r.Scheme) {
		host = net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
	} else if ip := net.ParseIP(r.Host); ip != nil && ip.To4() == nil {
		host = "[" + r.Host + "]"
	}
	u := &url.URL{
		Scheme:   r.Scheme,
		Host:     host,
		Path:     r.Path,
		RawQuery: r.Query.Encode(),
	}
	// Path is kept escaped.
	if p, err := url.PathUnescape(r.Path); err == nil && p != r.Path {
		u.Path = p
		u.RawPath = r.Path
	}
	return u
}

// Clone returns a deep copy of r.
func (r *Request) Clone() *Request {
	c := *r
	c.Query = make(url.Values, len(r.Query))
	for k, vs := range r.Query {
		c.Query[k] = append([]string(nil), vs...)
	}
	c.Header = r.Header.Clone()
	if c.Header == nil {
		c.Header = make(http.Header)
	}
	if r.Body != nil {
		c.Body = append([]byte(nil), r.Body...)
	}
	return &c
}

// Response is filled by the transport and read by the decoder.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewResponse returns an empty response.
func NewResponse() *Response {
	return &Response{Header: make(http.Header)}
}

// Reset clears the response in place.
func (r *Response) Reset() {
	r.StatusCode = 0
	r.Header = make(http.Header)
	r.Body = nil
}

// CopyFrom overwrites r with a deep copy of other, keeping r's identity.
func (r *Response) CopyFrom(other *Response) {
	r.StatusCode = other.StatusCode
	r.Header = other.Header.Clone()
	if r.Header == nil {
		r.Header = make(http.Header)
	}
	r.Body = append([]byte(nil), other.Body...)
}

// Clone returns a deep copy of r.
func (r *Response) Clone() *Response {
	c := NewResponse()
	c.CopyFrom(r)
	return c
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

func defaultPort(scheme string) int {
	switch scheme {
	case "http", "ws":
		return 80
	case "https", "wss":
		return 443
	}
	return 0
}
