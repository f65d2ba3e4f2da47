package rabbit

import (
	"encoding"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-thor/rabbit/errors"
)

// ParameterTarget says where a formatted argument is placed in the request.
type ParameterTarget int

const (
	TargetPath ParameterTarget = iota
	TargetQuery
	TargetHeader
	TargetBody
)

func (t ParameterTarget) String() string {
	switch t {
	case TargetPath:
		return "path"
	case TargetQuery:
		return "query"
	case TargetHeader:
		return "header"
	case TargetBody:
		return "body"
	default:
		return fmt.Sprintf("target(%d)", int(t))
	}
}

// ParseTarget parses the lower case name of a target.
func ParseTarget(s string) (ParameterTarget, error) {
	switch strings.ToLower(s) {
	case "path":
		return TargetPath, nil
	case "query":
		return TargetQuery, nil
	case "header":
		return TargetHeader, nil
	case "body":
		return TargetBody, nil
	}
	return 0, errors.Newf(errors.ErrorCodeInvalidArgument, "unknown parameter target %q", s)
}

// Formatter type tags. A tag is resolved once per parameter when the
// descriptor is built and selects the key-value formatter used at call time.
const (
	TagScalar = "scalar"
	TagSlice  = "slice"
	TagMap    = "map"
	TagStruct = "struct"
	TagTime   = "time"
	TagForm   = "form"
)

var (
	timeType          = reflect.TypeOf(time.Time{})
	textMarshalerType = reflect.TypeOf((*encoding.TextMarshaler)(nil)).Elem()
	stringerType      = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// TagFor resolves the default formatter tag for a declared type.
func TagFor(typ reflect.Type) string {
	if typ == nil {
		return TagScalar
	}
	if typ == timeType || (typ.Kind() == reflect.Pointer && typ.Elem() == timeType) {
		return TagTime
	}
	if typ.Implements(textMarshalerType) || typ.Implements(stringerType) {
		return TagScalar
	}
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	switch typ.Kind() {
	case reflect.Slice, reflect.Array:
		if typ.Elem().Kind() == reflect.Uint8 {
			return TagScalar
		}
		return TagSlice
	case reflect.Map:
		return TagMap
	case reflect.Struct:
		return TagStruct
	default:
		return TagScalar
	}
}

// ParameterDescriptor describes one argument of a method.
type ParameterDescriptor struct {
	// Name is the key used for the formatted value.
	Name string
	// Type is the declared type of the argument.
	Type reflect.Type
	// Format is the formatter tag. Empty means resolve from the argument.
	Format string
	// Target is where the value is placed.
	Target ParameterTarget
}

// URLTemplate is a URL with optional {name} placeholders.
type URLTemplate struct {
	Template string
	// NeedParse is true when Template contains placeholders.
	NeedParse bool
}

// NewURLTemplate returns a URLTemplate for s.
func NewURLTemplate(s string) URLTemplate {
	open := strings.IndexByte(s, '{')
	return URLTemplate{
		Template:  s,
		NeedParse: open >= 0 && strings.IndexByte(s[open:], '}') > 0,
	}
}

// MethodDescriptor is the static description of a remote method. It is
// built once at registration and must not be modified afterwards.
type MethodDescriptor struct {
	// ID is the stable identifier used to look the method up.
	ID string
	// HTTPMethod is the request method, GET when empty.
	HTTPMethod string
	// Parameters are in declaration order.
	Parameters []ParameterDescriptor
	// URL is the request URL template.
	URL URLTemplate
	// ReturnType is the type the response is decoded into. Nil means the
	// method has no result.
	ReturnType reflect.Type
	// Codec overrides the client codec when non-nil.
	Codec *Codec
}

// BodyIndex returns the index of the first body parameter, or -1.
func (m *MethodDescriptor) BodyIndex() int {
	for i := range m.Parameters {
		if m.Parameters[i].Target == TargetBody {
			return i
		}
	}
	return -1
}

// MethodOption configures a MethodDescriptor under construction.
type MethodOption func(*MethodDescriptor) error

// NewMethod builds a MethodDescriptor.
func NewMethod(id, httpMethod, url string, opts ...MethodOption) (*MethodDescriptor, error) {
	if id == "" {
		return nil, errors.New(errors.ErrorCodeInvalidArgument, "method id is empty")
	}
	if httpMethod == "" {
		httpMethod = http.MethodGet
	}
	m := &MethodDescriptor{
		ID:         id,
		HTTPMethod: strings.ToUpper(httpMethod),
		URL:        NewURLTemplate(url),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, errors.Wrap(errors.ErrorCodeInvalidArgument, err, "method "+id)
		}
	}
	return m, nil
}

// MustMethod is like NewMethod but panics on error. It is meant for
// package level method tables.
func MustMethod(id, httpMethod, url string, opts ...MethodOption) *MethodDescriptor {
	m, err := NewMethod(id, httpMethod, url, opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Param appends a parameter. An empty format resolves from typ; for nil
// or interface types it stays empty and is resolved from the argument at
// call time.
func Param(name string, target ParameterTarget, typ reflect.Type, format string) MethodOption {
	return func(m *MethodDescriptor) error {
		if name == "" && target != TargetBody {
			return fmt.Errorf("parameter %d has no name", len(m.Parameters))
		}
		if format == "" && typ != nil && typ.Kind() != reflect.Interface {
			format = TagFor(typ)
		}
		m.Parameters = append(m.Parameters, ParameterDescriptor{
			Name:   name,
			Type:   typ,
			Format: format,
			Target: target,
		})
		return nil
	}
}

// PathParam appends a path parameter of type T.
func PathParam[T any](name string) MethodOption {
	return Param(name, TargetPath, reflect.TypeFor[T](), "")
}

// QueryParam appends a query parameter of type T.
func QueryParam[T any](name string) MethodOption {
	return Param(name, TargetQuery, reflect.TypeFor[T](), "")
}

// HeaderParam appends a header parameter of type T.
func HeaderParam[T any](name string) MethodOption {
	return Param(name, TargetHeader, reflect.TypeFor[T](), "")
}

// BodyParam appends the body parameter of type T.
func BodyParam[T any](name string) MethodOption {
	return Param(name, TargetBody, reflect.TypeFor[T](), "")
}

// WithFormat overrides the formatter tag of the most recently added parameter.
func WithFormat(tag string) MethodOption {
	return func(m *MethodDescriptor) error {
		if len(m.Parameters) == 0 {
			return fmt.Errorf("format %q given before any parameter", tag)
		}
		m.Parameters[len(m.Parameters)-1].Format = tag
		return nil
	}
}

// Returns declares T as the result type.
func Returns[T any]() MethodOption {
	return ReturnsType(reflect.TypeFor[T]())
}

// ReturnsType declares typ as the result type.
func ReturnsType(typ reflect.Type) MethodOption {
	return func(m *MethodDescriptor) error {
		m.ReturnType = typ
		return nil
	}
}

// WithCodec sets a method specific codec.
func WithCodec(c Codec) MethodOption {
	return func(m *MethodDescriptor) error {
		m.Codec = &c
		return nil
	}
}
