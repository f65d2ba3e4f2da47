package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	ErrorCodeUnknown           = "unknown"
	ErrorCodeInvalidArgument   = "invalid_argument"
	ErrorCodeNotFound          = "not_found"
	ErrorCodeAlreadyExists     = "already_exists"
	ErrorCodePermissionDenied  = "permission_denied"
	ErrorCodeUnauthenticated   = "unauthenticated"
	ErrorCodeTimeout           = "timeout"
	ErrorCodeCancelled         = "cancelled"
	ErrorCodeDeadlineExceeded  = "deadline_exceeded"
	ErrorCodeUnavailable       = "unavailable"
	ErrorCodeResourceExhausted = "resource_exhausted"
	ErrorCodeInternal          = "internal"

	// ErrorCodeEncode marks a failure to serialize the request body.
	ErrorCodeEncode = "encode_failure"
	// ErrorCodeDecode marks a failure to deserialize the response.
	ErrorCodeDecode = "decode_failure"
	// ErrorCodeTemplate marks a URL template that could not be resolved.
	ErrorCodeTemplate = "template_failure"
)

// Common errors
var (
	ErrClientClosed     = New(ErrorCodeUnavailable, "client closed")
	ErrTimeout          = New(ErrorCodeTimeout, "timeout")
	ErrCancelled        = New(ErrorCodeCancelled, "cancelled")
	ErrDeadlineExceeded = New(ErrorCodeDeadlineExceeded, "deadline exceeded")
	ErrMethodNotFound   = New(ErrorCodeNotFound, "method not found")
)

// Error represents an error with additional context
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the cause of the error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code and message.
// This lets the package level sentinels match copies made by Wrap.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// New creates a new error
func New(code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new error with formatted message
func Newf(code, format string, args ...interface{}) error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with additional context
func Wrap(code string, err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Code returns the error code
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrorCodeUnknown
}

// Message returns the error message
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Cause returns the cause of the error
func Cause(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Cause
	}
	return nil
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// EncodeFailure wraps err as an encode failure. Errors that already carry
// the encode failure code are returned unchanged.
func EncodeFailure(err error) error {
	return wrapOnce(ErrorCodeEncode, err, "failed to encode request body")
}

// DecodeFailure wraps err as a decode failure. Errors that already carry
// the decode failure code are returned unchanged.
func DecodeFailure(err error) error {
	return wrapOnce(ErrorCodeDecode, err, "failed to decode response")
}

func wrapOnce(code string, err error, message string) error {
	if err == nil {
		return nil
	}
	if HasCode(err, code) {
		return err
	}
	return Wrap(code, err, message)
}

// IsEncodeFailure reports whether err is an encode failure.
func IsEncodeFailure(err error) bool {
	return HasCode(err, ErrorCodeEncode)
}

// IsDecodeFailure reports whether err is a decode failure.
func IsDecodeFailure(err error) bool {
	return HasCode(err, ErrorCodeDecode)
}

// IsTemplateFailure reports whether err is a template resolution failure.
func IsTemplateFailure(err error) bool {
	return HasCode(err, ErrorCodeTemplate)
}

// FromContext converts the error of a finished context into a coded error.
// It returns nil while ctx is still live.
func FromContext(ctx context.Context) error {
	switch err := ctx.Err(); {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(ErrorCodeDeadlineExceeded, err, "deadline exceeded")
	default:
		return Wrap(ErrorCodeCancelled, err, "cancelled")
	}
}

// CodeForHTTPStatus maps an HTTP status code to an error code.
func CodeForHTTPStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrorCodeInvalidArgument
	case http.StatusUnauthorized:
		return ErrorCodeUnauthenticated
	case http.StatusForbidden:
		return ErrorCodePermissionDenied
	case http.StatusNotFound:
		return ErrorCodeNotFound
	case http.StatusConflict:
		return ErrorCodeAlreadyExists
	case http.StatusRequestTimeout:
		return ErrorCodeTimeout
	case http.StatusTooManyRequests:
		return ErrorCodeResourceExhausted
	case http.StatusBadGateway, http.StatusServiceUnavailable:
		return ErrorCodeUnavailable
	case http.StatusGatewayTimeout:
		return ErrorCodeDeadlineExceeded
	}
	if status >= 500 {
		return ErrorCodeInternal
	}
	return ErrorCodeUnknown
}
