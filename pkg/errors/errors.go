package errors

import (
	"errors"
	"fmt"
)

// ErrorType represents the classes of failure a profile fetch can end in
type ErrorType string

const (
	// ErrorTypeNotFound means the profile payload had no user (missing or private account)
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeHTTPStatus means upstream answered with a non-2xx status
	ErrorTypeHTTPStatus ErrorType = "http_status"
	// ErrorTypeProxy means the proxy layer refused or dropped the connection
	ErrorTypeProxy ErrorType = "proxy"
	// ErrorTypeTimeout means the request or the response read timed out
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeMalformed means the response body did not have the expected shape
	ErrorTypeMalformed ErrorType = "malformed"
	// ErrorTypeNetwork covers any other transport failure
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeConfiguration means required run input is missing or invalid
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeUnknown is used for anything that could not be classified
	ErrorTypeUnknown ErrorType = "unknown"
)

// NotFoundMessage is the result text for missing or private profiles
const NotFoundMessage = "profile inexistent/private"

// Error represents a classified failure with optional HTTP status code
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Kind returns the short error kind name used in result messages
func (e *Error) Kind() string {
	switch e.Type {
	case ErrorTypeHTTPStatus:
		return "HTTPStatusError"
	case ErrorTypeProxy:
		return "ProxyError"
	case ErrorTypeTimeout:
		return "ReadTimeout"
	case ErrorTypeMalformed:
		return "MalformedResponse"
	case ErrorTypeNotFound:
		return "NotFoundOrPrivate"
	case ErrorTypeNetwork:
		return "NetworkError"
	case ErrorTypeConfiguration:
		return "ConfigurationError"
	default:
		return "UnknownError"
	}
}

// ResultMessage renders the human-readable text stored in a result's error field
func (e *Error) ResultMessage() string {
	switch e.Type {
	case ErrorTypeNotFound:
		return NotFoundMessage
	case ErrorTypeHTTPStatus:
		return fmt.Sprintf("HTTP Error: %d", e.Code)
	default:
		return fmt.Sprintf("Unexpected error: %s: %s", e.Kind(), e.Message)
	}
}

// New creates a classified error
func New(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// Wrap creates a classified error around a cause
func Wrap(errorType ErrorType, err error, message string) *Error {
	if message == "" && err != nil {
		message = err.Error()
	}
	return &Error{Type: errorType, Message: message, Err: err}
}

// HTTPStatus creates an upstream status error
func HTTPStatus(code int) *Error {
	return &Error{
		Type:    ErrorTypeHTTPStatus,
		Message: fmt.Sprintf("upstream returned status %d", code),
		Code:    code,
	}
}

// Configuration creates a run-fatal configuration error
func Configuration(err error) *Error {
	return Wrap(ErrorTypeConfiguration, err, "")
}

// IsRetryable checks if an error type should be retried
func IsRetryable(errorType ErrorType) bool {
	switch errorType {
	case ErrorTypeHTTPStatus, ErrorTypeProxy, ErrorTypeTimeout:
		return true
	case ErrorTypeNotFound, ErrorTypeMalformed, ErrorTypeNetwork, ErrorTypeConfiguration:
		return false
	default:
		return false
	}
}

// As extracts a classified error from an error chain
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// TypeOf returns the classified type of err, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	if appErr, ok := As(err); ok {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	return TypeOf(err) == ErrorTypeConfiguration
}
