package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeInvalidArgument   = "INVALID_ARGUMENT"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeReducer           = "REDUCER_ERROR"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeRender            = "RENDER_ERROR"
	ErrCodeExpression        = "EXPRESSION_ERROR"
)

// AmbrosiaError is the structured error type for all export operations.
type AmbrosiaError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	ElementID string         `json:"element_id,omitempty"`
	Cause     error          `json:"-"`
}

func (e *AmbrosiaError) Error() string {
	if e.ElementID != "" {
		return fmt.Sprintf("[%s] element %s: %s", e.Code, e.ElementID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AmbrosiaError) Unwrap() error {
	return e.Cause
}

// NewError creates a new AmbrosiaError.
func NewError(code, message string) *AmbrosiaError {
	return &AmbrosiaError{Code: code, Message: message}
}

// NewErrorf creates a new AmbrosiaError with a formatted message.
func NewErrorf(code, format string, args ...any) *AmbrosiaError {
	return &AmbrosiaError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithElement attaches the id of the courseware element the error relates to.
func (e *AmbrosiaError) WithElement(elementID string) *AmbrosiaError {
	e.ElementID = elementID
	return e
}

// WithCause attaches an underlying cause.
func (e *AmbrosiaError) WithCause(err error) *AmbrosiaError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *AmbrosiaError) WithDetails(details map[string]any) *AmbrosiaError {
	e.Details = details
	return e
}

// IsRedeliverable reports whether a transport should try delivering the
// message that produced this error again.
func (e *AmbrosiaError) IsRedeliverable() bool {
	switch e.Code {
	case ErrCodeInvalidArgument, ErrCodeReducer, ErrCodeInvalidTransition, ErrCodeNotFound:
		return false
	default:
		return true
	}
}

// IsCode reports whether err is, or wraps, an AmbrosiaError with the given code.
func IsCode(err error, code string) bool {
	var ae *AmbrosiaError
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

// InvalidArgument is shorthand for a missing or malformed call parameter.
func InvalidArgument(format string, args ...any) *AmbrosiaError {
	return NewErrorf(ErrCodeInvalidArgument, format, args...)
}
