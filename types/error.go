package types

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine failures. Codes are stable strings so they
// can be logged, matched and surfaced across process restarts.
type ErrorCode string

const (
	// ErrCodeSchemaViolation: a stage produced an update for a field the
	// state schema does not declare. Programmer error, always fatal.
	ErrCodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// ErrCodeUnknownRoute: a router returned a label outside its declared
	// outcome set. Programmer error, always fatal.
	ErrCodeUnknownRoute ErrorCode = "UNKNOWN_ROUTE"

	// ErrCodeGraphInvalid: graph construction failed validation (missing
	// entry, dangling edge target, stage without an outgoing edge).
	ErrCodeGraphInvalid ErrorCode = "GRAPH_INVALID"

	// ErrCodeSessionLocked: another holder owns the session lease.
	ErrCodeSessionLocked ErrorCode = "SESSION_LOCKED"

	// ErrCodeSessionNotFound: resume was asked for a session id with no
	// stored checkpoint.
	ErrCodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"

	// ErrCodeRetryExhausted: a loop scope hit its bound. Informational;
	// workflows normally degrade gracefully instead of raising it.
	ErrCodeRetryExhausted ErrorCode = "RETRY_EXHAUSTED"

	// ErrCodeClassificationAmbiguous: a classifier output matched no label
	// and no default was configured.
	ErrCodeClassificationAmbiguous ErrorCode = "CLASSIFICATION_AMBIGUOUS"

	// ErrCodeExternalService: an LLM, search, fetch or subprocess
	// collaborator failed. Retryable; stages usually absorb it into
	// sentinel state values.
	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE"

	// ErrCodeValidationFailure: malformed input at an API boundary.
	ErrCodeValidationFailure ErrorCode = "VALIDATION_FAILURE"
)

// Error is the coded error carried across package boundaries.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Cause     error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on code so callers can use errors.Is with a bare coded error.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf creates a coded error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// CodeOf extracts the code from an error chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
