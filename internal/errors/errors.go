// Package errors provides coded domain errors for the exclusion planner.
//
// Services return typed errors; callers match them with errors.Is against the
// sentinel values, or switch on Code after errors.As:
//
//	if errors.Is(err, errors.ErrOverlap) {
//	    // the requested skip range collides with a stored one
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code is a machine-readable error code.
type Code string

const (
	CodeConfiguration Code = "CONFIGURATION"
	CodeMediaRead     Code = "MEDIA_READ"
	CodeInvalidRange  Code = "INVALID_RANGE"
	CodeOverlap       Code = "OVERLAP"
	CodeNotFound      Code = "NOT_FOUND"
	CodeInternal      Code = "INTERNAL"
)

// Retryable reports whether an operation failing with this code may succeed
// on a later attempt without the caller changing anything.
func (c Code) Retryable() bool {
	return c == CodeInternal
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error carrying the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a copy of the error carrying details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: details, cause: e.cause}
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrConfiguration = &Error{Code: CodeConfiguration, Message: "invalid configuration"}
	ErrMediaRead     = &Error{Code: CodeMediaRead, Message: "media read failed"}
	ErrInvalidRange  = &Error{Code: CodeInvalidRange, Message: "invalid time range"}
	ErrOverlap       = &Error{Code: CodeOverlap, Message: "time range overlaps an existing range"}
	ErrNotFound      = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInternal      = &Error{Code: CodeInternal, Message: "internal error"}
)

// Configuration creates a configuration error. Never retried; the caller must
// fix the configuration.
func Configuration(format string, args ...any) *Error {
	return &Error{Code: CodeConfiguration, Message: fmt.Sprintf(format, args...)}
}

// MediaRead creates a media read error for a file that could not be opened or decoded.
func MediaRead(format string, args ...any) *Error {
	return &Error{Code: CodeMediaRead, Message: fmt.Sprintf(format, args...)}
}

// InvalidRange creates an invalid range error.
func InvalidRange(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidRange, Message: fmt.Sprintf(format, args...)}
}

// Overlap creates an overlap error.
func Overlap(format string, args ...any) *Error {
	return &Error{Code: CodeOverlap, Message: fmt.Sprintf(format, args...)}
}

// NotFound creates a not found error.
func NotFound(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Code: CodeInternal, Message: msg, cause: err}
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
