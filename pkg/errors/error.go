// Package errors provides structured error handling with typed error codes.
//
// Error codes are organized into categories:
//   - General errors (1-99): Unknown errors and cancellation
//   - Validation errors (100-199): Invalid parameters and configuration
//   - Market data errors (700-799): Transport failures, malformed payloads, timeouts
//   - Scheduler errors (800-899): Refresh scheduler lifecycle misuse
//   - Publishing errors (900-999): Fan-out to external subscribers
//
// Usage:
//
//	// Create a new error
//	err := errors.New(errors.ErrCodeInvalidParameter, "invalid parameter value")
//
//	// Wrap a transport failure
//	err := errors.Wrap(errors.ErrCodeTransport, "failed to reach market data proxy", originalErr)
//
//	// Decide whether the fallback path applies
//	if errors.IsSourceFailure(err) { ... }
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error represents a structured error with an error code and message.
type Error struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// New creates a new Error with the given code and message.
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   nil,
	}
}

// Newf creates a new Error with the given code and formatted message.
func Newf(code ErrorCode, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   nil,
	}
}

// Wrap wraps an existing error with a new Error containing the given code and message.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an existing error with a new Error containing the given code and formatted message.
func Wrapf(code ErrorCode, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}

	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// GetCode extracts the ErrorCode from an error if it's an *Error type.
// Returns ErrCodeUnknown if the error is not an *Error type.
func GetCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrCodeUnknown
}

// HasCode checks if an error has a specific ErrorCode.
func HasCode(err error, code ErrorCode) bool {
	return GetCode(err) == code
}

// IsSourceFailure reports whether err is a failure of an external market data
// source: a transport error, a timeout or a malformed response.
func IsSourceFailure(err error) bool {
	switch GetCode(err) {
	case ErrCodeTransport, ErrCodeTimeout, ErrCodeMalformedResponse, ErrCodeIncompatibleSource:
		return true
	default:
		return false
	}
}

// FromContext classifies a context error raised while waiting on a source.
// Deadline expiry becomes ErrCodeTimeout, cancellation ErrCodeCanceled and
// anything else ErrCodeTransport. Errors that already carry a code are
// returned unchanged.
func FromContext(err error, message string) error {
	if err == nil {
		return nil
	}

	var coded *Error
	if errors.As(err, &coded) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(ErrCodeTimeout, message, err)
	case errors.Is(err, context.Canceled):
		return Wrap(ErrCodeCanceled, message, err)
	default:
		return Wrap(ErrCodeTransport, message, err)
	}
}
