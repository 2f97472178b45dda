// Package channels holds the error taxonomy and pacing helpers shared by
// chat-platform clients.
package channels

import (
	"context"
	"errors"
	"fmt"
)

// ErrorCode classifies a platform failure.
type ErrorCode string

const (
	// ErrCodeConnection indicates a network or gateway failure.
	ErrCodeConnection ErrorCode = "CONNECTION_ERROR"

	// ErrCodePermission indicates the bot lacks access to the resource.
	ErrCodePermission ErrorCode = "PERMISSION_ERROR"

	// ErrCodeRateLimit indicates the platform throttled the call.
	ErrCodeRateLimit ErrorCode = "RATE_LIMIT_ERROR"

	// ErrCodeInvalidInput indicates a malformed identifier or payload.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrCodeNotFound indicates the channel, thread or member does not exist.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeTimeout indicates the call did not complete in time.
	ErrCodeTimeout ErrorCode = "TIMEOUT_ERROR"

	// ErrCodeUnavailable indicates the platform is temporarily unavailable.
	ErrCodeUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// ErrCodeConfig indicates operator configuration is wrong, e.g. the
	// dispatch channel is missing or not text-capable.
	ErrCodeConfig ErrorCode = "CONFIG_ERROR"

	// ErrCodeInternal is the fallback for unclassified failures.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Error is a classified platform error.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error

	// Context carries ids useful in logs (channel, thread, guild).
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with the given code.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// WithContext attaches a key/value pair and returns e.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// IsRetryable reports whether the failure is transient.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeTimeout, ErrCodeUnavailable, ErrCodeConnection:
		return true
	default:
		return false
	}
}

// ErrConnection creates a connection error.
func ErrConnection(message string, err error) *Error {
	return NewError(ErrCodeConnection, message, err)
}

// ErrPermission creates a permission error.
func ErrPermission(message string, err error) *Error {
	return NewError(ErrCodePermission, message, err)
}

// ErrRateLimit creates a rate limit error.
func ErrRateLimit(message string, err error) *Error {
	return NewError(ErrCodeRateLimit, message, err)
}

// ErrInvalidInput creates an invalid input error.
func ErrInvalidInput(message string, err error) *Error {
	return NewError(ErrCodeInvalidInput, message, err)
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string, err error) *Error {
	return NewError(ErrCodeNotFound, message, err)
}

// ErrUnavailable creates a service unavailable error.
func ErrUnavailable(message string, err error) *Error {
	return NewError(ErrCodeUnavailable, message, err)
}

// ErrConfig creates a configuration error.
func ErrConfig(message string, err error) *Error {
	return NewError(ErrCodeConfig, message, err)
}

// GetErrorCode extracts the code from err, or ErrCodeInternal.
func GetErrorCode(err error) ErrorCode {
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.Code
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err is a transient platform failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.IsRetryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsNotFound reports whether err means the resource no longer exists.
func IsNotFound(err error) bool {
	return GetErrorCode(err) == ErrCodeNotFound
}

// IsConfig reports whether err is an operator configuration error.
func IsConfig(err error) bool {
	return GetErrorCode(err) == ErrCodeConfig
}
