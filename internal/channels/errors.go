// Package channels holds what chat transports share: coded errors and
// outbound rate limiting.
package channels

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes transport failures.
type ErrorCode string

const (
	ErrCodeConnection     ErrorCode = "CONNECTION_ERROR"
	ErrCodeAuthentication ErrorCode = "AUTH_ERROR"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT_ERROR"
	ErrCodeInvalidInput   ErrorCode = "INVALID_INPUT"
	ErrCodeTimeout        ErrorCode = "TIMEOUT_ERROR"
	ErrCodeInternal       ErrorCode = "INTERNAL_ERROR"
	ErrCodeConfig         ErrorCode = "CONFIG_ERROR"
)

// Error is a transport error with a code.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the operation may succeed if retried.
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrCodeRateLimit, ErrCodeTimeout, ErrCodeConnection:
		return true
	default:
		return false
	}
}

// NewError creates a coded error.
func NewError(code ErrorCode, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func ErrConnection(message string, err error) *Error {
	return NewError(ErrCodeConnection, message, err)
}

func ErrAuthentication(message string, err error) *Error {
	return NewError(ErrCodeAuthentication, message, err)
}

func ErrRateLimit(message string, err error) *Error {
	return NewError(ErrCodeRateLimit, message, err)
}

func ErrInvalidInput(message string, err error) *Error {
	return NewError(ErrCodeInvalidInput, message, err)
}

func ErrTimeout(message string, err error) *Error {
	return NewError(ErrCodeTimeout, message, err)
}

func ErrInternal(message string, err error) *Error {
	return NewError(ErrCodeInternal, message, err)
}

func ErrConfig(message string, err error) *Error {
	return NewError(ErrCodeConfig, message, err)
}

// GetErrorCode extracts the code from err, defaulting to ErrCodeInternal.
func GetErrorCode(err error) ErrorCode {
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.Code
	}
	return ErrCodeInternal
}

// IsRetryable reports whether err is a retryable transport error.
func IsRetryable(err error) bool {
	var chErr *Error
	if errors.As(err, &chErr) {
		return chErr.IsRetryable()
	}
	return false
}
