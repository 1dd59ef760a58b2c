// Package apperr defines the error vocabulary exposed at the API boundary.
// Provider-specific failures are normalized into these codes before they
// reach handlers; core services never surface raw provider errors.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code identifies a class of failure in API responses.
type Code string

const (
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeNotRegistered      Code = "NOT_REGISTERED"
	CodeUserMismatch       Code = "USER_MISMATCH"
	CodeOrphanedIdentity   Code = "ORPHANED_IDENTITY"
	CodeRateLimited        Code = "RATE_LIMITED"
	CodeServiceUnavailable Code = "SERVICE_UNAVAILABLE"
	CodeValidation         Code = "VALIDATION_ERROR"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error carries a taxonomy code, a user-safe message and an optional
// wrapped cause. The cause may contain provider detail and is only logged,
// never serialized.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration // only meaningful for CodeRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a taxonomy error with a user-safe message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a taxonomy error preserving the underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// RateLimited creates a RATE_LIMITED error with a retry-after hint.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Code:       CodeRateLimited,
		Message:    "too many requests, slow down",
		RetryAfter: retryAfter,
	}
}

// CodeOf extracts the taxonomy code from err, or CodeInternal if err does
// not carry one.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// HTTPStatus maps a taxonomy code to an HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeNotRegistered:
		return http.StatusPreconditionFailed
	case CodeUserMismatch, CodeOrphanedIdentity:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
