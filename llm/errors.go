package llm

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies one failure category in the closed taxonomy.
type ErrorCode string

const (
	ErrorCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrorCodeRateLimited          ErrorCode = "RATE_LIMITED"
	ErrorCodeQuotaExceeded        ErrorCode = "QUOTA_EXCEEDED"
	ErrorCodeTimeout              ErrorCode = "TIMEOUT"
	ErrorCodeNetwork              ErrorCode = "NETWORK_ERROR"
	ErrorCodeModelNotFound        ErrorCode = "MODEL_NOT_FOUND"
	ErrorCodeInvalidRequest       ErrorCode = "INVALID_REQUEST"
	ErrorCodeServer               ErrorCode = "SERVER_ERROR"
	ErrorCodeContentFiltered      ErrorCode = "CONTENT_FILTERED"
	ErrorCodeUnknown              ErrorCode = "UNKNOWN_ERROR"
)

// RetryMetadata records the history of a retry loop that ended in failure.
type RetryMetadata struct {
	Attempts      int
	TotalDuration time.Duration
	LastErr       error
}

// Error is the provider-neutral failure type every error leaving this
// package is normalized into. Retryable is the single source of truth for
// whether the retry loop attempts another call.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool

	// StatusCode is the HTTP-like status extracted from the failure, or 0.
	StatusCode int

	// RetryAfter is an explicit delay hint parsed from the failure, if any.
	RetryAfter *time.Duration

	// Cause is the original provider error, preserved for wrapping.
	Cause error

	// Retries is set only on the error returned after retry exhaustion.
	Retries *RetryMetadata
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates an Error with the retryable default for its code.
func NewError(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Retryable: retryableDefault(code),
		Cause:     cause,
	}
}

// retryableDefault returns the taxonomy's retryable flag for a code.
func retryableDefault(code ErrorCode) bool {
	switch code {
	case ErrorCodeRateLimited, ErrorCodeQuotaExceeded, ErrorCodeTimeout,
		ErrorCodeNetwork, ErrorCodeServer:
		return true
	default:
		return false
	}
}

// IsRetryable checks whether an error is classified retryable.
func IsRetryable(err error) bool {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable
	}
	return false
}

// CodeOf extracts the taxonomy code from an error, or ErrorCodeUnknown.
func CodeOf(err error) ErrorCode {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrorCodeUnknown
}

// RetryAfterOf extracts the retry-after hint from an error, if present.
func RetryAfterOf(err error) *time.Duration {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.RetryAfter
	}
	return nil
}
