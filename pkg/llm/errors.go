package llm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorType classifies LLM provider errors for retry logic.
type ErrorType int8

const (
	// Retryable error types.

	// ErrorTypeRateLimit represents rate limiting errors (429, quota exceeded).
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient represents transient errors (5xx, EOF, connection reset, timeout).
	ErrorTypeTransient
	// ErrorTypeEmptyResponse represents HTTP 200 but no content errors.
	ErrorTypeEmptyResponse

	// Non-retryable error types.

	// ErrorTypeAuth represents authentication errors (401/403, bad API key).
	ErrorTypeAuth
	// ErrorTypeBadPrompt represents malformed request errors (too long, violates policy).
	ErrorTypeBadPrompt
	// ErrorTypeBudget represents a locally enforced spend cap; retrying
	// cannot help until the cap resets.
	ErrorTypeBudget
	// ErrorTypeUnknown represents default for unclassified errors.
	ErrorTypeUnknown
)

// String returns the string representation of the error type.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeBudget:
		return "budget"
	case ErrorTypeUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Error represents a classified LLM error.
type Error struct {
	Err        error     // Wrapped underlying error
	Message    string    // Human-readable error message
	Type       ErrorType // Classified error type
	StatusCode int       // HTTP status code if applicable
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type.String(), e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type.String(), e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type.String(), e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether this error type should be retried. Blocklist
// approach: everything is retryable unless explicitly non-retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeBudget:
		return false
	default:
		return true
	}
}

// NewError creates a classified error with a message.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// WrapError classifies err from its text and HTTP status when recognizable.
func WrapError(err error) *Error {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr
	}
	return &Error{Type: classify(err), Err: err}
}

// TypeOf returns the error type of an error, or ErrorTypeUnknown if not
// classified.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// ClassifyStatusCode maps an HTTP status to an error type.
func ClassifyStatusCode(code int) ErrorType {
	switch {
	case code == http.StatusTooManyRequests:
		return ErrorTypeRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrorTypeAuth
	case code == http.StatusBadRequest || code == http.StatusRequestEntityTooLarge:
		return ErrorTypeBadPrompt
	case code >= 500:
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}

func classify(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "quota"), strings.Contains(msg, "429"):
		return ErrorTypeRateLimit
	case strings.Contains(msg, "unauthorized"), strings.Contains(msg, "api key"), strings.Contains(msg, "401"), strings.Contains(msg, "403"):
		return ErrorTypeAuth
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "eof"), strings.Contains(msg, "unavailable"):
		return ErrorTypeTransient
	default:
		return ErrorTypeUnknown
	}
}
