package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the category of a provider error.
type ErrorType string

const (
	ErrorTypeAuth              ErrorType = "auth"
	ErrorTypeRateLimit         ErrorType = "rate_limit"
	ErrorTypeServer            ErrorType = "server"
	ErrorTypeNetwork           ErrorType = "network"
	ErrorTypeMalformedResponse ErrorType = "malformed_response"
	ErrorTypeInvalidRequest    ErrorType = "invalid_request"
)

// Error represents a provider-neutral generation error.
type Error struct {
	Type       ErrorType
	Provider   string
	Message    string
	Retryable  bool
	StatusCode int
	Cause      error // original provider-specific error, if any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Provider != "" {
		msg = e.Provider + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying provider error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewAuthError creates a non-retryable authentication error.
func NewAuthError(provider, message string, cause error) *Error {
	return &Error{Type: ErrorTypeAuth, Provider: provider, Message: message, Retryable: false, StatusCode: 401, Cause: cause}
}

// NewRateLimitError creates a retryable rate-limit error.
func NewRateLimitError(provider, message string, cause error) *Error {
	return &Error{Type: ErrorTypeRateLimit, Provider: provider, Message: message, Retryable: true, StatusCode: 429, Cause: cause}
}

// NewServerError creates a retryable server-side error.
func NewServerError(provider, message string, statusCode int, cause error) *Error {
	return &Error{Type: ErrorTypeServer, Provider: provider, Message: message, Retryable: true, StatusCode: statusCode, Cause: cause}
}

// NewNetworkError creates a retryable transport-level error (timeout,
// connection failure).
func NewNetworkError(provider, message string, cause error) *Error {
	return &Error{Type: ErrorTypeNetwork, Provider: provider, Message: message, Retryable: true, Cause: cause}
}

// NewMalformedResponseError creates an error for a response body that could
// not be decoded at the transport level. Retried once, then surfaced.
func NewMalformedResponseError(provider, message string, cause error) *Error {
	return &Error{Type: ErrorTypeMalformedResponse, Provider: provider, Message: message, Retryable: true, Cause: cause}
}

// NewInvalidRequestError creates a non-retryable bad-request error.
func NewInvalidRequestError(provider, message string, cause error) *Error {
	return &Error{Type: ErrorTypeInvalidRequest, Provider: provider, Message: message, Retryable: false, StatusCode: 400, Cause: cause}
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	return hasType(err, ErrorTypeAuth)
}

// IsRateLimitError checks if an error is a rate-limit error.
func IsRateLimitError(err error) bool {
	return hasType(err, ErrorTypeRateLimit)
}

// IsMalformedResponseError checks if an error is an undecodable-response
// error.
func IsMalformedResponseError(err error) bool {
	return hasType(err, ErrorTypeMalformedResponse)
}

// IsRetryableError checks if an error may be retried.
func IsRetryableError(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Retryable
	}
	return false
}

func hasType(err error, t ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == t
	}
	return false
}

// ProviderFailedError is the terminal error raised after all retry
// attempts against a single provider are exhausted.
type ProviderFailedError struct {
	Provider string
	Attempts int
	LastErr  error
}

// Error implements the error interface.
func (e *ProviderFailedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts: %v", e.Provider, e.Attempts, e.LastErr)
}

// Unwrap returns the last underlying failure.
func (e *ProviderFailedError) Unwrap() error {
	return e.LastErr
}

// AllProvidersFailedError is raised when the preferred provider and every
// configured alternate have all failed. The message references each
// provider that was attempted.
type AllProvidersFailedError struct {
	Errors []error
}

// Error implements the error interface.
func (e *AllProvidersFailedError) Error() string {
	if len(e.Errors) == 0 {
		return "all providers failed: no providers available"
	}
	parts := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		parts = append(parts, err.Error())
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes the per-provider failures for errors.Is/As matching.
func (e *AllProvidersFailedError) Unwrap() []error {
	return e.Errors
}
