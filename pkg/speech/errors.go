package speech

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions.
var (
	// ErrNoAPIKey is returned when the API key is missing.
	ErrNoAPIKey = errors.New("speech: API key required")

	// ErrNoVoiceID is returned when the voice ID is missing.
	ErrNoVoiceID = errors.New("speech: voice ID required")

	// ErrNoText is returned when Speak is called with empty text.
	ErrNoText = errors.New("speech: no text to speak")

	// ErrStreamClosed is returned when reading from a closed stream.
	ErrStreamClosed = errors.New("speech: stream closed")

	// ErrSynthUnavailable is returned when no synthesizers are available.
	ErrSynthUnavailable = errors.New("speech: no synthesizers available")

	// ErrAllSynthsFailed is returned when all synthesizers in a chain fail.
	ErrAllSynthsFailed = errors.New("speech: all synthesizers failed")
)

// APIError represents an error response from a synthesis API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API.
	Message string

	// Code is the error code from the API (if provided).
	Code string

	// Backend identifies which synthesis backend returned the error.
	Backend string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("speech [%s]: API error %d (%s): %s", e.Backend, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("speech [%s]: API error %d: %s", e.Backend, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401
}

// IsForbidden returns true if this is a permission error (HTTP 403).
func (e *APIError) IsForbidden() bool {
	return e.StatusCode == 403
}

// IsNotFound returns true if the resource was not found (HTTP 404).
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// BackendError wraps an error with synthesis backend context.
type BackendError struct {
	Backend string
	Err     error
}

// Error implements the error interface.
func (e *BackendError) Error() string {
	return fmt.Sprintf("speech [%s]: %v", e.Backend, e.Err)
}

// Unwrap returns the underlying error.
func (e *BackendError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with backend context.
func WrapError(backend string, err error) error {
	if err == nil {
		return nil
	}
	return &BackendError{Backend: backend, Err: err}
}
