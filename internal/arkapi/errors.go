// Package arkapi is a small typed client for the target's REST API. It
// decodes the {success, data, error} envelope and retries transient
// failures with exponential backoff.
package arkapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, arkapi.ErrConflict) to check.
var (
	ErrBadRequest   = errors.New("arkapi: bad request")
	ErrUnauthorized = errors.New("arkapi: unauthorized")
	ErrForbidden    = errors.New("arkapi: forbidden")
	ErrNotFound     = errors.New("arkapi: not found")
	ErrConflict     = errors.New("arkapi: conflict")
	ErrThrottled    = errors.New("arkapi: throttled")
	ErrServerError  = errors.New("arkapi: server error")

	// ErrEnvelope means a response could not be decoded as an envelope or
	// reported success=false with a 2xx status.
	ErrEnvelope = errors.New("arkapi: bad envelope")
)

// APIError wraps a sentinel error with the HTTP status and the envelope's
// error code and message.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("arkapi: HTTP %d %s: %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("arkapi: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for codes without a dedicated sentinel.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
