// Package api provides an HTTP client for the Lighthouse server with
// bounded retry, bearer authentication, and error classification.
package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for transport failures and HTTP status classification.
// Use errors.Is(err, api.ErrNotFound) to check.
var (
	ErrNetwork      = errors.New("api: network failure")
	ErrBadRequest   = errors.New("api: bad request")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrThrottled    = errors.New("api: throttled")
	ErrServerError  = errors.New("api: server error")
	ErrUnexpected   = errors.New("api: unexpected status")
)

// APIError wraps a sentinel error with the HTTP status code and the
// response body for debugging.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %s %s: HTTP %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps a non-2xx HTTP status code to a sentinel error.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return ErrUnexpected
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
