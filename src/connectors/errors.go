package connectors

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is an error payload surfaced by the exchange, carried alongside
// the HTTP status so callers can branch on the failure class instead of
// string-matching raw responses.
type APIError struct {
	Status  int    `json:"-"`
	Label   string `json:"label"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("exchange error %d %s: %s", e.Status, e.Label, e.Message)
	}
	return fmt.Sprintf("exchange error %d: %s", e.Status, e.Message)
}

// IsRateLimited reports whether err is an upstream 429.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests
}

// IsAuthError reports whether err is an upstream 401/403.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden
}

// IsValidationError reports whether err is an upstream 400.
func IsValidationError(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadRequest
}
