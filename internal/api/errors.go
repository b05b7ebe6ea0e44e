package api

import (
	"errors"
	"fmt"
	"net/http"
	"syscall"

	"github.com/PauloBoaventura/lightly/pkg/models"
)

// ErrInvalidValue is returned for requests the platform rejected as invalid
var ErrInvalidValue = models.ErrInvalidValue

// APIError represents an error returned by the API
type APIError struct {
	Message    string
	StatusCode int
	Code       string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %s", e.Message)
}

// Unwrap exposes ErrInvalidValue for statuses that mean the request itself was wrong
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return ErrInvalidValue
	}
	return nil
}

// IsConnectionRefused reports whether err was caused by a refused TCP connection
func IsConnectionRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

// IsNotFound reports whether err is an APIError with status 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}
