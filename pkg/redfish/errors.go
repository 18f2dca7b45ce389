package redfish

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError represents an HTTP-level failure with status code context.
type HTTPError struct {
	StatusCode int
	Status     string
	Operation  string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Operation, e.StatusCode, e.Status)
}

// NewHTTPError creates a new HTTPError.
func NewHTTPError(statusCode int, status, operation string) *HTTPError {
	return &HTTPError{StatusCode: statusCode, Status: status, Operation: operation}
}

// IsAuthError reports whether err is an HTTP 401 from the BMC.
func IsAuthError(err error) bool {
	var e *HTTPError
	return errors.As(err, &e) && e.StatusCode == http.StatusUnauthorized
}

// IsRejected reports whether the BMC refused a settings change: a 4xx other
// than authentication problems. Testers feeding deliberately invalid values
// expect this.
func IsRejected(err error) bool {
	var e *HTTPError
	if !errors.As(err, &e) {
		return false
	}
	return e.StatusCode >= 400 && e.StatusCode < 500 &&
		e.StatusCode != http.StatusUnauthorized && e.StatusCode != http.StatusForbidden
}
