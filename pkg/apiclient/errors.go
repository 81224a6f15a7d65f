package apiclient

import (
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from the ops server.
type APIError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsUnavailable returns true for 503, which probes use to report "not yet".
func (e *APIError) IsUnavailable() bool {
	return e.StatusCode == http.StatusServiceUnavailable
}

// IsNotFound returns true if the endpoint does not exist, usually because
// the address points at something other than a pgstate ops server.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}
