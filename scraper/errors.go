package scraper

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrElementNotFound is returned when the page is missing markup the parser expects.
var ErrElementNotFound = errors.New("element not found")

// AuthenticationError is returned by Login when the portal does not redirect after the
// credentials are posted. It keeps the raw response for inspection.
type AuthenticationError struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("login failed: unexpected status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// StatusError reports a non-success response from a portal request.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s failed with status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}
