package httputil

import (
	"net/http"
	"time"
)

// DefaultTimeout bounds a single upstream request.
const DefaultTimeout = 10 * time.Second

// NewClient returns an HTTP client with the given timeout, or DefaultTimeout if zero.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
