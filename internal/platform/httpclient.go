package platform

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds one request end to end. Silent Push raw scan
	// queries can take well over a minute on large windows.
	DefaultTimeout = 180 * time.Second

	defaultMaxIdleConns          = 20
	defaultIdleConnTimeout       = 90 * time.Second
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 60 * time.Second

	// errBodyLimit caps how much of an upstream error body is carried in
	// an Error message.
	errBodyLimit = 512
)

// NewHTTPClient creates the tuned HTTP client shared by the platform
// clients. A zero timeout selects DefaultTimeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          defaultMaxIdleConns,
			IdleConnTimeout:       defaultIdleConnTimeout,
			TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
			ResponseHeaderTimeout: defaultResponseHeaderTimeout,
		},
	}
}

// StatusError builds the Error for a non-2xx upstream response, carrying
// the status and a truncated body snippet for diagnostics.
func StatusError(p Name, op string, resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errBodyLimit))
	return NewError(p, op, fmt.Errorf("unexpected status %s: %s", resp.Status, string(body)))
}
