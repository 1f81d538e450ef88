package helper

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxBodySize caps how much of a device response is read into memory.
const MaxBodySize = 8 << 20

// NewHTTPClient returns a client whose transport records a span per request.
// A zero timeout leaves requests bounded only by their context.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   timeout,
	}
}

// IsSuccess reports whether an HTTP status code is in the 2xx class.
func IsSuccess(code int) bool {
	return code >= 200 && code < 300
}
