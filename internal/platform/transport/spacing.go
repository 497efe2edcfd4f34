package transport

import (
	"net/http"

	"golang.org/x/time/rate"
)

// SpacingTransport waits for the limiter before every request attempt.
type SpacingTransport struct {
	Limiter *rate.Limiter
	Base    http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (transport *SpacingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	if transport.Limiter != nil {
		if waitError := transport.Limiter.Wait(request.Context()); waitError != nil {
			return nil, waitError
		}
	}
	base := transport.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(request)
}
