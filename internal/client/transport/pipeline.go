// Package transport is the request pipeline every outgoing API call passes
// through. Middlewares wrap an http.RoundTripper; the pipeline is assembled
// once at construction instead of patching a global client.
package transport

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNoToken is returned by RequireAuth when no session token exists.
	ErrNoToken = errors.New("no access token")
	// ErrSessionExpired is returned when the backend rejected the session.
	ErrSessionExpired = errors.New("session expired")
)

// Middleware decorates a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Chain wraps base so that mws[0] sees the request first.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			rt = mws[i](rt)
		}
	}
	return rt
}

// NewClient builds a client over the pipeline. Redirects are not followed so
// that a redirect to the login page reaches SessionExpiry as a 3xx response.
func NewClient(timeout time.Duration, base http.RoundTripper, mws ...Middleware) *http.Client {
	return &http.Client{
		Transport: Chain(base, mws...),
		Timeout:   timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Authorizer supplies the Authorization header value.
type Authorizer interface {
	AuthorizationHeader() (string, bool)
}

// isAPIRequest mirrors which calls the page-level interceptor decorated.
func isAPIRequest(r *http.Request) bool {
	return strings.Contains(r.URL.Path, "/api/") || strings.Contains(r.URL.Path, "/dashboard")
}

// PassiveAuth attaches the Authorization header to API requests when a token
// exists. Without a token the request goes out unauthenticated.
func PassiveAuth(auth Authorizer) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if !isAPIRequest(r) {
				return next.RoundTrip(r)
			}
			header, ok := auth.AuthorizationHeader()
			if !ok {
				return next.RoundTrip(r)
			}
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", header)
			return next.RoundTrip(r)
		})
	}
}

// RequireAuth refuses to send a request without a token. Caller headers are
// kept; Authorization is always recomputed from the current session.
func RequireAuth(auth Authorizer) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			header, ok := auth.AuthorizationHeader()
			if !ok {
				if r.Body != nil {
					r.Body.Close()
				}
				return nil, ErrNoToken
			}
			r = r.Clone(r.Context())
			r.Header.Set("Authorization", header)
			return next.RoundTrip(r)
		})
	}
}
