package bandel

import (
	"context"
	"net/http"
	"time"
)

// Option configures a Client at construction time.
type Option func(*Client)

// Middleware wraps the transport call for cross-cutting concerns such as
// header injection, auth or tracing. The core treats header injection as a
// caller supplied concern; middleware is where it plugs in.
type Middleware func(req *http.Request, next RoundTripper) (*http.Response, error)

// RoundTripper is the HTTP transport interface middleware chains around.
type RoundTripper interface {
	RoundTrip(*http.Request) (*http.Response, error)
}

// RoundTripperFunc adapts a function to RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type contextKey string

const timeoutOverrideKey contextKey = "bandel_timeout_override"

// WithRequestTimeout returns a context carrying a per-request timeout
// override. A zero or negative override falls back to the client default.
func WithRequestTimeout(ctx context.Context, timeout time.Duration) context.Context {
	return context.WithValue(ctx, timeoutOverrideKey, timeout)
}

func requestTimeout(ctx context.Context) (time.Duration, bool) {
	timeout, ok := ctx.Value(timeoutOverrideKey).(time.Duration)
	return timeout, ok
}
