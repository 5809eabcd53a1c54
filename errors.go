package bandel

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind tags a RequestError with its place in the failure taxonomy.
// Callers switch on the kind instead of inspecting error strings.
type ErrorKind string

const (
	// KindTimeout means the per-attempt deadline elapsed with no external
	// cancellation involved.
	KindTimeout ErrorKind = "Timeout"
	// KindTransport means a network level failure before any HTTP response
	// was received. StatusCode is always 0 for this kind.
	KindTransport ErrorKind = "Transport"
	// KindHTTP means a response was received with a non-2xx status.
	KindHTTP ErrorKind = "HTTP"
	// KindParse means a 2xx response carried a body that could not be
	// decoded into the declared payload shape.
	KindParse ErrorKind = "ParseFailure"
	// KindRateLimited means the client side token bucket denied the request.
	KindRateLimited ErrorKind = "RateLimit"
	// KindCircuitOpen means the circuit breaker refused the request.
	KindCircuitOpen ErrorKind = "CircuitOpen"
	// KindValidation means the client configuration or an input (such as a
	// pagination cursor) failed validation before reaching the network.
	KindValidation ErrorKind = "Validation"
)

// Sentinel errors for common failure scenarios.
var (
	// ErrCircuitOpen is returned when the circuit breaker is in open state.
	ErrCircuitOpen = errors.New("bandel: circuit open")

	// ErrRateLimited is returned when a request is denied by the local rate limiter.
	ErrRateLimited = errors.New("bandel: rate limited")

	// ErrCursorTooLong is returned for pagination cursors over the length ceiling.
	ErrCursorTooLong = errors.New("bandel: cursor too long")

	// ErrCursorInvalidChars is returned for pagination cursors containing
	// characters outside the base64url alphabet.
	ErrCursorInvalidChars = errors.New("bandel: cursor has invalid characters")
)

// RequestError is the normalized error produced regardless of which legacy or
// structured error format the backend returned. StatusCode is 0 exactly when
// the failure occurred before any HTTP response was received.
//
// A caller's own context cancellation is never represented as a RequestError;
// it propagates verbatim so "was this intentional" checks keep working.
type RequestError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string

	// RawData holds the parsed error body, if any. For 429 responses with a
	// parseable Retry-After header a "retry_after" field is merged in.
	RawData any

	// Problem is set when the body conformed to the RFC 7807 problem
	// details shape.
	Problem *ProblemDetails

	// Timeout carries the configured deadline for KindTimeout errors.
	Timeout time.Duration

	Cause      error
	RequestID  string
	Method     string
	URL        string
	Attempt    int
	MaxRetries int
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Cause != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Cause)
	}
	if e.RequestID != "" {
		msg = fmt.Sprintf("[%s] %s", e.RequestID, msg)
	}
	if e.Attempt > 0 {
		msg = fmt.Sprintf("%s (attempt %d/%d)", msg, e.Attempt, e.MaxRetries)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *RequestError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is compares error kinds for errors.Is.
func (e *RequestError) Is(target error) bool {
	if e == nil {
		return false
	}
	if targetErr, ok := target.(*RequestError); ok {
		return e.Kind == targetErr.Kind
	}
	return false
}

// ShouldRetryStatus reports whether a status code is eligible for retry.
// Status 0 (no response received) and the whole 5xx range are retryable,
// everything in 4xx is terminal.
func ShouldRetryStatus(status int) bool {
	return status == 0 || (status >= 500 && status <= 599)
}

// IsRetryable reports whether an error represents a failure that might
// succeed on retry. Caller cancellation is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		switch reqErr.Kind {
		case KindTimeout, KindTransport:
			return true
		case KindHTTP:
			return ShouldRetryStatus(reqErr.StatusCode)
		default:
			return false
		}
	}

	return false
}
