package bandel

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// timeoutCause marks an attempt deadline firing so it can be told apart from
// the caller's own cancellation. Both abort paths surface as the same generic
// context error at the transport level, so classification must check which
// constituent fired rather than guess from the error alone.
type timeoutCause struct {
	limit time.Duration
}

func (tc *timeoutCause) Error() string {
	return fmt.Sprintf("attempt deadline elapsed after %v", tc.limit)
}

// MergeCancel combines any number of cancellation signals into one derived
// context. The derived context is cancelled as soon as any parent is
// cancelled and carries the cause of whichever parent fired first. Additional
// parents firing later are a no-op, the transition is one way.
//
// Merging zero parents yields a context that never fires on its own. A parent
// that is already cancelled at call time produces a synchronously cancelled
// child, with no window where a later timer could fire first. When two
// parents fire in the same instant the recorded cause is whichever the
// derived context observed first; the tie-break is implementation defined.
//
// The returned CancelFunc must be called to release the watcher goroutines.
func MergeCancel(parents ...context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancelCause(context.Background())
	release := func() { cancel(context.Canceled) }

	for _, parent := range parents {
		if parent.Err() != nil {
			cancel(context.Cause(parent))
			return merged, release
		}
	}

	for _, parent := range parents {
		done := parent.Done()
		if done == nil {
			continue
		}
		go func(parent context.Context, done <-chan struct{}) {
			select {
			case <-done:
				cancel(context.Cause(parent))
			case <-merged.Done():
			}
		}(parent, done)
	}

	return merged, release
}

// guardAttempt issues one transport call under the effective deadline. The
// caller's context and an internally owned deadline timer are merged into one
// cancellation source; the timer is released unconditionally on every path.
//
// A deadline firing yields a KindTimeout RequestError carrying the configured
// duration. A caller cancellation firing propagates the caller's own error
// verbatim, never reinterpreted as a timeout.
func (c *Client) guardAttempt(req *http.Request, timeout time.Duration) (*http.Response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	fired := &timeoutCause{limit: timeout}
	ctx, cancel := context.WithTimeoutCause(req.Context(), timeout, fired)
	defer cancel()

	resp, err := c.executeMiddleware(req.WithContext(ctx))
	if err == nil {
		// Drain the body while the deadline still applies; once the timer is
		// released the attempt context must no longer be needed.
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr == nil {
			resp.Body = io.NopCloser(bytes.NewReader(body))
			return resp, nil
		}
		err = readErr
	}

	if ctx.Err() != nil {
		if cause, ok := context.Cause(ctx).(*timeoutCause); ok && cause == fired {
			return nil, &RequestError{
				Kind:    KindTimeout,
				Message: fmt.Sprintf("request timed out after %v", timeout),
				Timeout: timeout,
				Cause:   err,
				Method:  req.Method,
				URL:     req.URL.String(),
			}
		}
		if req.Context().Err() != nil {
			// Caller initiated: surface the same cancellation the caller issued.
			return nil, context.Cause(req.Context())
		}
	}

	return nil, &RequestError{
		Kind:    KindTransport,
		Message: "network request failed",
		Cause:   err,
		Method:  req.Method,
		URL:     req.URL.String(),
	}
}
