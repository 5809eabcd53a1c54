package bandel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

// AttemptObserver receives exactly one record per attempt made, retried ones
// included, in attempt order. Status is 0 when no response was received.
type AttemptObserver interface {
	ObserveAttempt(method, url string, status int, elapsed time.Duration)
}

// AttemptObserverFunc adapts a function to the AttemptObserver interface.
type AttemptObserverFunc func(method, url string, status int, elapsed time.Duration)

// ObserveAttempt implements AttemptObserver.
func (f AttemptObserverFunc) ObserveAttempt(method, url string, status int, elapsed time.Duration) {
	f(method, url, status, elapsed)
}

// doWithRetry performs the request through the timeout guard with an explicit
// retry loop and a decrementing budget. Retryable outcomes are transport
// failures, timeouts and 5xx responses; 4xx responses and caller cancellation
// surface immediately. The backoff wait before attempt n+1 is
// baseDelay * multiplier^n, a real wait that still honors cancellation.
func (c *Client) doWithRetry(req *http.Request, timeout time.Duration, requestID string) (*http.Response, error) {
	endpoint := getEndpointFromRequest(req)

	for attempt := 0; ; attempt++ {
		if c.rateLimiter != nil && !c.rateLimiter.Allow() {
			if c.debug != nil && c.debug.Enabled && c.debug.LogRateLimit && c.logger != nil {
				c.logger.Warn("Rate limit exceeded", "requestID", requestID, "endpoint", endpoint)
			}
			if c.metrics != nil {
				c.metrics.RecordError(string(KindRateLimited), req.Method, endpoint)
			}
			return nil, c.newRequestError(KindRateLimited, "rate limit exceeded", ErrRateLimited, requestID, req, attempt)
		}
		if c.rateLimiter != nil && c.metrics != nil {
			c.metrics.RecordRateLimiterTokens(c.rateLimiter.Tokens())
		}

		if c.breaker != nil && !c.breaker.Allow() {
			if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
				c.logger.Warn("Circuit breaker open", "requestID", requestID, "endpoint", endpoint)
			}
			if c.metrics != nil {
				c.metrics.RecordError(string(KindCircuitOpen), req.Method, endpoint)
			}
			return nil, c.newRequestError(KindCircuitOpen, "circuit breaker is open", ErrCircuitOpen, requestID, req, attempt)
		}

		if attempt > 0 {
			if err := rewindBody(req); err != nil {
				return nil, c.newRequestError(KindTransport, "failed to rewind request body for retry", err, requestID, req, attempt)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
				c.logger.Info("Retry attempt", "requestID", requestID, "attempt", attempt, "maxRetries", c.maxRetries, "endpoint", endpoint)
			}
			if c.metrics != nil {
				c.metrics.RecordRetry(req.Method, endpoint, attempt)
			}
		}

		start := time.Now()
		resp, err := c.guardAttempt(req, timeout)
		elapsed := time.Since(start)

		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		c.emitAttempt(req.Method, req.URL.String(), status, elapsed)

		if c.breaker != nil {
			if err != nil || status >= 500 {
				c.breaker.RecordFailure()
			} else {
				c.breaker.RecordSuccess()
			}
			if c.metrics != nil {
				c.metrics.RecordCircuitBreakerState(c.breaker.State())
			}
		}

		// A caller initiated cancellation is not a RequestError; it belongs
		// to the caller and is never retried or rewrapped.
		if err != nil {
			var reqErr *RequestError
			if !errors.As(err, &reqErr) {
				return nil, err
			}
		}

		retryable := false
		if err != nil {
			retryable = IsRetryable(err)
		} else {
			retryable = ShouldRetryStatus(status)
		}

		if !retryable || attempt >= c.maxRetries {
			if err != nil {
				return nil, c.annotate(err, requestID, req, attempt)
			}
			return resp, nil
		}

		// The failed response will never reach the caller.
		discardBody(resp)

		delay := c.backoff.Delay(attempt, c.baseDelay, c.maxBackoff, c.backoffMultiplier, c.jitter)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", requestID, "attempt", attempt+1, "backoff", delay, "endpoint", endpoint)
		}
		if waitErr := sleepContext(req.Context(), delay); waitErr != nil {
			return nil, waitErr
		}
	}
}

func (c *Client) emitAttempt(method, url string, status int, elapsed time.Duration) {
	if c.observer != nil {
		c.observer.ObserveAttempt(method, url, status, elapsed)
	}
	if c.metrics != nil {
		c.metrics.RecordAttempt(method, url, status, elapsed)
	}
}

// sleepContext waits d without blocking other operations, returning early
// with the caller's own cancellation if it fires first.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return context.Cause(ctx)
	}
}

// rewindBody restores a fresh request body before a retry.
func rewindBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func discardBody(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()
}

func (c *Client) newRequestError(kind ErrorKind, message string, cause error, requestID string, req *http.Request, attempt int) *RequestError {
	return &RequestError{
		Kind:       kind,
		Message:    message,
		Cause:      cause,
		RequestID:  requestID,
		Method:     req.Method,
		URL:        req.URL.String(),
		Attempt:    attempt,
		MaxRetries: c.maxRetries,
	}
}

// annotate fills request scoped diagnostic context into a RequestError
// produced further down the chain.
func (c *Client) annotate(err error, requestID string, req *http.Request, attempt int) error {
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		return err
	}
	reqErr.RequestID = requestID
	reqErr.Method = req.Method
	reqErr.URL = req.URL.String()
	reqErr.Attempt = attempt
	reqErr.MaxRetries = c.maxRetries
	return reqErr
}
