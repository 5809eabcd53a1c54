package bandel

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/bandel/internal/backoff"
)

// Default configuration consumed by New. Callers override through options.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// Client is the resilience layer every outbound call passes through: timeout
// guarding, retries with exponential backoff, request de-duplication,
// response interpretation and rate limit accounting, layered around the
// standard net/http Client. It is safe for concurrent use, and all shared
// state (the in-flight registry, the rate limit snapshot) is per instance so
// independent clients never cross-talk.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	timeout           time.Duration
	maxRetries        int
	baseDelay         time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	jitter            float64
	backoff           backoff.Strategy
	breaker           *CircuitBreaker
	rateLimiter       *RateLimiter
	middleware        []Middleware
	metrics           *MetricsCollector
	observer          AttemptObserver
	debug             *DebugConfig
	logger            Logger
	inflight          *InflightRegistry
	dedupCondition    DeduplicationCondition
	rateLimit         rateLimitState
	validationError   error
}

// New constructs a Client using the provided functional options. A best
// effort validation is performed; call IsValid / ValidationError for errors.
func New(options ...Option) *Client {
	client := &Client{
		// Deadlines are owned by the timeout guard, so the underlying
		// http.Client must not carry its own.
		httpClient:        &http.Client{},
		timeout:           DefaultTimeout,
		maxRetries:        DefaultMaxRetries,
		baseDelay:         DefaultBaseDelay,
		maxBackoff:        DefaultMaxBackoff,
		backoffMultiplier: 2.0,
		jitter:            0,
		debug:             DefaultDebugConfig(),
		dedupCondition:    DefaultDeduplicationCondition,
	}

	for _, option := range options {
		option(client)
	}

	if client.backoff == nil {
		if client.jitter > 0 {
			client.backoff = backoff.ExponentialJitter{}
		} else {
			client.backoff = backoff.Exponential{}
		}
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Get performs an HTTP GET with context.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.resolveURL(url), nil)
	if err != nil {
		return nil, err
	}
	return c.Do(req)
}

// Post performs an HTTP POST with the given content type.
func (c *Client) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.resolveURL(url), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return c.Do(req)
}

// Do executes a prepared *http.Request applying all reliability layers.
//
// Idempotent reads carrying no caller cancellation signal are de-duplicated:
// concurrent callers of the same method+URL share one underlying attempt.
// Requests with a cancellable context bypass de-duplication, because sharing
// one cancellable operation across callers with different lifetimes would let
// one caller's cancellation abort the others.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}

	start := time.Now()
	endpoint := getEndpointFromRequest(req)

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}
	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "method", req.Method, "url", req.URL.String())
	}

	if c.metrics != nil {
		c.metrics.RecordRequestStart(req.Method, endpoint)
	}

	timeout := time.Duration(0)
	if override, ok := requestTimeout(req.Context()); ok {
		timeout = override
	}

	key, keyed := RequestKey(req)
	dedupEnabled := c.inflight != nil && keyed && c.dedupCondition(req) && req.Context().Done() == nil

	var resp *http.Response
	var err error
	if dedupEnabled {
		entry, owner := c.inflight.GetOrCreate(key)
		if !owner {
			resp, err = entry.Wait(req.Context())
			if c.metrics != nil {
				c.metrics.RecordDeduplicationHit(req.Method, endpoint)
			}
			if c.debug != nil && c.debug.Enabled && c.debug.LogDedup && c.logger != nil {
				c.logger.Debug("Deduplication hit", "requestID", requestID, "key", key)
			}
			c.finishRequest(req.Method, endpoint, resp, start)
			return resp, err
		}

		resp, err = c.doWithRetry(req, timeout, requestID)

		// Settle and remove the registry entry on every path, success,
		// failure or cancellation alike.
		status := 0
		var header http.Header
		var body []byte
		if resp != nil {
			status = resp.StatusCode
			header = resp.Header.Clone()
			body = bufferResponse(resp)
		}
		c.inflight.Complete(key, status, header, body, err)
	} else {
		resp, err = c.doWithRetry(req, timeout, requestID)
	}

	c.finishRequest(req.Method, endpoint, resp, start)
	return resp, err
}

func (c *Client) finishRequest(method, endpoint string, resp *http.Response, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordRequestEnd(method, endpoint)
	status := 0
	if resp != nil {
		status = resp.StatusCode
	}
	c.metrics.RecordRequest(method, endpoint, status, time.Since(start))
}

// GetJSON performs a GET and decodes the 2xx payload into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.DoJSON(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs a POST with a JSON encoded body and decodes the 2xx
// payload into out. Pass a nil out to discard the payload.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.DoJSON(ctx, http.MethodPost, path, in, out)
}

// GetPageJSON performs a paginated GET, validating the continuation cursor
// before it is forwarded as a query parameter. An empty cursor requests the
// first page.
func (c *Client) GetPageJSON(ctx context.Context, path, cursor string, out any) error {
	withCursor, err := AppendCursor(path, cursor)
	if err != nil {
		return &RequestError{
			Kind:    KindValidation,
			Message: "invalid pagination cursor",
			Cause:   err,
		}
	}
	return c.GetJSON(ctx, withCursor, out)
}

// DoJSON executes a request with an optional JSON body and decodes the
// response through the interpreter: non-2xx statuses become a normalized
// RequestError, a 204 yields no payload, and an unparseable 2xx body is
// reported as a parse failure.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var bodyReader io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return &RequestError{
				Kind:    KindValidation,
				Message: "failed to encode request body",
				Cause:   err,
			}
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.resolveURL(path), bodyReader)
	if err != nil {
		return &RequestError{
			Kind:    KindValidation,
			Message: "failed to build request",
			Cause:   err,
		}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &RequestError{
			Kind:       KindTransport,
			Message:    "failed to read response body",
			Cause:      err,
			Method:     method,
			URL:        req.URL.String(),
			StatusCode: 0,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		reqErr := InterpretError(resp.StatusCode, resp.Header, body)
		reqErr.Method = method
		reqErr.URL = req.URL.String()
		return reqErr
	}

	return DecodePayload(resp.StatusCode, body, out)
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.roundTrip(req)
	}

	current := RoundTripperFunc(c.roundTrip)
	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

// roundTrip is the innermost transport call. Rate limit accounting runs on
// every received response, independent of status or later interpretation.
func (c *Client) roundTrip(req *http.Request) (*http.Response, error) {
	resp, err := c.httpClient.Do(req)
	if resp != nil {
		c.observeRateLimit(resp.Header)
	}
	return resp, err
}

func (c *Client) resolveURL(path string) string {
	if c.baseURL == "" || strings.Contains(path, "://") {
		return path
	}
	return strings.TrimSuffix(c.baseURL, "/") + "/" + strings.TrimPrefix(path, "/")
}

// ClearInflight drops all in-flight registry entries. Intended for test
// isolation.
func (c *Client) ClearInflight() {
	if c.inflight != nil {
		c.inflight.Clear()
	}
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

func getEndpointFromRequest(req *http.Request) string {
	if req.URL == nil {
		return "unknown"
	}

	host := req.URL.Host
	path := req.URL.Path

	var builder strings.Builder
	builder.WriteString(host)
	if path != "" && path != "/" {
		builder.WriteString(path)
	} else {
		builder.WriteByte('/')
	}
	return builder.String()
}
