package bandel

import (
	"net/http"
	"sync"
	"time"
)

// RateLimitSnapshot is the last known server side quota state derived from
// response headers. A snapshot exists only when all three required headers
// parsed as integers; it is never partially populated.
type RateLimitSnapshot struct {
	Limit     int
	Remaining int
	ResetAt   int
	// RetryAfter is set when the response also carried a parseable
	// Retry-After header.
	RetryAfter *int
}

// ExtractRateLimit reads X-RateLimit-Limit, X-RateLimit-Remaining and
// X-RateLimit-Reset from a response header. All three must parse as integers
// or nothing is returned; partial data is discarded, not partially applied.
// Retry-After is picked up opportunistically when present.
func ExtractRateLimit(header http.Header) (RateLimitSnapshot, bool) {
	limit, ok := parseIntHeader(header, "X-RateLimit-Limit")
	if !ok {
		return RateLimitSnapshot{}, false
	}
	remaining, ok := parseIntHeader(header, "X-RateLimit-Remaining")
	if !ok {
		return RateLimitSnapshot{}, false
	}
	resetAt, ok := parseIntHeader(header, "X-RateLimit-Reset")
	if !ok {
		return RateLimitSnapshot{}, false
	}

	snapshot := RateLimitSnapshot{
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if retryAfter, ok := parseIntHeader(header, "Retry-After"); ok {
		snapshot.RetryAfter = &retryAfter
	}
	return snapshot, true
}

// rateLimitState holds the latest published snapshot for one client instance.
// Last valid response wins; there is no per-key partitioning.
type rateLimitState struct {
	mu   sync.RWMutex
	last *RateLimitSnapshot
}

func (s *rateLimitState) publish(snapshot RateLimitSnapshot) {
	s.mu.Lock()
	s.last = &snapshot
	s.mu.Unlock()
}

func (s *rateLimitState) snapshot() (RateLimitSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return RateLimitSnapshot{}, false
	}
	return *s.last, true
}

func (s *rateLimitState) reset() {
	s.mu.Lock()
	s.last = nil
	s.mu.Unlock()
}

// RateLimit returns the latest rate limit snapshot published from response
// headers, if any response carried a complete set of headers yet.
func (c *Client) RateLimit() (RateLimitSnapshot, bool) {
	return c.rateLimit.snapshot()
}

// ResetRateLimit clears the published snapshot. Intended for test isolation.
func (c *Client) ResetRateLimit() {
	c.rateLimit.reset()
}

// observeRateLimit runs on every response, success or failure, independently
// of interpretation.
func (c *Client) observeRateLimit(header http.Header) {
	snapshot, ok := ExtractRateLimit(header)
	if !ok {
		return
	}
	c.rateLimit.publish(snapshot)
	if c.metrics != nil {
		c.metrics.RecordRateLimitSnapshot(snapshot)
	}
}

// RateLimiter is a local token bucket applied before a request is attempted.
// It protects the backend from bursts regardless of what the server side
// quota headers report.
type RateLimiter struct {
	mu         sync.Mutex
	tokens     int
	maxTokens  int
	refillRate time.Duration
	lastRefill time.Time
}

// NewRateLimiter creates a token bucket holding maxTokens, refilling one
// token every refillRate.
func NewRateLimiter(maxTokens int, refillRate time.Duration) *RateLimiter {
	return &RateLimiter{
		maxTokens:  maxTokens,
		tokens:     maxTokens,
		refillRate: refillRate,
		lastRefill: time.Now(),
	}
}

// Allow consumes a token if one is available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	refill := int(now.Sub(rl.lastRefill) / rl.refillRate)
	if refill > 0 {
		rl.tokens += refill
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = now
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens reports the currently available tokens.
func (rl *RateLimiter) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}
