// Minimal example for bandel demonstrating a resilient JSON GET plus a
// client wired with deduplication, circuit breaking, metrics and cursor
// based pagination. See README for extended patterns.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/ambiyansyah-risyal/bandel"
)

const apiBase = "https://httpbin.org"

func main() {
	fmt.Printf("%s\n\n", bandel.GetVersion())

	// --- Basic client (batteries-included defaults) ---
	basic := bandel.New(
		bandel.WithBaseURL(apiBase),
		bandel.WithMaxRetries(3),
		bandel.WithBaseDelay(100*time.Millisecond),
		bandel.WithMaxBackoff(5*time.Second),
		bandel.WithTimeout(10*time.Second),
		bandel.WithSimpleLogger(),
	)
	if !basic.IsValid() {
		log.Fatalf("invalid basic client config: %v", basic.ValidationError())
	}

	ctx := context.Background()
	var payload map[string]any
	if err := basic.GetJSON(ctx, "/json", &payload); err != nil {
		log.Fatalf("basic GET failed: %v", err)
	}
	fmt.Println("basic GET decoded", len(payload), "fields")

	if snapshot, ok := basic.RateLimit(); ok {
		fmt.Printf("server quota: %d/%d remaining, resets at %d\n",
			snapshot.Remaining, snapshot.Limit, snapshot.ResetAt)
	}

	// --- Advanced snippet: dedup + circuit breaker + middleware + metrics ---
	advanced := bandel.New(
		bandel.WithBaseURL(apiBase),
		bandel.WithDeduplication(),
		bandel.WithMiddleware(func(req *http.Request, next bandel.RoundTripper) (*http.Response, error) {
			req.Header.Set("User-Agent", "bandel-example")
			start := time.Now()
			res, err := next.RoundTrip(req)
			fmt.Printf("request %s took %v\n", req.URL.Host, time.Since(start))
			return res, err
		}),
		bandel.WithMetrics(),
		bandel.WithCircuitBreaker(bandel.CircuitBreakerConfig{
			FailureThreshold: 3,
			RecoveryTimeout:  5 * time.Second,
			SuccessThreshold: 1,
		}),
		bandel.WithMaxRetries(2),
	)

	// A paginated read: the cursor is validated before it leaves the process.
	var page map[string]any
	if err := advanced.GetPageJSON(ctx, "/anything", "eyJvZmZzZXQiOjEwMH0=", &page); err != nil {
		log.Fatalf("paginated GET failed: %v", err)
	}
	fmt.Println("paginated GET ok")

	// A slow endpoint under a tighter per-request deadline.
	slowCtx := bandel.WithRequestTimeout(ctx, 2*time.Second)
	if _, err := advanced.Get(slowCtx, "/delay/5"); err != nil {
		fmt.Printf("slow GET (expected to time out): %v\n", err)
	}
}
