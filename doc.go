// Package bandel is the resilience layer underneath an HTTP client: it decides
// whether, when and how a request actually reaches the network, independent of
// which endpoint is being called. It provides:
//
//   - Per‑attempt timeout guarding merged with caller cancellation
//   - Retries with exponential backoff and a fixed attempt budget
//   - Request de‑duplication (merges concurrent identical in‑flight reads)
//   - Response interpretation: RFC 7807 problem details and legacy error
//     bodies normalized into one error shape, rate‑limit header accounting
//   - Pagination cursor validation
//   - Optional token bucket rate limiting and circuit breaking
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area – functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - Cancellation is never reinterpreted: a caller's own cancellation
//     surfaces verbatim while an elapsed deadline surfaces as a Timeout error
//   - Extensibility via user supplied middleware, observers and loggers
//
// Typical usage:
//
//	client := bandel.New(
//	    bandel.WithBaseURL("https://api.example.com"),
//	    bandel.WithMaxRetries(3),
//	    bandel.WithBaseDelay(time.Second),
//	    bandel.WithDeduplication(),
//	)
//	var page ItemPage
//	err := client.GetJSON(ctx, "/items", &page)
//
// Mutating requests traverse the same retry, timeout and interpretation chain
// but are never de‑duplicated. Callers that pass a cancellable context keep
// full ownership of their request lifetime and bypass de‑duplication too.
package bandel
