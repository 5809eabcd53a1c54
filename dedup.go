package bandel

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync"
)

// InflightEntry is one underlying attempt shared between concurrent callers
// of the same request key. The settled result is stored as buffered bytes so
// every waiter receives an independently readable response body.
type InflightEntry struct {
	done chan struct{}

	status int
	header http.Header
	body   []byte
	err    error
}

// InflightRegistry coalesces concurrent identical reads into one underlying
// attempt. At most one entry exists per key at any instant; entries are
// removed unconditionally when the underlying attempt settles, regardless of
// how many callers awaited them.
type InflightRegistry struct {
	mu      sync.Mutex
	entries map[string]*InflightEntry
}

// NewInflightRegistry returns an empty in-memory registry.
func NewInflightRegistry() *InflightRegistry {
	return &InflightRegistry{
		entries: make(map[string]*InflightEntry),
	}
}

// GetOrCreate returns the in-flight entry for key. The second result reports
// ownership: the first caller for a key becomes the owner and must settle the
// entry via Complete, later callers wait on the shared result. The check and
// insert happen under one lock, so two calls racing on the same key still
// start exactly one attempt.
func (r *InflightRegistry) GetOrCreate(key string) (*InflightEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[key]; exists {
		return entry, false
	}

	entry := &InflightEntry{done: make(chan struct{})}
	r.entries[key] = entry
	return entry, true
}

// Complete settles the entry for key and releases all waiters. The entry is
// removed from the registry on every settlement path, including failures and
// cancelled attempts.
func (r *InflightRegistry) Complete(key string, status int, header http.Header, body []byte, err error) {
	r.mu.Lock()
	entry, exists := r.entries[key]
	delete(r.entries, key)
	r.mu.Unlock()

	if !exists {
		return
	}

	entry.status = status
	entry.header = header
	entry.body = body
	entry.err = err
	close(entry.done)
}

// Clear drops all in-flight entries without settling them. Intended for test
// isolation only; waiters on dropped entries are not released.
func (r *InflightRegistry) Clear() {
	r.mu.Lock()
	r.entries = make(map[string]*InflightEntry)
	r.mu.Unlock()
}

// Len reports the number of in-flight entries.
func (r *InflightRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Wait blocks until the owning attempt settles or ctx is cancelled. Each
// waiter gets its own response with an independently readable body.
func (e *InflightEntry) Wait(ctx context.Context) (*http.Response, error) {
	select {
	case <-e.done:
		if e.err != nil {
			return nil, e.err
		}
		return e.response(), nil
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}

func (e *InflightEntry) response() *http.Response {
	return &http.Response{
		StatusCode: e.status,
		Status:     http.StatusText(e.status),
		Header:     e.header.Clone(),
		Body:       io.NopCloser(bytes.NewReader(e.body)),
	}
}

// RequestKey identifies identical in-flight requests by method and fully
// qualified URL. Only idempotent reads ever produce a key; mutation requests
// never enter the registry.
func RequestKey(req *http.Request) (string, bool) {
	if !isIdempotentRead(req.Method) {
		return "", false
	}
	return req.Method + " " + req.URL.String(), true
}

// DeduplicationCondition decides whether a request is eligible for
// de-duplication.
type DeduplicationCondition func(req *http.Request) bool

// DefaultDeduplicationCondition enables de-duplication for idempotent reads.
func DefaultDeduplicationCondition(req *http.Request) bool {
	return isIdempotentRead(req.Method)
}

func isIdempotentRead(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// bufferResponse drains and restores a response body so the bytes can be
// shared with waiters while the original caller keeps a readable response.
func bufferResponse(resp *http.Response) []byte {
	if resp == nil || resp.Body == nil {
		return nil
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(body))
	return body
}
