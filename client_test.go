package bandel

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestGetJSONDecodesPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":42,"name":"monthly report"}`))
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL))

	var out struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	}
	if err := client.GetJSON(context.Background(), "/reports/42", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ID != 42 || out.Name != "monthly report" {
		t.Errorf("decoded %+v", out)
	}
}

func TestPostJSONSendsEncodedBody(t *testing.T) {
	var received string
	var contentType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received = string(body)
		contentType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL))

	err := client.PostJSON(context.Background(), "/reports", map[string]string{"name": "q3"}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received != `{"name":"q3"}` {
		t.Errorf("server received %q", received)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
}

func TestDoJSONNormalizesErrorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"type":"about:blank","title":"Forbidden","status":403,"detail":"token expired"}`))
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL))

	err := client.GetJSON(context.Background(), "/reports", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.Kind != KindHTTP || reqErr.StatusCode != 403 {
		t.Errorf("Kind = %s, StatusCode = %d", reqErr.Kind, reqErr.StatusCode)
	}
	if reqErr.Message != "token expired" {
		t.Errorf("Message = %q, want problem detail", reqErr.Message)
	}
	if reqErr.Method != http.MethodGet || !strings.Contains(reqErr.URL, "/reports") {
		t.Errorf("request context missing: method=%q url=%q", reqErr.Method, reqErr.URL)
	}
}

func TestDoJSONParseFailureOnSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>surprise</html>"))
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL))

	var out map[string]any
	err := client.GetJSON(context.Background(), "/reports", &out)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.Kind != KindParse {
		t.Errorf("Kind = %s, want %s", reqErr.Kind, KindParse)
	}
	if reqErr.StatusCode != 200 {
		t.Errorf("StatusCode = %d, the success status must be kept", reqErr.StatusCode)
	}
}

func TestGetPageJSONRejectsCursorWithoutNetworkCall(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL))

	err := client.GetPageJSON(context.Background(), "/items", "<script>", nil)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("error = %v, want *RequestError", err)
	}
	if reqErr.Kind != KindValidation {
		t.Errorf("Kind = %s, want %s", reqErr.Kind, KindValidation)
	}
	if !errors.Is(err, ErrCursorInvalidChars) {
		t.Errorf("error chain should carry ErrCursorInvalidChars, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("an invalid cursor must be rejected before any network call")
	}
}

func TestGetPageJSONForwardsCursor(t *testing.T) {
	var query string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := New(WithBaseURL(server.URL))

	var out map[string]any
	if err := client.GetPageJSON(context.Background(), "/items", "abc123", &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if query != "cursor=abc123" {
		t.Errorf("query = %q, want cursor=abc123", query)
	}
}

func TestResolveURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		path    string
		want    string
	}{
		{name: "no base", baseURL: "", path: "/items", want: "/items"},
		{name: "joined", baseURL: "https://api.example.com", path: "/items", want: "https://api.example.com/items"},
		{name: "trailing slash", baseURL: "https://api.example.com/", path: "items", want: "https://api.example.com/items"},
		{name: "absolute wins", baseURL: "https://api.example.com", path: "https://other.example.com/x", want: "https://other.example.com/x"},
	}

	for _, test := range tests {
		client := New(WithBaseURL(test.baseURL))
		if got := client.resolveURL(test.path); got != test.want {
			t.Errorf("%s: resolveURL(%q) = %q, want %q", test.name, test.path, got, test.want)
		}
	}
}

func TestConfigurationValidation(t *testing.T) {
	client := New(WithMaxRetries(-1), WithBackoffMultiplier(-2))

	if client.IsValid() {
		t.Fatal("expected invalid configuration")
	}
	err := client.ValidationError()
	var reqErr *RequestError
	if !errors.As(err, &reqErr) || reqErr.Kind != KindValidation {
		t.Errorf("ValidationError = %v, want a KindValidation RequestError", err)
	}

	_, doErr := client.Get(context.Background(), "https://api.example.com/items")
	if !errors.Is(doErr, err) {
		t.Errorf("Do must surface the stored validation error, got %v", doErr)
	}
}

func TestMiddlewareOrderAndHeaderInjection(t *testing.T) {
	var auth string
	var order []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New(
		WithMiddleware(
			func(req *http.Request, next RoundTripper) (*http.Response, error) {
				order = append(order, "outer")
				return next.RoundTrip(req)
			},
			func(req *http.Request, next RoundTripper) (*http.Response, error) {
				order = append(order, "inner")
				req.Header.Set("Authorization", "Bearer token")
				return next.RoundTrip(req)
			},
		),
	)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if auth != "Bearer token" {
		t.Errorf("Authorization = %q", auth)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Errorf("middleware order = %v, want [outer inner]", order)
	}
}

func TestRateLimitSnapshotObservedFromResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.Header().Set("X-RateLimit-Reset", "1760000000")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := New()

	if _, ok := client.RateLimit(); ok {
		t.Error("fresh client should have no rate limit snapshot")
	}

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	snapshot, ok := client.RateLimit()
	if !ok {
		t.Fatal("expected a published snapshot after the response")
	}
	if snapshot.Remaining != 7 {
		t.Errorf("Remaining = %d, want 7", snapshot.Remaining)
	}

	client.ResetRateLimit()
	if _, ok := client.RateLimit(); ok {
		t.Error("ResetRateLimit must clear the snapshot")
	}
}

func TestGetEndpointFromRequest(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "https://api.example.com/items?cursor=abc", nil)
	if got := getEndpointFromRequest(req); got != "api.example.com/items" {
		t.Errorf("endpoint = %q, query strings must be stripped", got)
	}

	root, _ := http.NewRequest(http.MethodGet, "https://api.example.com", nil)
	if got := getEndpointFromRequest(root); got != "api.example.com/" {
		t.Errorf("endpoint = %q", got)
	}
}

func TestRequestTimeoutContextHelpers(t *testing.T) {
	if _, ok := requestTimeout(context.Background()); ok {
		t.Error("plain context must carry no override")
	}

	ctx := WithRequestTimeout(context.Background(), 5*time.Second)
	d, ok := requestTimeout(ctx)
	if !ok || d != 5*time.Second {
		t.Errorf("requestTimeout = (%v, %v), want (5s, true)", d, ok)
	}
}
