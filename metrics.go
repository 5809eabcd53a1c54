package bandel

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the request lifecycle and
// reliability layers. It is safe for concurrent use and doubles as the
// shipped AttemptObserver implementation: every attempt made, retried ones
// included, produces exactly one attempt observation.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	attemptsTotal   *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec

	retriesTotal *prometheus.CounterVec

	deduplicationHits *prometheus.CounterVec

	circuitBreakerState prometheus.Gauge
	rateLimiterTokens   prometheus.Gauge

	rateLimitLimit     prometheus.Gauge
	rateLimitRemaining prometheus.Gauge
	rateLimitReset     prometheus.Gauge

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, for isolated registries in tests or multi-client processes.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandel_requests_total",
				Help: "Total number of logical requests made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bandel_request_duration_seconds",
				Help:    "Duration of logical requests in seconds, retries included",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bandel_requests_in_flight",
				Help: "Number of logical requests currently in flight",
			},
			[]string{"method", "endpoint"},
		),
		attemptsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandel_attempts_total",
				Help: "Total number of transport attempts, one per attempt made",
			},
			[]string{"method", "status_code", "endpoint"},
		),
		attemptDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bandel_attempt_duration_seconds",
				Help:    "Duration of individual transport attempts in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "status_code", "endpoint"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandel_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"method", "endpoint", "attempt"},
		),
		deduplicationHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandel_deduplication_hits_total",
				Help: "Total number of requests served by an already in-flight attempt",
			},
			[]string{"method", "endpoint"},
		),
		circuitBreakerState: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "bandel_circuit_breaker_state",
				Help: "Current circuit breaker state (0=closed, 1=open, 2=half-open)",
			},
		),
		rateLimiterTokens: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "bandel_rate_limiter_tokens",
				Help: "Currently available local rate limiter tokens",
			},
		),
		rateLimitLimit: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "bandel_server_rate_limit",
				Help: "Server reported request quota from the last complete header set",
			},
		),
		rateLimitRemaining: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "bandel_server_rate_limit_remaining",
				Help: "Server reported remaining quota from the last complete header set",
			},
		),
		rateLimitReset: promauto.With(registry).NewGauge(
			prometheus.GaugeOpts{
				Name: "bandel_server_rate_limit_reset",
				Help: "Server reported quota reset time from the last complete header set",
			},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "bandel_errors_total",
				Help: "Total number of errors encountered by kind",
			},
			[]string{"kind", "method", "endpoint"},
		),
	}
}

// ObserveAttempt implements AttemptObserver.
func (mc *MetricsCollector) ObserveAttempt(method, url string, status int, elapsed time.Duration) {
	mc.RecordAttempt(method, url, status, elapsed)
}

// RecordAttempt records one transport attempt outcome.
func (mc *MetricsCollector) RecordAttempt(method, url string, status int, elapsed time.Duration) {
	if mc == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	endpoint := endpointLabel(url)
	mc.attemptsTotal.WithLabelValues(method, statusStr, endpoint).Inc()
	mc.attemptDuration.WithLabelValues(method, statusStr, endpoint).Observe(elapsed.Seconds())
}

// RecordRequest records the final outcome of a logical request.
func (mc *MetricsCollector) RecordRequest(method, endpoint string, status int, duration time.Duration) {
	if mc == nil {
		return
	}
	statusStr := strconv.Itoa(status)
	mc.requestsTotal.WithLabelValues(method, statusStr, endpoint).Inc()
	mc.requestDuration.WithLabelValues(method, statusStr, endpoint).Observe(duration.Seconds())
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(method, endpoint).Dec()
}

// RecordRetry increments the retry counter for an attempt.
func (mc *MetricsCollector) RecordRetry(method, endpoint string, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(method, endpoint, strconv.Itoa(attempt)).Inc()
}

// RecordDeduplicationHit increments the de-dup hit counter.
func (mc *MetricsCollector) RecordDeduplicationHit(method, endpoint string) {
	if mc == nil {
		return
	}
	mc.deduplicationHits.WithLabelValues(method, endpoint).Inc()
}

// RecordCircuitBreakerState sets the gauge to the breaker state.
func (mc *MetricsCollector) RecordCircuitBreakerState(state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.Set(float64(state))
}

// RecordRateLimiterTokens sets the available token gauge.
func (mc *MetricsCollector) RecordRateLimiterTokens(tokens int) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.Set(float64(tokens))
}

// RecordRateLimitSnapshot publishes the server reported quota gauges.
func (mc *MetricsCollector) RecordRateLimitSnapshot(snapshot RateLimitSnapshot) {
	if mc == nil {
		return
	}
	mc.rateLimitLimit.Set(float64(snapshot.Limit))
	mc.rateLimitRemaining.Set(float64(snapshot.Remaining))
	mc.rateLimitReset.Set(float64(snapshot.ResetAt))
}

// RecordError increments the error counter by kind.
func (mc *MetricsCollector) RecordError(kind, method, endpoint string) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(kind, method, endpoint).Inc()
}

// endpointLabel strips the query string so cursors and filters do not explode
// label cardinality.
func endpointLabel(url string) string {
	if idx := strings.IndexByte(url, '?'); idx != -1 {
		return url[:idx]
	}
	return url
}
