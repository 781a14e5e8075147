// Package observability exposes the process-wide Prometheus metrics for the
// chat relay. Metrics are registered lazily on first use so that tests can
// exercise relay packages without wiring a registry.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type relayMetrics struct {
	chatRequests     *prometheus.CounterVec
	rateLimited      prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
	cacheEntries     prometheus.Gauge
	upstreamAttempts *prometheus.CounterVec
	upstreamDuration prometheus.Histogram
	activeSessions   prometheus.Gauge
	chatLogWrites    *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	metricsInst *relayMetrics
	registry    *prometheus.Registry
)

func getMetrics() *relayMetrics {
	metricsOnce.Do(func() {
		m := &relayMetrics{
			chatRequests: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hearth_chat_requests_total",
					Help: "Chat relay requests by terminal outcome.",
				},
				[]string{"outcome"},
			),
			rateLimited: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "hearth_rate_limited_total",
					Help: "Requests rejected by sliding-window admission control.",
				},
			),
			cacheHits: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "hearth_response_cache_hits_total",
					Help: "Response cache lookups that short-circuited the upstream call.",
				},
			),
			cacheMisses: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "hearth_response_cache_misses_total",
					Help: "Response cache lookups that fell through to the upstream.",
				},
			),
			cacheEntries: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "hearth_response_cache_entries",
					Help: "Current response cache entry count.",
				},
			),
			upstreamAttempts: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hearth_upstream_attempts_total",
					Help: "Completion API attempts by provider and status.",
				},
				[]string{"provider", "status"},
			),
			upstreamDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "hearth_upstream_duration_seconds",
					Help:    "Completion API round-trip duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "hearth_active_sessions",
					Help: "Sessions currently held in rolling memory.",
				},
			),
			chatLogWrites: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "hearth_chat_log_writes_total",
					Help: "Durable chat log writes by status.",
				},
				[]string{"status"},
			),
		}

		registry = prometheus.NewRegistry()
		registry.MustRegister(
			m.chatRequests,
			m.rateLimited,
			m.cacheHits,
			m.cacheMisses,
			m.cacheEntries,
			m.upstreamAttempts,
			m.upstreamDuration,
			m.activeSessions,
			m.chatLogWrites,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered forces metric registration. Useful during startup so the
// first scrape sees every series.
func EnsureRegistered() {
	getMetrics()
}

// MetricsHandler returns the HTTP handler serving the relay registry.
func MetricsHandler() http.Handler {
	getMetrics()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// RecordChatRequest counts one finished relay request by outcome
// ("ok", "cache_hit", "rate_limited", "invalid", "upstream_failed").
func RecordChatRequest(outcome string) {
	getMetrics().chatRequests.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts one admission rejection.
func RecordRateLimited() {
	getMetrics().rateLimited.Inc()
}

// RecordCacheHit counts one response cache hit.
func RecordCacheHit() {
	getMetrics().cacheHits.Inc()
}

// RecordCacheMiss counts one response cache miss.
func RecordCacheMiss() {
	getMetrics().cacheMisses.Inc()
}

// SetCacheEntries publishes the current response cache size.
func SetCacheEntries(n int) {
	getMetrics().cacheEntries.Set(float64(n))
}

// RecordUpstreamAttempt counts one completion API attempt.
func RecordUpstreamAttempt(provider, status string) {
	getMetrics().upstreamAttempts.WithLabelValues(provider, status).Inc()
}

// RecordUpstreamDuration observes one completion API round trip.
func RecordUpstreamDuration(d time.Duration) {
	getMetrics().upstreamDuration.Observe(d.Seconds())
}

// SetActiveSessions publishes the current rolling-memory session count.
func SetActiveSessions(n int) {
	getMetrics().activeSessions.Set(float64(n))
}

// RecordChatLogWrite counts one durable-log write ("ok" or "error").
func RecordChatLogWrite(status string) {
	getMetrics().chatLogWrites.WithLabelValues(status).Inc()
}
