// Package metrics holds the Prometheus collectors exposed at /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream Fleet API
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tesla_upstream_requests_total",
			Help: "Fleet API calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tesla_upstream_request_duration_seconds",
			Help:    "Fleet API call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	RateLimitWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tesla_rate_limiter_wait_seconds",
			Help:    "Time spent waiting for the upstream call budget",
			Buckets: []float64{0, .1, .25, .5, 1, 2, 5, 10, 30},
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Entity cache
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_cache_lookups_total",
			Help: "Entity cache lookups by kind and result (hit, miss, stale)",
		},
		[]string{"kind", "result"},
	)

	CacheExpired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entity_cache_expired_total",
			Help: "Entity cache rows removed by the expiry sweep",
		},
		[]string{"kind"},
	)

	// Sync
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_runs_total",
			Help: "Sync passes by final status",
		},
		[]string{"status"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_duration_seconds",
			Help:    "Duration of a full sync pass",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	Snapshots = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshots_total",
			Help: "Ingested snapshots by kind (vehicle, energy) and result (created, duplicate, skipped)",
		},
		[]string{"kind", "result"},
	)

	ChargingSessions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "charging_sessions_total",
			Help: "Charging session transitions (opened, completed, interrupted)",
		},
		[]string{"event"},
	)

	// HTTP API
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	PushNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_notifications_total",
			Help: "Web push deliveries by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordUpstream records one Fleet API call.
func RecordUpstream(endpoint string, duration time.Duration, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	UpstreamDuration.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSync records the outcome of a sync pass.
func RecordSync(duration time.Duration, success bool) {
	status := "success"
	if !success {
		status = "failed"
	}
	SyncRuns.WithLabelValues(status).Inc()
	SyncDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records one served API request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequests.WithLabelValues(method, route, status).Inc()
	HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
