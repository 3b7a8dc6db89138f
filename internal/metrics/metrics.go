package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nearby_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Feed
	FeedLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearby_feed_loads_total",
			Help: "Feed page loads by outcome",
		},
		[]string{"result"}, // "loaded", "exhausted", "in_flight", "stale", "error"
	)

	// Dedupe
	DedupeRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearby_dedupe_runs_total",
			Help: "Deduplication runs by outcome",
		},
		[]string{"result"},
	)

	DedupeDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nearby_dedupe_deleted_total",
			Help: "Events removed as duplicates",
		},
	)

	DedupeDeleteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nearby_dedupe_delete_failures_total",
			Help: "Duplicate deletions that failed",
		},
	)

	// Geocoding
	GeocodeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearby_geocode_requests_total",
			Help: "Outbound geocoding requests",
		},
		[]string{"kind", "result"}, // kind: "search", "reverse"; result: "hit", "miss", "error", "cached"
	)

	GeocodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nearby_geocode_duration_seconds",
			Help:    "Latency of outbound geocoding requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"kind"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nearby_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nearby_active_sessions",
			Help: "Sessions currently holding a feed and geolocation accessor",
		},
	)

	LocationReports = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nearby_location_reports_total",
			Help: "Position reports received from clients",
		},
		[]string{"result"}, // "fix" or the geolocation error kind
	)
)

// ObserveHTTP records a finished request.
func ObserveHTTP(method, route, status string, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, status).Observe(elapsed.Seconds())
}
