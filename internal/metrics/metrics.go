// Package metrics holds the Prometheus collectors for the hub service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobhub",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobhub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jobhub",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	cacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobhub",
			Subsystem: "cache",
			Name:      "events_total",
			Help:      "Fetch cache events by kind (hit, fetch, shared, invalidated, discarded, retry).",
		},
		[]string{"event"},
	)

	endpointTests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jobhub",
			Subsystem: "endpoint_test",
			Name:      "requests_total",
			Help:      "Endpoint tests by outcome.",
		},
		[]string{"outcome"},
	)

	endpointTestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jobhub",
			Subsystem: "endpoint_test",
			Name:      "duration_seconds",
			Help:      "Time spent waiting on tested endpoints.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jobhub",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Browser sessions currently held in memory.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		cacheEvents,
		endpointTests,
		endpointTestDuration,
		activeSessions,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics collection. Routes are
// labelled by their chi pattern so IDs do not explode cardinality.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordCacheEvent counts a fetch cache event.
func RecordCacheEvent(event string) {
	cacheEvents.WithLabelValues(event).Inc()
}

// RecordEndpointTest records one endpoint test outcome.
func RecordEndpointTest(outcome string, duration time.Duration) {
	endpointTests.WithLabelValues(outcome).Inc()
	if duration > 0 {
		endpointTestDuration.Observe(duration.Seconds())
	}
}

// SetActiveSessions reports the current session count.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
