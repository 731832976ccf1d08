// Package metrics exposes Prometheus collectors for the tablepilot service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pilotFetchesTotal         *prometheus.CounterVec
	pilotFetchDurationSeconds *prometheus.HistogramVec
	pilotEntriesParsed        *prometheus.HistogramVec
	pilotSessionsTotal        *prometheus.CounterVec
	pilotSessionDuration      prometheus.Histogram
	pilotActiveSessions       prometheus.Gauge
	pilotRateLimitWaitSeconds prometheus.Histogram
	pilotProxyDisabledTotal   *prometheus.CounterVec
	pilotSnapshotsTotal       *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pilotFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pilot_fetches_total",
				Help: "Total number of lobby fetches, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		pilotFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pilot_fetch_duration_seconds",
				Help:    "Histogram of lobby fetch latencies, labeled by strategy.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"strategy"},
		)

		pilotEntriesParsed = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pilot_entries_parsed",
				Help:    "Histogram of entries per lobby read, labeled by source.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
			},
			[]string{"source"},
		)

		pilotSessionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pilot_sessions_total",
				Help: "Total number of seating sessions, labeled by final state.",
			},
			[]string{"state"},
		)

		pilotSessionDuration = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pilot_session_duration_seconds",
				Help:    "Histogram of seating session durations.",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		)

		pilotActiveSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "pilot_active_sessions",
				Help: "Number of seat workers currently running a session.",
			},
		)

		pilotRateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pilot_rate_limit_wait_seconds",
				Help:    "Histogram of rate limiter wait durations.",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5},
			},
		)

		pilotProxyDisabledTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pilot_proxy_disabled_total",
				Help: "Total times a proxy endpoint hit its failure threshold.",
			},
			[]string{"endpoint"},
		)

		pilotSnapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pilot_snapshots_total",
				Help: "Total lobby snapshots taken by the poller, labeled by whether the lobby changed.",
			},
			[]string{"changed"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one scheduler fetch outcome.
func ObserveFetch(strategy, outcome string, duration time.Duration) {
	pilotFetchesTotal.WithLabelValues(strategy, outcome).Inc()
	pilotFetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveEntries records how many entries one lobby read produced.
func ObserveEntries(source string, count int) {
	pilotEntriesParsed.WithLabelValues(source).Observe(float64(count))
}

// ObserveSession records a finished seating session.
func ObserveSession(state string, duration time.Duration) {
	pilotSessionsTotal.WithLabelValues(state).Inc()
	pilotSessionDuration.Observe(duration.Seconds())
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	pilotActiveSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	pilotActiveSessions.Dec()
}

// ObserveRateLimitWait records the duration of a rate limiter wait.
func ObserveRateLimitWait(duration time.Duration) {
	pilotRateLimitWaitSeconds.Observe(duration.Seconds())
}

// ObserveProxyDisabled counts an endpoint crossing its failure threshold.
func ObserveProxyDisabled(endpoint string) {
	pilotProxyDisabledTotal.WithLabelValues(endpoint).Inc()
}

// ObserveSnapshot counts a poller snapshot.
func ObserveSnapshot(changed bool) {
	pilotSnapshotsTotal.WithLabelValues(strconv.FormatBool(changed)).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics. Route
// patterns label the duration histogram so path parameters do not blow up
// cardinality; unrouted requests share a single label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unknown"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		ObserveHTTPRequest(r.Method, routePattern, status, time.Since(start))
	})
}
