// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmspace_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status_code"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "calmspace_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "calmspace_http_active_requests",
			Help: "Current number of in-flight HTTP requests",
		},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmspace_rate_limit_hits_total",
			Help: "Total number of requests rejected by a rate limiter",
		},
		[]string{"scope"},
	)

	// AI completion
	AICompletions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmspace_ai_completions_total",
			Help: "AI completion calls by outcome (success, fallback, rejected)",
		},
		[]string{"outcome"},
	)

	AICompletionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "calmspace_ai_completion_duration_seconds",
			Help:    "Latency of upstream AI completion calls",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "calmspace_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Accounts and sessions
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmspace_login_attempts_total",
			Help: "Login attempts by result (success, failure, locked)",
		},
		[]string{"result"},
	)

	SessionsExpiredDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "calmspace_sessions_expired_deleted_total",
			Help: "Expired session rows removed by the cleanup loop",
		},
	)

	// Events
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "calmspace_events_published_total",
			Help: "Domain events handed to the message broker, by type and result",
		},
		[]string{"type", "result"},
	)
)

// Middleware records request count, latency and in-flight gauge per route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		HTTPActiveRequests.Inc()
		defer HTTPActiveRequests.Dec()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
