package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authuser"

// Outcomes recorded for each strategy attempt.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

// ServerMetrics holds the collectors for HTTP and authentication telemetry.
// A nil *ServerMetrics is valid and records nothing.
type ServerMetrics struct {
	registry *prometheus.Registry

	RequestCounter   *prometheus.CounterVec   // Total HTTP requests by method, route, status
	RequestDuration  *prometheus.HistogramVec // HTTP request latency
	AuthAttempts     *prometheus.CounterVec   // Strategy outcomes by strategy, outcome
	GuardRejections  *prometheus.CounterVec   // Requests stopped by a guard
	SessionWrites    *prometheus.CounterVec   // Session commits by outcome
	LoginRateLimited prometheus.Counter       // Logins refused by the rate limiter
}

// NewServerMetrics creates the collectors and registers them on a private
// registry, so tests and multiple servers in one process do not collide.
func NewServerMetrics() *ServerMetrics {
	m := &ServerMetrics{
		registry: prometheus.NewRegistry(),
		RequestCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		AuthAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Authentication strategy outcomes",
		}, []string{"strategy", "outcome"}),
		GuardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_rejections_total",
			Help:      "Requests short-circuited by an authorization guard",
		}, []string{"guard"}),
		SessionWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_writes_total",
			Help:      "Session commits after a credential login",
		}, []string{"outcome"}),
		LoginRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_rate_limited_total",
			Help:      "Login attempts refused by the rate limiter",
		}),
	}

	m.registry.MustRegister(
		m.RequestCounter,
		m.RequestDuration,
		m.AuthAttempts,
		m.GuardRejections,
		m.SessionWrites,
		m.LoginRateLimited,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *ServerMetrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAuthAttempt counts one strategy outcome.
func (m *ServerMetrics) RecordAuthAttempt(strategy, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(strategy, outcome).Inc()
}

// RecordGuardRejection counts one guard short-circuit.
func (m *ServerMetrics) RecordGuardRejection(guard string) {
	if m == nil {
		return
	}
	m.GuardRejections.WithLabelValues(guard).Inc()
}

// RecordSessionWrite counts one session commit.
func (m *ServerMetrics) RecordSessionWrite(outcome string) {
	if m == nil {
		return
	}
	m.SessionWrites.WithLabelValues(outcome).Inc()
}

// RecordRateLimited counts one refused login.
func (m *ServerMetrics) RecordRateLimited() {
	if m == nil {
		return
	}
	m.LoginRateLimited.Inc()
}

// Middleware records request count and latency keyed by the chi route
// pattern, which keeps label cardinality bounded.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.RequestCounter.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
