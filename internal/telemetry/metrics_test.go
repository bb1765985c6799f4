package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMetrics_Counters(t *testing.T) {
	m := NewServerMetrics()

	m.RecordAuthAttempt("basic", OutcomeSuccess)
	m.RecordAuthAttempt("basic", OutcomeSuccess)
	m.RecordAuthAttempt("basic", OutcomeFailure)
	m.RecordGuardRejection("ownerOnly")
	m.RecordSessionWrite(OutcomeError)
	m.RecordRateLimited()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("basic", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues("basic", OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardRejections.WithLabelValues("ownerOnly")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionWrites.WithLabelValues(OutcomeError)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoginRateLimited))
}

func TestServerMetrics_NilIsNoop(t *testing.T) {
	var m *ServerMetrics
	m.RecordAuthAttempt("basic", OutcomeSuccess)
	m.RecordGuardRejection("ownerOnly")
	m.RecordSessionWrite(OutcomeSuccess)
	m.RecordRateLimited()

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	m.Middleware(h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestServerMetrics_MiddlewareAndHandler(t *testing.T) {
	m := NewServerMetrics()

	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/principals/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	r.Handle("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/principals/abc", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCounter.WithLabelValues("GET", "/principals/{id}", "401")))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "authuser_http_requests_total")
}
