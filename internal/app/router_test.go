package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dsd-finance/finance-hub/internal/observability"
)

func TestHealthzReportsChecks(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.Default(),
		Config: &Config{AppEnv: "test"},
		Checks: map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"postgres":"ok"`)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
}

func TestHealthzDegraded(t *testing.T) {
	router := NewRouter(RouterParams{
		Config: &Config{},
		Checks: map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), `"redis":"down"`)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{}})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.JSONEq(t, `{"success":false,"error":"not found"}`, rec.Body.String())
}

func TestMetricsEndpointMounted(t *testing.T) {
	router := NewRouter(RouterParams{Config: &Config{}, Metrics: observability.NewMetrics()})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "finhub_http_requests_total")
}
