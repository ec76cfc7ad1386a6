package httptransport_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokengate/internal/captcha"
	"tokengate/internal/check"
	checkhandler "tokengate/internal/check/handler"
	"tokengate/internal/rules"
	ruleshandler "tokengate/internal/rules/handler"
	"tokengate/internal/rules/store"
	"tokengate/internal/session"
	httptransport "tokengate/internal/transport/http"
)

func newRouter(t *testing.T, health []httptransport.HealthCheck) http.Handler {
	t.Helper()

	provider, err := captcha.ForName(captcha.ProviderRecaptchaV3, 0.5)
	require.NoError(t, err)
	verifier, err := captcha.NewVerifier(provider, "secret")
	require.NoError(t, err)
	ruleSvc, err := rules.New(store.NewMemory(), provider, 0.5)
	require.NoError(t, err)
	checkSvc, err := check.New(verifier, ruleSvc,
		check.WithSessionStore(session.NewMemoryStore(), time.Minute),
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httptransport.NewRouter(httptransport.Deps{
		Check:      checkhandler.New(checkSvc, true, nil, logger),
		Rules:      ruleshandler.New(ruleSvc, logger),
		AdminToken: "admin-token",
		Health:     health,
		Logger:     logger,
	})
}

func TestHealthzAllHealthy(t *testing.T) {
	router := newRouter(t, []httptransport.HealthCheck{
		{Name: "postgres", Check: func() error { return nil }},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["postgres"])
}

func TestHealthzDegraded(t *testing.T) {
	router := newRouter(t, []httptransport.HealthCheck{
		{Name: "redis", Check: func() error { return errors.New("connection refused") }},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
}

func TestMetricsExposed(t *testing.T) {
	router := newRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAdminRoutesGuarded(t *testing.T) {
	router := newRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/rules", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/rules", nil)
	req.Header.Set("Authorization", "Bearer admin-token")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestIDAssigned(t *testing.T) {
	router := newRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, "req-123", rec.Header().Get("X-Request-Id"))
}
