package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokengate/internal/captcha"
	"tokengate/internal/check"
	"tokengate/internal/check/handler"
	"tokengate/internal/rules"
	"tokengate/internal/rules/store"
	"tokengate/internal/session"
)

type checkResponse struct {
	Result     string   `json:"result"`
	Threshold  *float64 `json:"threshold"`
	Score      *float64 `json:"score"`
	ErrorCodes []string `json:"errorcodes"`
}

type fixture struct {
	router  chi.Router
	ruleSvc *rules.Service
}

// newFixture wires a full check stack against a stubbed siteverify endpoint.
func newFixture(t *testing.T, enabled bool, payloads map[string]captcha.Payload) *fixture {
	t.Helper()

	verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		payload, ok := payloads[r.PostFormValue("response")]
		if !ok {
			payload = captcha.Payload{Success: false, ErrorCodes: []string{captcha.ErrCodeInvalidInputResponse}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(verify.Close)

	provider, err := captcha.ForName(captcha.ProviderRecaptchaV3, 0.5)
	require.NoError(t, err)

	verifier, err := captcha.NewVerifier(provider, "secret", captcha.WithVerifyURL(verify.URL))
	require.NoError(t, err)

	ruleSvc, err := rules.New(store.NewMemory(), provider, 0.5)
	require.NoError(t, err)

	svc, err := check.New(verifier, ruleSvc,
		check.WithSessionStore(session.NewMemoryStore(), time.Minute),
	)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	handler.New(svc, enabled, nil, logger).Register(router)

	return &fixture{router: router, ruleSvc: ruleSvc}
}

func (f *fixture) postCheck(t *testing.T, form url.Values) (*httptest.ResponseRecorder, checkResponse) {
	t.Helper()

	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var body checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func floatPtr(v float64) *float64 { return &v }

func TestCheckValidToken(t *testing.T) {
	f := newFixture(t, true, map[string]captcha.Payload{
		"tok-human": {Success: true, Score: floatPtr(0.9), Action: "login"},
	})

	rec, body := f.postCheck(t, url.Values{
		"token":  {"tok-human"},
		"action": {"login"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body.Result)
	require.NotNil(t, body.Threshold)
	assert.InDelta(t, 0.5, *body.Threshold, 0.0001)
	require.NotNil(t, body.Score)
	assert.InDelta(t, 0.9, *body.Score, 0.0001)
	assert.Empty(t, body.ErrorCodes)
}

func TestCheckBotScoreBlocked(t *testing.T) {
	f := newFixture(t, true, map[string]captcha.Payload{
		"tok-bot": {Success: true, Score: floatPtr(0.1), Action: "login"},
	})

	rec, body := f.postCheck(t, url.Values{
		"token": {"tok-bot"},
		"tag":   {"contact"},
		"score": {"0.9"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAIL", body.Result)
	require.NotNil(t, body.Score)
	assert.InDelta(t, 0.1, *body.Score, 0.0001, "bot score is surfaced for diagnosis")
}

func TestCheckTimeoutOrDuplicate(t *testing.T) {
	f := newFixture(t, true, map[string]captcha.Payload{
		"tok-stale": {Success: false, ErrorCodes: []string{captcha.ErrCodeTimeoutOrDuplicate}},
	})

	rec, body := f.postCheck(t, url.Values{"token": {"tok-stale"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAIL", body.Result)
	assert.Contains(t, body.ErrorCodes, captcha.ErrCodeTimeoutOrDuplicate)
}

func TestCheckAllowRuleReturnsOK(t *testing.T) {
	f := newFixture(t, true, map[string]captcha.Payload{
		"tok-bot": {Success: true, Score: floatPtr(0.1)},
	})
	_, err := f.ruleSvc.Create(context.Background(), &rules.Rule{
		Tag:          "survey",
		Enabled:      true,
		ActionToTake: rules.TakeActionAllow,
	})
	require.NoError(t, err)

	rec, body := f.postCheck(t, url.Values{
		"token": {"tok-bot"},
		"tag":   {"survey"},
		"score": {"0.9"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body.Result)
}

func TestCheckMissingToken(t *testing.T) {
	f := newFixture(t, true, nil)

	rec, body := f.postCheck(t, url.Values{"action": {"login"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAIL", body.Result)
	assert.Nil(t, body.Threshold)
	assert.Nil(t, body.Score)
}

func TestCheckDisabledEndpoint(t *testing.T) {
	f := newFixture(t, false, nil)

	rec, body := f.postCheck(t, url.Values{"token": {"tok-human"}})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAIL", body.Result)
}

func TestCheckUnparsableScore(t *testing.T) {
	f := newFixture(t, true, nil)

	rec, body := f.postCheck(t, url.Values{
		"token": {"tok-human"},
		"score": {"not-a-number"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAIL", body.Result)
}

func TestCheckOutOfRangeScore(t *testing.T) {
	f := newFixture(t, true, map[string]captcha.Payload{
		"tok-human": {Success: true, Score: floatPtr(0.9)},
	})

	rec, body := f.postCheck(t, url.Values{
		"token": {"tok-human"},
		"score": {"1.5"},
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FAIL", body.Result)
}

func TestCheckRemoteFailureIs500WithDiagnosticHeader(t *testing.T) {
	verify := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(verify.Close)

	provider, err := captcha.ForName(captcha.ProviderRecaptchaV3, 0.5)
	require.NoError(t, err)
	verifier, err := captcha.NewVerifier(provider, "secret", captcha.WithVerifyURL(verify.URL))
	require.NoError(t, err)
	ruleSvc, err := rules.New(store.NewMemory(), provider, 0.5)
	require.NoError(t, err)
	svc, err := check.New(verifier, ruleSvc)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := chi.NewRouter()
	handler.New(svc, true, nil, logger).Register(router)

	form := url.Values{"token": {"tok-human"}}
	req := httptest.NewRequest(http.MethodPost, "/check", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Error-Message"))

	var body checkResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "FAIL", body.Result)
}

func TestIndexReturnsForbidden(t *testing.T) {
	f := newFixture(t, true, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"result":"FAIL"}`, rec.Body.String())
}
