package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tokengate/internal/stats"
	"tokengate/pkg/apperrors"
)

const defaultVerifyTimeout = 5 * time.Second

// Verifier performs the outbound siteverify round trip and produces a
// TokenResponse. One call per token; no retries, no caching — the remote
// service enforces at-most-once token usage itself.
type Verifier struct {
	provider  Provider
	secret    string
	verifyURL string
	client    *http.Client
	stats     *stats.Recorder
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(client *http.Client) VerifierOption {
	return func(v *Verifier) {
		v.client = client
	}
}

// WithVerifyURL overrides the provider's siteverify URL.
func WithVerifyURL(u string) VerifierOption {
	return func(v *Verifier) {
		if u != "" {
			v.verifyURL = u
		}
	}
}

// WithTimeout sets the outbound call timeout.
func WithTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.client.Timeout = d
		}
	}
}

// WithStats attaches a stat recorder, propagated into every TokenResponse.
func WithStats(recorder *stats.Recorder) VerifierOption {
	return func(v *Verifier) {
		v.stats = recorder
	}
}

// NewVerifier constructs a verifier for one provider and shared secret. The
// secret may be empty at construction; Check fails on it per call so a
// misconfigured deployment surfaces a configuration error, not a panic.
func NewVerifier(provider Provider, secret string, opts ...VerifierOption) (*Verifier, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	v := &Verifier{
		provider:  provider,
		secret:    secret,
		verifyURL: provider.VerifyURL(),
		client:    &http.Client{Timeout: defaultVerifyTimeout},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Provider returns the provider this verifier talks to.
func (v *Verifier) Provider() Provider { return v.provider }

// Check verifies one token. score nil means the configured default threshold;
// action enables response-action matching when non-empty; remoteIP is passed
// to the remote service when known. A non-200 status or undecodable body is
// always a typed remote error, never a silent "invalid token".
func (v *Verifier) Check(ctx context.Context, token string, score *float64, action, remoteIP string) (*TokenResponse, error) {
	if v.secret == "" {
		return nil, apperrors.New(apperrors.CodeConfiguration, "verification secret is not configured")
	}

	form := url.Values{
		"secret":   {v.secret},
		"response": {token},
	}
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "build verification request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRemote, "verification endpoint unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.New(apperrors.CodeRemote, fmt.Sprintf("verification endpoint returned status %d", resp.StatusCode))
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeRemote, "decode verification response", err)
	}

	tr, err := NewTokenResponse(v.provider, payload, score, action, v.stats)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid score threshold", err)
	}
	return tr, nil
}
