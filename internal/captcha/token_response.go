package captcha

import (
	"context"

	"tokengate/internal/stats"
)

// Error codes the siteverify endpoints return, surfaced verbatim.
const (
	ErrCodeMissingInputSecret   = "missing-input-secret"
	ErrCodeInvalidInputSecret   = "invalid-input-secret"
	ErrCodeMissingInputResponse = "missing-input-response"
	ErrCodeInvalidInputResponse = "invalid-input-response"
	ErrCodeBadRequest           = "bad-request"
	ErrCodeTimeoutOrDuplicate   = "timeout-or-duplicate"
	ErrCodeInternalError        = "internal-error"
)

// Payload is the decoded body of a siteverify response.
type Payload struct {
	Success     bool     `json:"success"`
	Score       *float64 `json:"score,omitempty"`
	Action      string   `json:"action,omitempty"`
	Hostname    string   `json:"hostname,omitempty"`
	ChallengeTS string   `json:"challenge_ts,omitempty"`
	ErrorCodes  []string `json:"error-codes,omitempty"`
}

// TokenResponse wraps one decoded verification payload together with the
// caller's expectations (requested action and score threshold). All checks
// are pure reads; failing checks additionally emit a stat event.
type TokenResponse struct {
	provider  Provider
	payload   Payload
	action    string
	threshold float64
	stats     *stats.Recorder
}

// NewTokenResponse constructs a response for one verification call. The
// requested action is normalized through the provider's formatting rule; the
// score threshold must lie in [0.0, 1.0] (nil means the configured default),
// anything else fails with ErrScoreOutOfRange.
func NewTokenResponse(provider Provider, payload Payload, score *float64, action string, recorder *stats.Recorder) (*TokenResponse, error) {
	threshold, err := provider.ValidateScore(score)
	if err != nil {
		return nil, err
	}
	return &TokenResponse{
		provider:  provider,
		payload:   payload,
		action:    provider.FormatAction(action),
		threshold: threshold,
		stats:     recorder,
	}, nil
}

// IsSuccess reports whether the API verified the token at all. This says
// nothing about score or action; see IsValid.
func (t *TokenResponse) IsSuccess() bool {
	if !t.payload.Success {
		t.stats.Record(context.Background(), stats.Event{
			Kind:     stats.KindVerifyFailed,
			Provider: t.provider.Name(),
			Action:   t.action,
			Reason:   "api returned success=false",
		})
	}
	return t.payload.Success
}

// FailOnScore reports whether the response score exists and falls strictly
// below the requested threshold. Providers without scores never fail here.
func (t *TokenResponse) FailOnScore() bool {
	if !t.provider.SupportsScore() || t.payload.Score == nil {
		return false
	}
	failed := *t.payload.Score < t.threshold
	if failed {
		t.stats.Record(context.Background(), stats.Event{
			Kind:      stats.KindScoreBelowThreshold,
			Provider:  t.provider.Name(),
			Action:    t.action,
			Score:     t.payload.Score,
			Threshold: t.threshold,
		})
	}
	return failed
}

// FailOnAction reports whether a non-empty requested action differs from the
// response action. Action matching is opt-in: an empty requested action never
// fails.
func (t *TokenResponse) FailOnAction() bool {
	if t.action == "" {
		return false
	}
	failed := t.action != t.payload.Action
	if failed {
		t.stats.Record(context.Background(), stats.Event{
			Kind:           stats.KindActionMismatch,
			Provider:       t.provider.Name(),
			Action:         t.action,
			ResponseAction: t.payload.Action,
		})
	}
	return failed
}

// IsValid reports whether the verification passed completely: the API
// succeeded, the action matched (when requested) and the score met the
// threshold. Success dominates; the other checks never run on failure.
func (t *TokenResponse) IsValid() bool {
	if !t.IsSuccess() {
		return false
	}
	if t.FailOnAction() {
		return false
	}
	return !t.FailOnScore()
}

// IsTimeout reports whether the token was reused or aged out of its validity
// window. Callers must treat this as "please resubmit", never as a bot signal.
func (t *TokenResponse) IsTimeout() bool {
	timedOut := t.hasErrorCode(ErrCodeTimeoutOrDuplicate)
	if timedOut {
		t.stats.Record(context.Background(), stats.Event{
			Kind:     stats.KindTimeoutOrDuplicate,
			Provider: t.provider.Name(),
			Action:   t.action,
		})
	}
	return timedOut
}

// IsBadRequest reports whether the remote service flagged the request itself
// as malformed (bad secret, bad payload) — a local misconfiguration, not an
// end-user spam signal.
func (t *TokenResponse) IsBadRequest() bool {
	bad := t.hasErrorCode(ErrCodeBadRequest)
	if bad {
		t.stats.Record(context.Background(), stats.Event{
			Kind:     stats.KindBadRequest,
			Provider: t.provider.Name(),
			Action:   t.action,
		})
	}
	return bad
}

func (t *TokenResponse) hasErrorCode(code string) bool {
	for _, c := range t.payload.ErrorCodes {
		if c == code {
			return true
		}
	}
	return false
}

// Action returns the normalized requested action.
func (t *TokenResponse) Action() string { return t.action }

// Threshold returns the resolved score threshold.
func (t *TokenResponse) Threshold() float64 { return t.threshold }

// ResponseScore returns the score from the response, nil when absent.
func (t *TokenResponse) ResponseScore() *float64 { return t.payload.Score }

// ResponseAction returns the action field from the response.
func (t *TokenResponse) ResponseAction() string { return t.payload.Action }

// ResponseHostname returns the hostname field from the response.
func (t *TokenResponse) ResponseHostname() string { return t.payload.Hostname }

// ErrorCodes returns the error codes from the response, never nil.
func (t *TokenResponse) ErrorCodes() []string {
	if t.payload.ErrorCodes == nil {
		return []string{}
	}
	return t.payload.ErrorCodes
}
