// Package captcha interprets tokens issued by third-party human-verification
// services and verifies them against the provider's siteverify endpoint.
package captcha

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrScoreOutOfRange is returned when a requested score threshold lies
// outside [0.0, 1.0].
var ErrScoreOutOfRange = errors.New("score must be between 0.0 and 1.0")

// Provider captures how a verification service interprets its payload:
// which characters an action may carry, whether scores exist at all, and
// where tokens are verified. Evaluation logic is written once against this
// interface, never against a concrete provider.
type Provider interface {
	Name() string
	VerifyURL() string
	// FormatAction strips characters the provider disallows. Invalid
	// characters are removed, not rejected; formatting is idempotent.
	FormatAction(action string) string
	// ValidateScore resolves a requested threshold: nil means the configured
	// default, out-of-range values fail with ErrScoreOutOfRange.
	ValidateScore(score *float64) (float64, error)
	// SupportsScore reports whether responses carry a confidence score.
	SupportsScore() bool
}

const (
	ProviderRecaptchaV3 = "recaptchav3"
	ProviderTurnstile   = "turnstile"

	recaptchaVerifyURL = "https://www.google.com/recaptcha/api/siteverify"
	turnstileVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

	fallbackDefaultScore = 0.5
)

// ForName builds the named provider. defaultScore is the process-wide score
// threshold used when callers pass no explicit one; out-of-range values fall
// back to 0.5 rather than failing startup.
func ForName(name string, defaultScore float64) (Provider, error) {
	switch name {
	case ProviderRecaptchaV3:
		return NewRecaptchaV3(defaultScore), nil
	case ProviderTurnstile:
		return NewTurnstile(), nil
	default:
		return nil, fmt.Errorf("unknown captcha provider %q", name)
	}
}

// RecaptchaV3 is the score-based provider. Scores range 0.0 (likely bot) to
// 1.0 (likely human); actions may only contain alphanumerics and slashes.
type RecaptchaV3 struct {
	defaultScore float64
}

var recaptchaActionPattern = regexp.MustCompile(`[^a-zA-Z0-9/]`)

func NewRecaptchaV3(defaultScore float64) *RecaptchaV3 {
	if defaultScore < 0 || defaultScore > 1 {
		defaultScore = fallbackDefaultScore
	}
	return &RecaptchaV3{defaultScore: defaultScore}
}

func (p *RecaptchaV3) Name() string      { return ProviderRecaptchaV3 }
func (p *RecaptchaV3) VerifyURL() string { return recaptchaVerifyURL }

func (p *RecaptchaV3) FormatAction(action string) string {
	return recaptchaActionPattern.ReplaceAllString(action, "")
}

func (p *RecaptchaV3) ValidateScore(score *float64) (float64, error) {
	if score == nil {
		return p.defaultScore, nil
	}
	if *score < 0 || *score > 1 {
		return 0, ErrScoreOutOfRange
	}
	return *score, nil
}

func (p *RecaptchaV3) SupportsScore() bool { return true }

// Turnstile is the binary challenge provider. It has no score concept;
// actions may contain up to 32 alphanumerics, underscores and hyphens.
type Turnstile struct{}

var turnstileActionPattern = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func NewTurnstile() *Turnstile { return &Turnstile{} }

func (p *Turnstile) Name() string      { return ProviderTurnstile }
func (p *Turnstile) VerifyURL() string { return turnstileVerifyURL }

func (p *Turnstile) FormatAction(action string) string {
	action = turnstileActionPattern.ReplaceAllString(action, "")
	if len(action) > 32 {
		action = action[:32]
	}
	return action
}

func (p *Turnstile) ValidateScore(score *float64) (float64, error) {
	return 0, nil
}

func (p *Turnstile) SupportsScore() bool { return false }
