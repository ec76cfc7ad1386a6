package check

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"tokengate/internal/captcha"
	"tokengate/internal/check/metrics"
	"tokengate/internal/rules"
	"tokengate/internal/session"
	"tokengate/internal/stats"
	"tokengate/pkg/sentinel"
)

// CautionFunc is the extension hook consulted when a Caution rule would let a
// failed verification proceed. Returning true blocks the submission anyway.
type CautionFunc func(ctx context.Context, tr *captcha.TokenResponse, rule *rules.Rule) bool

// Request is one validation attempt.
type Request struct {
	// Token is the client-side widget token. Required.
	Token string
	// Tag selects the policy rule. An enabled rule supplies the score
	// threshold and expected action when the request carries none, and
	// decides the outcome when verification fails.
	Tag string
	// Action enables response-action matching when non-empty. Empty falls
	// back to the rule's action, when a rule applies.
	Action string
	// Score overrides the rule's and the configured default threshold
	// when non-nil.
	Score *float64
	// RemoteIP is forwarded to the verification service when known.
	RemoteIP string
	// SessionID keys the one-shot stash of the verification summary.
	SessionID string
}

// Service runs the decision flow for one token at a time.
type Service struct {
	verifier   *captcha.Verifier
	rules      *rules.Service
	sessions   session.Store
	sessionTTL time.Duration
	stats      *stats.Recorder
	metrics    *metrics.Metrics
	caution    CautionFunc
	logger     *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSessionStore stashes the summary of each valid verification for
// one-shot consumption by a follow-up request.
func WithSessionStore(store session.Store, ttl time.Duration) Option {
	return func(s *Service) {
		s.sessions = store
		s.sessionTTL = ttl
	}
}

func WithStats(recorder *stats.Recorder) Option {
	return func(s *Service) {
		s.stats = recorder
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCautionFunc installs the hook consulted for Caution rules.
func WithCautionFunc(fn CautionFunc) Option {
	return func(s *Service) {
		s.caution = fn
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs the check service.
func New(verifier *captcha.Verifier, ruleSvc *rules.Service, opts ...Option) (*Service, error) {
	if verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if ruleSvc == nil {
		return nil, fmt.Errorf("rules service is required")
	}
	svc := &Service{
		verifier:   verifier,
		rules:      ruleSvc,
		sessionTTL: 30 * time.Minute,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Validate checks one token and decides the outcome. Infrastructure failures
// (missing secret, unreachable endpoint, undecodable body, out-of-range
// threshold) return an error; every business outcome, including blocked and
// timed out, returns a Decision.
func (s *Service) Validate(ctx context.Context, req Request) (*Decision, error) {
	started := time.Now()
	defer func() {
		s.metrics.ObserveValidateLatency(time.Since(started))
	}()

	provider := s.verifier.Provider()

	// Any stale stash from an earlier attempt must not survive into this one.
	s.clearStash(ctx, req.SessionID)

	if req.Token == "" {
		s.logger.InfoContext(ctx, "validation without token", "tag", req.Tag)
		return s.decide(ctx, OutcomeGeneralFailure, nil, nil, req)
	}

	// The rule is resolved before the remote call so its stored threshold
	// and action govern the verification itself, not just the failure
	// outcome. Explicit request values always win.
	rule, err := s.rules.Resolve(ctx, req.Tag)
	if err != nil {
		return nil, err
	}
	score := req.Score
	action := req.Action
	if rule != nil {
		if score == nil {
			threshold := rule.Threshold(s.rules.DefaultScore())
			score = &threshold
		}
		if action == "" {
			action = rule.Action
		}
	}

	verifyStarted := time.Now()
	tr, err := s.verifier.Check(ctx, req.Token, score, action, req.RemoteIP)
	s.metrics.ObserveVerifyLatency(provider.Name(), time.Since(verifyStarted))
	if err != nil {
		return nil, err
	}

	if tr.IsValid() {
		s.stashSummary(ctx, req, tr)
		return s.decide(ctx, OutcomeValid, tr, nil, req)
	}
	if tr.IsTimeout() {
		return s.decide(ctx, OutcomeTimedOut, tr, nil, req)
	}

	if rule == nil {
		// Default deny: failed verification with no enabled rule is blocked.
		return s.decide(ctx, OutcomeBlockedByPolicy, tr, nil, req)
	}

	switch rule.ActionToTake {
	case rules.TakeActionAllow:
		return s.decide(ctx, OutcomeAllowedByPolicy, tr, rule, req)
	case rules.TakeActionCaution:
		if s.caution != nil && s.caution(ctx, tr, rule) {
			return s.decide(ctx, OutcomeBlockedByPolicy, tr, rule, req)
		}
		return s.decide(ctx, OutcomeAllowedWithCaution, tr, rule, req)
	default:
		return s.decide(ctx, OutcomeBlockedByPolicy, tr, rule, req)
	}
}

// decide assembles the Decision and emits the outcome's stat event, metric
// and log line in one place.
func (s *Service) decide(ctx context.Context, outcome Outcome, tr *captcha.TokenResponse, rule *rules.Rule, req Request) (*Decision, error) {
	provider := s.verifier.Provider()

	decision := &Decision{
		Outcome:    outcome,
		Allowed:    outcome.allowed(),
		Message:    outcome.message(),
		ErrorCodes: []string{},
	}
	if tr != nil {
		decision.Threshold = tr.Threshold()
		decision.Score = tr.ResponseScore()
		decision.ErrorCodes = tr.ErrorCodes()
	}
	if rule != nil {
		decision.RuleID = rule.ID.String()
	}

	s.metrics.IncrementDecision(outcome.String(), provider.Name())

	if event, ok := outcomeEvent(outcome); ok {
		event.Provider = provider.Name()
		event.Tag = req.Tag
		event.RuleID = decision.RuleID
		if tr != nil {
			event.Action = tr.Action()
			event.Score = tr.ResponseScore()
			event.Threshold = tr.Threshold()
		}
		s.stats.Record(ctx, event)
	}

	logAttrs := []any{"outcome", outcome.String(), "tag", req.Tag, "allowed", decision.Allowed}
	if decision.RuleID != "" {
		logAttrs = append(logAttrs, "rule_id", decision.RuleID)
	}
	s.logger.InfoContext(ctx, "validation decided", logAttrs...)

	return decision, nil
}

// outcomeEvent maps decision outcomes to their stat events. The verification
// failure kinds (score, action, timeout) are already emitted by the token
// response checks; here only the policy-level outcomes are recorded.
func outcomeEvent(outcome Outcome) (stats.Event, bool) {
	switch outcome {
	case OutcomeValid:
		return stats.Event{Kind: stats.KindValid}, true
	case OutcomeBlockedByPolicy:
		return stats.Event{Kind: stats.KindPolicyBlocked}, true
	case OutcomeAllowedByPolicy:
		return stats.Event{Kind: stats.KindPolicyAllowed}, true
	case OutcomeAllowedWithCaution:
		return stats.Event{Kind: stats.KindPolicyCaution}, true
	}
	return stats.Event{}, false
}

func (s *Service) clearStash(ctx context.Context, sessionID string) {
	if s.sessions == nil || sessionID == "" {
		return
	}
	if err := s.sessions.Clear(ctx, sessionID); err != nil {
		s.logger.WarnContext(ctx, "clear session stash failed", "error", err)
	}
}

func (s *Service) stashSummary(ctx context.Context, req Request, tr *captcha.TokenResponse) {
	if s.sessions == nil || req.SessionID == "" {
		return
	}
	summary := session.Summary{
		Token:    req.Token,
		Score:    tr.ResponseScore(),
		Hostname: tr.ResponseHostname(),
		Action:   tr.ResponseAction(),
	}
	if err := s.sessions.Put(ctx, req.SessionID, summary, s.sessionTTL); err != nil {
		s.logger.WarnContext(ctx, "stash verification summary failed", "error", err)
	}
}

// TakeSummary consumes the stashed summary for a session, returning nil when
// none exists. Intended for the follow-up request after a redirect.
func (s *Service) TakeSummary(ctx context.Context, sessionID string) (*session.Summary, error) {
	if s.sessions == nil || sessionID == "" {
		return nil, nil
	}
	summary, err := s.sessions.Take(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return summary, nil
}
