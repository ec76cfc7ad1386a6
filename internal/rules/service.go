package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"tokengate/internal/captcha"
	"tokengate/pkg/apperrors"
	"tokengate/pkg/sentinel"
)

// Service owns rule lifecycle and lookup. Action normalization is delegated
// to the captcha provider so stored actions always use the provider's
// allowed character set.
type Service struct {
	store        Store
	provider     captcha.Provider
	defaultScore float64
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs the rules service. defaultScore is the process-wide
// threshold in [0,1] substituted when a stored score is out of bounds.
func New(st Store, provider captcha.Provider, defaultScore float64, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("captcha provider is required")
	}
	svc := &Service{
		store:        st,
		provider:     provider,
		defaultScore: defaultScore,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// DefaultThreshold returns the process default as a 0-100 percentage, the
// form rules store scores in.
func (s *Service) DefaultThreshold() int {
	return int(math.Round(s.defaultScore * 100))
}

// DefaultScore returns the process default on the 0.00-1.00 scale.
func (s *Service) DefaultScore() float64 { return s.defaultScore }

// Create validates, normalizes and persists a new rule.
func (s *Service) Create(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := s.normalize(rule); err != nil {
		return nil, err
	}
	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := s.store.Create(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, apperrors.Wrap(apperrors.CodeConflict, fmt.Sprintf("the tag %q already exists", rule.Tag), ErrDuplicateTag)
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "create rule", err)
	}
	return rule, nil
}

// Update normalizes and persists changes to an existing rule, keyed by tag.
func (s *Service) Update(ctx context.Context, rule *Rule) (*Rule, error) {
	if err := s.normalize(rule); err != nil {
		return nil, err
	}
	rule.UpdatedAt = time.Now().UTC()

	if err := s.store.Update(ctx, rule); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("no rule with tag %q", rule.Tag))
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "update rule", err)
	}
	return rule, nil
}

// Get returns the rule for a tag regardless of its enabled flag.
func (s *Service) Get(ctx context.Context, tag string) (*Rule, error) {
	rule, err := s.store.GetByTag(ctx, tag)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("no rule with tag %q", tag))
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "get rule", err)
	}
	return rule, nil
}

// Delete removes the rule for a tag.
func (s *Service) Delete(ctx context.Context, tag string) error {
	if err := s.store.Delete(ctx, tag); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return apperrors.New(apperrors.CodeNotFound, fmt.Sprintf("no rule with tag %q", tag))
		}
		return apperrors.Wrap(apperrors.CodeInternal, "delete rule", err)
	}
	return nil
}

// List returns all rules ordered by tag.
func (s *Service) List(ctx context.Context) ([]*Rule, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "list rules", err)
	}
	return list, nil
}

// Resolve returns the enabled rule for a tag, or nil when none applies.
//
// The first lookup of a tag with no rule at all auto-creates a disabled
// Block rule for later administrator review; because the placeholder is
// disabled it never changes the decision, and a concurrent auto-create
// losing the unique-constraint race is a benign no-op.
func (s *Service) Resolve(ctx context.Context, tag string) (*Rule, error) {
	if tag == "" {
		return nil, nil
	}

	rule, err := s.store.GetEnabledByTag(ctx, tag)
	if err == nil {
		return rule, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "resolve rule", err)
	}

	// No enabled rule. Make sure a placeholder exists so administrators can
	// find and review the tag.
	_, err = s.store.GetByTag(ctx, tag)
	if err == nil {
		return nil, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "resolve rule", err)
	}

	placeholder := &Rule{
		ID:           uuid.New(),
		Tag:          tag,
		Enabled:      false,
		Score:        s.DefaultThreshold(),
		ActionToTake: TakeActionBlock,
		AutoCreated:  true,
	}
	if err := s.normalize(placeholder); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	placeholder.CreatedAt = now
	placeholder.UpdatedAt = now

	if err := s.store.Create(ctx, placeholder); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Another request created the rule first; nothing to do.
			return nil, nil
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, "auto-create rule", err)
	}
	s.logger.InfoContext(ctx, "auto-created disabled rule for review", "tag", tag)
	return nil, nil
}

// normalize applies the save-time invariants: tag present and bounded,
// score within 0-100 or defaulted, action defaulting to the tag and stripped
// to the provider's character set in lower case, action-to-take defaulting
// to Block.
func (s *Service) normalize(rule *Rule) error {
	rule.Tag = strings.TrimSpace(rule.Tag)
	if rule.Tag == "" {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "this rule requires a tag", ErrEmptyTag)
	}
	if len(rule.Tag) > 64 {
		return apperrors.Wrap(apperrors.CodeInvalidInput, "rule tag exceeds 64 characters", ErrTagTooLong)
	}

	if rule.Score < 0 || rule.Score > 100 {
		rule.Score = s.DefaultThreshold()
	}

	if rule.Action == "" {
		rule.Action = rule.Tag
	}
	rule.Action = strings.ToLower(s.provider.FormatAction(rule.Action))

	if rule.ActionToTake == "" {
		rule.ActionToTake = TakeActionBlock
	}
	if !rule.ActionToTake.IsValid() {
		return apperrors.New(apperrors.CodeInvalidInput, fmt.Sprintf("invalid action to take %q", rule.ActionToTake))
	}
	return nil
}
