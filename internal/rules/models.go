// Package rules manages per-tag verification policies. A rule decides what
// happens when token verification fails for the form or flow carrying its tag.
package rules

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ActionToTake is what a rule does when verification fails.
type ActionToTake string

const (
	// TakeActionBlock fails the request with the possible-spam message.
	TakeActionBlock ActionToTake = "Block"
	// TakeActionCaution lets the request proceed by default but allows an
	// extension hook to still block; the outcome is always stat-logged.
	TakeActionCaution ActionToTake = "Caution"
	// TakeActionAllow lets the request proceed, stat-logged with the rule id.
	TakeActionAllow ActionToTake = "Allow"
)

// IsValid checks if the value is one of the supported enum values.
func (a ActionToTake) IsValid() bool {
	switch a {
	case TakeActionBlock, TakeActionCaution, TakeActionAllow:
		return true
	}
	return false
}

func (a ActionToTake) String() string { return string(a) }

// Validation errors surfaced at rule-save time.
var (
	ErrEmptyTag     = errors.New("rule tag is required")
	ErrTagTooLong   = errors.New("rule tag exceeds 64 characters")
	ErrDuplicateTag = errors.New("rule tag already exists")
)

// Rule is a persisted, tag-keyed policy. Tags are globally unique; the store
// enforces that with a unique constraint, which also arbitrates concurrent
// auto-creation races.
type Rule struct {
	ID           uuid.UUID    `json:"id"`
	Tag          string       `json:"tag"`
	Enabled      bool         `json:"enabled"`
	Score        int          `json:"score"` // threshold as a percentage, 0-100
	Action       string       `json:"action"`
	ActionToTake ActionToTake `json:"action_to_take"`
	AutoCreated  bool         `json:"auto_created"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Threshold converts the stored percentage to the 0.00-1.00 form the
// verification API uses. An out-of-bounds stored score substitutes the
// process default instead of failing the evaluation.
func (r *Rule) Threshold(defaultScore float64) float64 {
	if r.Score < 0 || r.Score > 100 {
		return defaultScore
	}
	return float64(r.Score) / 100
}

// Store is the persistence contract for rules, implemented by the backends
// under store. Tag uniqueness is a store invariant: Create returns
// sentinel.ErrConflict when the tag exists, which concurrent auto-creation
// relies on to pick a single winner.
type Store interface {
	Create(ctx context.Context, rule *Rule) error
	// GetByTag returns the rule for a tag regardless of its enabled flag.
	GetByTag(ctx context.Context, tag string) (*Rule, error)
	// GetEnabledByTag returns the rule only when it is enabled; a disabled
	// rule behaves like no rule at all (sentinel.ErrNotFound).
	GetEnabledByTag(ctx context.Context, tag string) (*Rule, error)
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, tag string) error
	// List returns all rules ordered by tag.
	List(ctx context.Context) ([]*Rule, error)
}

// SystemTags are well-known tags for common actions, offered to
// administrators when creating rules.
var SystemTags = []string{
	"lostpassword",
	"changepassword",
	"login",
	"register",
	"newslettersubscribe",
}
