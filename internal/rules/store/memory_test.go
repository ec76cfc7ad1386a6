package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tokengate/internal/rules"
	"tokengate/pkg/sentinel"
)

type MemoryStoreSuite struct {
	suite.Suite
	store *MemoryStore
	ctx   context.Context
}

func TestMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(MemoryStoreSuite))
}

func (s *MemoryStoreSuite) SetupTest() {
	s.store = NewMemory()
	s.ctx = context.Background()
}

func newTestRule(tag string, enabled bool) *rules.Rule {
	now := time.Now()
	return &rules.Rule{
		ID:           uuid.New(),
		Tag:          tag,
		Enabled:      enabled,
		Score:        70,
		Action:       tag,
		ActionToTake: rules.TakeActionBlock,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *MemoryStoreSuite) TestCreateAndGet() {
	rule := newTestRule("contact", true)
	s.Require().NoError(s.store.Create(s.ctx, rule))

	got, err := s.store.GetByTag(s.ctx, "contact")
	s.Require().NoError(err)
	s.Equal(rule.ID, got.ID)
	s.Equal(rules.TakeActionBlock, got.ActionToTake)

	_, err = s.store.GetByTag(s.ctx, "missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestCreateDuplicateTagConflicts() {
	s.Require().NoError(s.store.Create(s.ctx, newTestRule("contact", true)))
	err := s.store.Create(s.ctx, newTestRule("contact", false))
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *MemoryStoreSuite) TestGetEnabledByTag() {
	s.Require().NoError(s.store.Create(s.ctx, newTestRule("enabled", true)))
	s.Require().NoError(s.store.Create(s.ctx, newTestRule("disabled", false)))

	got, err := s.store.GetEnabledByTag(s.ctx, "enabled")
	s.Require().NoError(err)
	s.Equal("enabled", got.Tag)

	// A disabled rule behaves like no rule at all.
	_, err = s.store.GetEnabledByTag(s.ctx, "disabled")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestUpdate() {
	rule := newTestRule("contact", false)
	s.Require().NoError(s.store.Create(s.ctx, rule))

	rule.Enabled = true
	rule.ActionToTake = rules.TakeActionCaution
	s.Require().NoError(s.store.Update(s.ctx, rule))

	got, err := s.store.GetEnabledByTag(s.ctx, "contact")
	s.Require().NoError(err)
	s.Equal(rules.TakeActionCaution, got.ActionToTake)

	s.Require().ErrorIs(s.store.Update(s.ctx, newTestRule("missing", true)), sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestDelete() {
	s.Require().NoError(s.store.Create(s.ctx, newTestRule("contact", true)))
	s.Require().NoError(s.store.Delete(s.ctx, "contact"))
	_, err := s.store.GetByTag(s.ctx, "contact")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	s.Require().ErrorIs(s.store.Delete(s.ctx, "contact"), sentinel.ErrNotFound)
}

func (s *MemoryStoreSuite) TestListOrderedByTag() {
	for _, tag := range []string{"zulu", "alpha", "mike"} {
		s.Require().NoError(s.store.Create(s.ctx, newTestRule(tag, true)))
	}

	got, err := s.store.List(s.ctx)
	s.Require().NoError(err)
	require.Len(s.T(), got, 3)
	s.Equal("alpha", got[0].Tag)
	s.Equal("mike", got[1].Tag)
	s.Equal("zulu", got[2].Tag)
}

func (s *MemoryStoreSuite) TestReadsReturnCopies() {
	rule := newTestRule("contact", true)
	s.Require().NoError(s.store.Create(s.ctx, rule))

	got, err := s.store.GetByTag(s.ctx, "contact")
	s.Require().NoError(err)
	got.Enabled = false

	again, err := s.store.GetByTag(s.ctx, "contact")
	s.Require().NoError(err)
	s.True(again.Enabled, "mutating a returned rule must not affect the store")
}
