//go:build integration

package session_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformredis "tokengate/internal/platform/redis"
	"tokengate/internal/session"
	"tokengate/pkg/sentinel"
	"tokengate/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	ctx       context.Context
	container *containers.RedisContainer
	store     *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.container = containers.NewRedisContainer(s.T())

	client, err := platformredis.New(s.container.Addr)
	s.Require().NoError(err)
	s.store = session.NewRedisStore(client)
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.container.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestPutTakeRoundTrip() {
	score := 0.7
	err := s.store.Put(s.ctx, "sess-1", session.Summary{
		Token:    "tok-abc",
		Score:    &score,
		Hostname: "example.com",
		Action:   "register",
	}, time.Minute)
	s.Require().NoError(err)

	got, err := s.store.Take(s.ctx, "sess-1")
	s.Require().NoError(err)
	s.Equal("tok-abc", got.Token)
	s.Require().NotNil(got.Score)
	s.InDelta(0.7, *got.Score, 0.0001)
	s.Equal("register", got.Action)

	_, err = s.store.Take(s.ctx, "sess-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestTakeUnknownSession() {
	_, err := s.store.Take(s.ctx, "missing")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestClear() {
	s.Require().NoError(s.store.Put(s.ctx, "sess-1", session.Summary{Token: "tok"}, time.Minute))
	s.Require().NoError(s.store.Clear(s.ctx, "sess-1"))

	_, err := s.store.Take(s.ctx, "sess-1")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *RedisStoreSuite) TestTTLExpiry() {
	s.Require().NoError(s.store.Put(s.ctx, "sess-1", session.Summary{Token: "tok"}, 50*time.Millisecond))

	s.Eventually(func() bool {
		_, err := s.store.Take(s.ctx, "sess-1")
		return err != nil
	}, 2*time.Second, 50*time.Millisecond)
}
