package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"tokengate/internal/platform/redis"
	"tokengate/pkg/sentinel"
)

const keyPrefix = "tokengate:session:"

// RedisStore stashes summaries in Redis so any instance behind a load
// balancer can serve the follow-up request. Take uses GETDEL, which keeps
// read-and-clear atomic without a watch loop.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Put(ctx context.Context, sessionID string, summary Summary, ttl time.Duration) error {
	data, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal session summary: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+sessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("stash session summary: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, sessionID string) (*Summary, error) {
	data, err := s.client.GetDel(ctx, keyPrefix+sessionID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("take session summary: %w", err)
	}

	var summary Summary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("unmarshal session summary: %w", err)
	}
	return &summary, nil
}

func (s *RedisStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, keyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("clear session summary: %w", err)
	}
	return nil
}
