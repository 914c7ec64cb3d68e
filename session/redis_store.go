package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the pair under two fixed string keys so several console
// processes (or hosts) share one session.
type RedisStore struct {
	rdb        redis.UniversalClient
	accessKey  string
	refreshKey string
}

// NewRedisStore creates a RedisStore using keys "<prefix>:access" and
// "<prefix>:refresh".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	return &RedisStore{
		rdb:        rdb,
		accessKey:  prefix + ":access",
		refreshKey: prefix + ":refresh",
	}
}

func (s *RedisStore) Load(ctx context.Context) (Pair, error) {
	vals, err := s.rdb.MGet(ctx, s.accessKey, s.refreshKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Pair{}, fmt.Errorf("failed to load credentials: %w", err)
	}

	var p Pair
	if len(vals) == 2 {
		p.Access, _ = vals[0].(string)
		p.Refresh, _ = vals[1].(string)
	}
	return p, nil
}

// Save writes both keys in one MULTI/EXEC so readers never observe a new
// access token next to an old refresh token.
func (s *RedisStore) Save(ctx context.Context, p Pair) error {
	if err := p.validate(); err != nil {
		return err
	}
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.accessKey, p.Access, 0)
		pipe.Set(ctx, s.refreshKey, p.Refresh, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.accessKey, s.refreshKey).Err(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
