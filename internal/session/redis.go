package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "dfwizard:session:"

// RedisStore keeps one hash per session. Every write slides the expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, sid, key string) (string, bool, error) {
	if sid == "" {
		return "", false, ErrNoSession
	}
	v, err := s.client.HGet(ctx, redisKeyPrefix+sid, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis hget %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Set(ctx context.Context, sid, key, value string) error {
	if sid == "" {
		return ErrNoSession
	}
	hash := redisKeyPrefix + sid
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, hash, key, value)
	if s.ttl > 0 {
		pipe.Expire(ctx, hash, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Remove(ctx context.Context, sid, key string) error {
	if sid == "" {
		return ErrNoSession
	}
	if err := s.client.HDel(ctx, redisKeyPrefix+sid, key).Err(); err != nil {
		return fmt.Errorf("redis hdel %s: %w", key, err)
	}
	return nil
}
