package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultTTL = 24 * time.Hour

// RedisStore claims keys with SET NX so only the first delivery of an event id proceeds.
type RedisStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisStore(rdb redis.Cmdable, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func redisKey(scope, key string) string {
	return "idemp:" + scope + ":" + key
}

func (s *RedisStore) Claim(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, redisKey(scope, key), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency: claim %s/%s: %w", scope, key, err)
	}
	return ok, nil
}

// Release drops a claim so a later redelivery can run again.
func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	if err := s.rdb.Del(ctx, redisKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("idempotency: release %s/%s: %w", scope, key, err)
	}
	return nil
}

// NewRedisClient dials and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("idempotency: ping redis %s: %w", addr, err)
	}
	return rdb, nil
}
