package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const ratePrefix = "rate:"

// RedisRateStore implements fixed-window request counters in Redis.
// INCR is atomic, so concurrent requests from one client cannot race the
// count; the key TTL doubles as both the window boundary and the eviction
// mechanism for idle clients.
type RedisRateStore struct {
	client *redis.Client
}

// NewRedisRateStore creates a rate counter store backed by Redis.
func NewRedisRateStore(client *redis.Client) *RedisRateStore {
	return &RedisRateStore{client: client}
}

func (s *RedisRateStore) Incr(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	redisKey := ratePrefix + key

	count, err := s.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		// First hit opens the window. NX guards against clobbering a TTL
		// set by a concurrent first hit that lost the INCR race.
		if err := s.client.ExpireNX(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	ttl, err := s.client.TTL(ctx, redisKey).Result()
	if err != nil {
		return 0, 0, err
	}
	if ttl < 0 {
		// Counter survived without a TTL (expiry raced a crash); reset the
		// window rather than letting the key throttle forever.
		if err := s.client.Expire(ctx, redisKey, window).Err(); err != nil {
			return 0, 0, err
		}
		ttl = window
	}
	return count, ttl, nil
}
