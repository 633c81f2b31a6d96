package analyses

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PTTL(ctx context.Context, key string) *redis.DurationCmd
}

// RedisPollLimiter shares the poll window across API replicas with an
// INCR + PEXPIRE counter per key.
type RedisPollLimiter struct {
	client redisCounter
	prefix string
	window time.Duration
}

// NewRedisPollLimiter builds a limiter over an existing Redis client.
func NewRedisPollLimiter(client redis.UniversalClient, window time.Duration) *RedisPollLimiter {
	return newRedisPollLimiter(client, window)
}

func newRedisPollLimiter(client redisCounter, window time.Duration) *RedisPollLimiter {
	if window <= 0 {
		window = pollLimitWindow
	}
	return &RedisPollLimiter{client: client, prefix: "supercv:poll:", window: window}
}

// Allow admits the first read of each window. Redis errors are returned with
// allowed=true so callers can fail open.
func (l *RedisPollLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	redisKey := l.prefix + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return true, 0, err
	}
	if count == 1 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return true, 0, err
		}
		return true, 0, nil
	}
	ttl, err := l.client.PTTL(ctx, redisKey).Result()
	if err != nil || ttl <= 0 {
		ttl = l.window
	}
	return false, ttl, nil
}

var _ PollLimiter = (*RedisPollLimiter)(nil)
