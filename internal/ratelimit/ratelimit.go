// Package ratelimit caps complaint submissions per user and auth attempts
// per client address.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Counter is the subset of the Redis client the limiter needs.
type Counter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
	ExpireNX(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RedisLimiter allows limit submissions per user in a fixed window that
// starts with the user's first submission.
type RedisLimiter struct {
	client Counter
	limit  int64
	window time.Duration
	prefix string
}

func NewRedisLimiter(client Counter, limit int, window time.Duration, prefix string) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: prefix,
	}
}

func (l *RedisLimiter) key(userID uuid.UUID) string {
	return l.prefix + ":" + userID.String()
}

// Allow reports whether userID has quota left. It does not count a
// submission; call Record once the complaint is stored.
func (l *RedisLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	key := l.key(userID)

	count, err := l.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if count < l.limit {
		return true, nil
	}
	// An exhausted counter must still carry a window, or it never resets.
	if err := l.client.ExpireNX(ctx, key, l.window).Err(); err != nil {
		return false, fmt.Errorf("expire %s: %w", key, err)
	}
	return false, nil
}

// Record counts one stored submission. The window is applied with NX on
// every call, so a failed expiry is repaired by the next submission.
func (l *RedisLimiter) Record(ctx context.Context, userID uuid.UUID) error {
	key := l.key(userID)
	if err := l.client.Incr(ctx, key).Err(); err != nil {
		return fmt.Errorf("incr %s: %w", key, err)
	}
	if err := l.client.ExpireNX(ctx, key, l.window).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", key, err)
	}
	return nil
}

// LocalLimiter is an in-process token bucket per user, used when no Redis
// is configured. Counts are not shared between replicas.
type LocalLimiter struct {
	buckets *keyedLimiters[uuid.UUID]
}

// NewLocalLimiter refills limit tokens evenly over window. A user idle for
// a whole window is forgotten, since their bucket would be full again.
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit < 1 {
		limit = 1
	}
	return &LocalLimiter{
		buckets: newKeyedLimiters[uuid.UUID](rate.Every(window/time.Duration(limit)), limit, window),
	}
}

func (l *LocalLimiter) Allow(ctx context.Context, userID uuid.UUID) (bool, error) {
	return l.buckets.get(userID).Tokens() >= 1, nil
}

func (l *LocalLimiter) Record(ctx context.Context, userID uuid.UUID) error {
	l.buckets.get(userID).Allow()
	return nil
}
