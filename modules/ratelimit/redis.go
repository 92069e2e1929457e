package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindow trims expired entries, counts the rest and records the new
// action only when the count is below the limit. Members are made unique with
// a companion counter key.
var slidingWindow = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local window_start = tonumber(ARGV[2])
	local limit = tonumber(ARGV[3])
	local window_ms = tonumber(ARGV[4])

	redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

	local current = redis.call('ZCARD', key)
	if current >= limit then
		return 0
	end

	local counter = redis.call('INCR', key .. ':counter')
	redis.call('ZADD', key, now, now .. ':' .. counter)
	local expire_seconds = math.ceil(window_ms / 1000)
	redis.call('EXPIRE', key, expire_seconds)
	redis.call('EXPIRE', key .. ':counter', expire_seconds)
	return 1
`)

// RedisLimiter implements a sliding window shared by every process pointed
// at the same Redis.
type RedisLimiter struct {
	client    *redis.Client
	keyPrefix string
	limit     int
	window    time.Duration
	now       func() time.Time
}

// RedisOption configures a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithKeyPrefix sets the prefix of every key the limiter writes.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLimiter) {
		l.keyPrefix = prefix
	}
}

// NewRedisLimiter creates a RedisLimiter.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		client:    client,
		keyPrefix: DefaultKeyPrefix,
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records one action for key if the window still has room.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	now := l.now()
	windowStart := now.Add(-l.window)

	res, err := slidingWindow.Run(ctx, l.client, []string{l.keyPrefix + key},
		now.UnixMilli(), windowStart.UnixMilli(), l.limit, l.window.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("redis script error: %w", err)
	}
	return res == 1, nil
}

// Forget clears the window for key.
func (l *RedisLimiter) Forget(ctx context.Context, key string) {
	redisKey := l.keyPrefix + key
	_ = l.client.Del(ctx, redisKey, redisKey+":counter").Err()
}

// Close closes the Redis client.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}
