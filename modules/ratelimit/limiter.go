// Package ratelimit throttles per-connection chat traffic.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces Redis keys.
const DefaultKeyPrefix = "chat:ratelimit:"

// Limiter decides whether key may perform one more action.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// Forget drops any state kept for key.
	Forget(ctx context.Context, key string)
	Close() error
}

// Config selects and sizes a limiter.
type Config struct {
	// Limit is the number of actions allowed per Window. Zero disables limiting.
	Limit  int
	Window time.Duration

	// RedisAddr switches to the shared Redis sliding window when set.
	RedisAddr     string
	RedisPassword string
	KeyPrefix     string
}

// New builds the limiter described by cfg. A Redis limiter is pinged before
// it is returned.
func New(ctx context.Context, cfg Config) (Limiter, error) {
	if cfg.Limit <= 0 {
		return Unlimited{}, nil
	}
	if cfg.Window <= 0 {
		return nil, errors.New("ratelimit: window must be positive")
	}
	if cfg.RedisAddr == "" {
		return NewLocalLimiter(cfg.Limit, cfg.Window), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: connect to redis %s: %w", cfg.RedisAddr, err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return NewRedisLimiter(client, cfg.Limit, cfg.Window, WithKeyPrefix(prefix)), nil
}

// Unlimited allows everything.
type Unlimited struct{}

// Allow always reports true.
func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }

// Forget is a no-op.
func (Unlimited) Forget(context.Context, string) {}

// Close is a no-op.
func (Unlimited) Close() error { return nil }
