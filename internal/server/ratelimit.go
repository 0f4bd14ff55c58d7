// ABOUTME: Per-client request rate limiting backed by Redis
// ABOUTME: Fixed one-minute window, counted with INCR plus first-hit EXPIRE

package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	rateLimitRequests = 4
	rateLimitWindow   = time.Minute
)

// Limiter decides whether a request from the given client key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter enforces a fixed-window limit of rateLimitRequests per
// rateLimitWindow per client key.
type RedisLimiter struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisLimiter connects to Redis at the given URL and verifies the
// connection with a ping.
func NewRedisLimiter(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisLimiter{
		client: client,
		logger: logger.With("component", "ratelimit"),
	}, nil
}

// Allow increments the client's window counter and reports whether the
// request is within the limit. The window starts at the first request.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := "ratelimit:" + key
	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, fmt.Errorf("incrementing rate limit counter: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, redisKey, rateLimitWindow).Err(); err != nil {
			return false, fmt.Errorf("setting rate limit window: %w", err)
		}
	}
	if count > rateLimitRequests {
		l.logger.Warn("rate limit exceeded", "client", key, "count", count)
		return false, nil
	}
	return true, nil
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// noopLimiter allows every request. Used when rate limiting is disabled.
type noopLimiter struct{}

func (noopLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}
