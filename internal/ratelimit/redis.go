package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps counters in Redis so limits hold across replicas.
// INCR carries the atomic check-and-increment; a separate block key with
// its own TTL models the escalating lockout.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter connects to Redis and verifies the connection.
func NewRedisLimiter(ctx context.Context, opts RedisOptions) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "ratelimit"
	}

	return &RedisLimiter{client: client, prefix: prefix}, nil
}

// Check counts one request against (identifier, action).
func (l *RedisLimiter) Check(ctx context.Context, identifier, action string, cfg Config) (Decision, error) {
	blockKey := l.blockKey(identifier, action)

	blockTTL, err := l.client.TTL(ctx, blockKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to read block key: %w", err)
	}
	if blockTTL > 0 {
		return Decision{RetryAfter: ceilSeconds(blockTTL)}, nil
	}

	countKey := l.countKey(identifier, action)

	// INCR and the window expiry run in one MULTI/EXEC so the counter
	// cannot outlive its window
	var incr *redis.IntCmd
	_, err = l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, countKey)
		pipe.ExpireNX(ctx, countKey, cfg.Window)
		return nil
	})
	if err != nil {
		return Decision{}, fmt.Errorf("failed to increment counter: %w", err)
	}

	count := int(incr.Val())
	if count <= cfg.MaxRequests {
		return Decision{Allowed: true, Remaining: cfg.MaxRequests - count}, nil
	}

	if cfg.BlockDuration > 0 {
		return l.applyBlock(ctx, blockKey, cfg)
	}

	ttl, err := l.client.TTL(ctx, countKey).Result()
	if err != nil || ttl <= 0 {
		return Decision{RetryAfter: 1}, nil
	}
	return Decision{RetryAfter: ceilSeconds(ttl)}, nil
}

// applyBlock starts the lockout, or reads the remaining time if another
// request already started it.
func (l *RedisLimiter) applyBlock(ctx context.Context, blockKey string, cfg Config) (Decision, error) {
	set, err := l.client.SetNX(ctx, blockKey, "1", cfg.BlockDuration).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("failed to set block key: %w", err)
	}
	if set {
		return Decision{RetryAfter: int(cfg.BlockDuration / time.Second)}, nil
	}

	ttl, err := l.client.TTL(ctx, blockKey).Result()
	if err != nil || ttl <= 0 {
		return Decision{RetryAfter: int(cfg.BlockDuration / time.Second)}, nil
	}
	return Decision{RetryAfter: ceilSeconds(ttl)}, nil
}

// Reset clears all state for (identifier, action), including any block.
func (l *RedisLimiter) Reset(ctx context.Context, identifier, action string) error {
	err := l.client.Del(ctx, l.countKey(identifier, action), l.blockKey(identifier, action)).Err()
	if err != nil {
		return fmt.Errorf("failed to reset rate limit: %w", err)
	}
	return nil
}

// Ping verifies the Redis connection, for readiness checks.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// Close releases the Redis connection.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

func (l *RedisLimiter) countKey(identifier, action string) string {
	return fmt.Sprintf("%s:count:%s:%s", l.prefix, action, identifier)
}

func (l *RedisLimiter) blockKey(identifier, action string) string {
	return fmt.Sprintf("%s:block:%s:%s", l.prefix, action, identifier)
}
