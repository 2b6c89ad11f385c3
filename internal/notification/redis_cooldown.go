package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

const defaultKeyPrefix = "alerts:cooldown:"

// RedisCooldown shares the cooldown across processes with SET NX PX: the
// first writer of a key wins and the key expires after the window. Expiry is
// millisecond-granular, so a key becomes sendable again one millisecond past
// the window rather than at the exact boundary.
//
// When Redis is unreachable the decision falls back to an in-process
// MemoryCooldown with the same window.
type RedisCooldown struct {
	client   *goredis.Client
	window   time.Duration
	prefix   string
	fallback *MemoryCooldown
}

// NewRedisCooldown connects to addr and verifies the connection.
func NewRedisCooldown(ctx context.Context, addr, password string, window time.Duration) (*RedisCooldown, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:         addr,
		Password:     password,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}

	return NewRedisCooldownWithClient(client, window), nil
}

// NewRedisCooldownWithClient uses an existing client.
func NewRedisCooldownWithClient(client *goredis.Client, window time.Duration) *RedisCooldown {
	return &RedisCooldown{
		client:   client,
		window:   window,
		prefix:   defaultKeyPrefix,
		fallback: NewMemoryCooldown(window),
	}
}

func (c *RedisCooldown) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	if c.window <= 0 {
		return true, nil
	}

	// One millisecond past the window keeps the boundary itself suppressed.
	ttl := c.window + time.Millisecond
	ok, err := c.client.SetNX(ctx, c.prefix+key, now.UnixMilli(), ttl).Result()
	if err != nil {
		slog.Warn("[cooldown] redis unavailable, using local cooldown", "key", key, "error", err)
		return c.fallback.allow(key, now), nil
	}
	return ok, nil
}

// Client returns the underlying client for health checks.
func (c *RedisCooldown) Client() *goredis.Client { return c.client }

// Close releases the Redis connection pool.
func (c *RedisCooldown) Close() error {
	return c.client.Close()
}
