// Package redis wraps go-redis for the pieces of state that must be shared
// between server instances: the spent single-use token ledger.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aryan0dhankhar/requestdesk/internal/reliability/retry"
)

// keyPrefix namespaces every key so the instance can share a Redis database.
const keyPrefix = "requestdesk:"

type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

var connectRetry = &retry.Config{
	MaxAttempts:       4,
	InitialBackoff:    500 * time.Millisecond,
	MaxBackoff:        4 * time.Second,
	BackoffMultiplier: 2,
}

// NewClient parses a redis:// URL and waits for the server to answer a ping.
func NewClient(url string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	c := &Client{rdb: redis.NewClient(opts), logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	if _, err := retry.Do(ctx, connectRetry, logger, "redis ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.Ping(ctx)
	}); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connected", slog.String("addr", opts.Addr), slog.Int("db", opts.DB))
	return c, nil
}

// SetNX stores value under the namespaced key only if it does not exist yet.
// It reports whether this call set it.
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, keyPrefix+key, value, ttl).Result()
	if err != nil {
		c.logger.Error("redis setnx failed", slog.String("key", key), slog.String("error", err.Error()))
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Ping backs the /readyz check.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
