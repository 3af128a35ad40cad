// Package redis backs the price cache, the event publisher and the API rate
// limiter with go-redis/v9.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jmcalloway/dexarb/internal/config"
)

// dialTimeout bounds the startup ping so a wedged Redis fails fast instead of
// stalling the whole wiring sequence.
const dialTimeout = 5 * time.Second

// Client owns the driver connection shared by the cache types in this package.
type Client struct {
	rdb *redis.Client
}

// New dials Redis per the engine configuration and verifies connectivity. The
// scanner and oracle depend on the price cache, so a dead Redis fails startup
// rather than surfacing later as universally stale prices.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(options(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Addr, err)
	}
	return &Client{rdb: rdb}, nil
}

// options maps the engine config onto driver options, filling in a pool size
// when the config leaves it zero.
func options(cfg config.RedisConfig) *redis.Options {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts
}

// Ping checks the connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the driver client to the cache types in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
