// Package redis implements the domain cache interfaces on go-redis/v9. One
// shared connection backs four concerns: the read-through bill-of-lading
// cache, the pub/sub signal bus that feeds the WebSocket hub, the API rate
// limiter, and the poll lock that keeps a single replica advancing the
// block cursor.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ClientConfig holds connection parameters for the Redis client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client wraps one *redis.Client shared by every Redis-backed component.
type Client struct {
	rdb *redis.Client
}

// New connects and pings before returning, so a bad address or password
// fails at startup instead of on the first cache read.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	rdb := redis.NewClient(opts)

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping checks the Redis connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying hands the raw driver to the cache, bus, limiter, and lock types
// in this package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
