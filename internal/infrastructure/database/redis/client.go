// Package redis provides the Redis-backed cache used to memoize
// standardization-service answers across preparation batches.
package redis

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/turtacn/MolPrep-Engine/internal/config"
	"github.com/turtacn/MolPrep-Engine/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolPrep-Engine/pkg/errors"
)

// Client wraps the go-redis client with lifecycle management.
type Client struct {
	rdb    redis.UniversalClient
	cfg    config.RedisConfig
	logger logging.Logger
	mu     sync.Mutex
	closed bool
}

// NewClient connects to a standalone Redis instance and verifies the
// connection with a ping.
func NewClient(ctx context.Context, cfg config.RedisConfig, log logging.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, errors.ErrCodeCacheError, "redis connection failed")
	}

	log.Info("connected to Redis",
		logging.String("addr", cfg.Addr),
		logging.Int("db", cfg.DB),
	)

	return &Client{rdb: rdb, cfg: cfg, logger: log}, nil
}

// NewClientWithRDB wraps an existing go-redis client (for testing).
func NewClientWithRDB(rdb redis.UniversalClient, log logging.Logger) *Client {
	return &Client{rdb: rdb, logger: log}
}

// RDB returns the underlying go-redis client.
func (c *Client) RDB() redis.UniversalClient {
	return c.rdb
}

// HealthCheck verifies the Redis connection status.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "redis health check failed")
	}
	return nil
}

// Close shuts the client down.  Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("failed to close Redis client", logging.Err(err))
		return err
	}
	c.logger.Info("closed Redis client")
	return nil
}
