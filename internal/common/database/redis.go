// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"divine-dvm/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps the Redis client
type RedisClient struct {
	Client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedis creates a new Redis client. ttl bounds how long a claimed job id
// is remembered.
func NewRedis(cfg config.RedisConfig, ttl time.Duration) (*RedisClient, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	return NewRedisFromClient(rdb, cfg.KeyPrefix, ttl), nil
}

// NewRedisFromClient wraps an existing client, typically a mock in tests.
func NewRedisFromClient(rdb *redis.Client, keyPrefix string, ttl time.Duration) *RedisClient {
	return &RedisClient{Client: rdb, keyPrefix: keyPrefix, ttl: ttl}
}

// Ping tests the Redis connection
func (c *RedisClient) Ping(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *RedisClient) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// JobKey is the key a claimed job id is stored under.
func (c *RedisClient) JobKey(id string) string {
	if c.keyPrefix == "" {
		return "job:" + id
	}
	return c.keyPrefix + ":job:" + id
}

// Claim implements JobGuard with SET NX so replicas sharing the same Redis
// handle each request once.
func (c *RedisClient) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := c.Client.SetNX(ctx, c.JobKey(id), "1", c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", id, err)
	}
	return ok, nil
}

// Release forgets a claim so the id may be processed again.
func (c *RedisClient) Release(ctx context.Context, id string) error {
	if err := c.Client.Del(ctx, c.JobKey(id)).Err(); err != nil {
		return fmt.Errorf("redis release %s: %w", id, err)
	}
	return nil
}
