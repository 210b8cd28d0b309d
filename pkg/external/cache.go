package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// CacheClient stores embedding vectors in Redis.
type CacheClient struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// NewCacheClient connects to the Redis instance in config and pings it.
func NewCacheClient(config domain.CacheConfig) (*CacheClient, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewCacheClientWithRedis(client, config.TTL), nil
}

// NewCacheClientWithRedis wraps an existing client.
func NewCacheClientWithRedis(client *redis.Client, ttl time.Duration) *CacheClient {
	return &CacheClient{redis: client, defaultTTL: ttl}
}

// CachedVector is a stored embedding with metadata
type CachedVector struct {
	Vector   []float32 `json:"vector"`
	CachedAt time.Time `json:"cached_at"`
}

// Get returns the vector stored under key.
func (c *CacheClient) Get(ctx context.Context, key string) ([]float32, bool, error) {
	val, err := c.redis.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cached embedding: %w", err)
	}

	var cached CachedVector
	if err := json.Unmarshal([]byte(val), &cached); err != nil || len(cached.Vector) == 0 {
		// corrupted entry
		c.redis.Del(ctx, key)
		return nil, false, nil
	}
	return cached.Vector, true, nil
}

// Set stores vector under key with the default TTL.
func (c *CacheClient) Set(ctx context.Context, key string, vector []float32) error {
	data, err := json.Marshal(CachedVector{Vector: vector, CachedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal embedding cache data: %w", err)
	}
	return c.redis.Set(ctx, key, data, c.defaultTTL).Err()
}

// InvalidatePattern removes all cached data matching a pattern
func (c *CacheClient) InvalidatePattern(ctx context.Context, pattern string) error {
	var keys []string
	iter := c.redis.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys for pattern %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil
	}
	return c.redis.Del(ctx, keys...).Err()
}

// Ping checks if Redis connection is alive
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.redis.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *CacheClient) Close() error {
	return c.redis.Close()
}
