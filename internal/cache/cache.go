// Package cache memoises query embeddings so repeated retrievals skip the
// embedding endpoint.
package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/pkg/external"
)

// VectorCache stores embeddings by key.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// Key derives the cache key for text embedded with model.
func Key(model, text string) string {
	hash := sha256.Sum256([]byte(model + "\x00" + text))
	return fmt.Sprintf("embedding:%s:%x", model, hash[:16])
}

// MemoryCache is an in-process LRU with per-entry expiry.
type MemoryCache struct {
	lru *expirable.LRU[string, []float32]
}

// NewMemoryCache holds up to size vectors for ttl each. A zero ttl never expires.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = 1024
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.lru.Get(key)
	return v, ok, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, vector []float32) error {
	c.lru.Add(key, vector)
	return nil
}

// Len returns the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// New selects a cache backend from config. The returned closer releases
// backend connections and is never nil.
func New(cfg domain.CacheConfig, logger *logrus.Logger) (VectorCache, func() error, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryCache(cfg.Size, cfg.TTL), func() error { return nil }, nil
	case "redis":
		client, err := external.NewCacheClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		logger.WithField("backend", "redis").Info("Embedding cache connected")
		return client, client.Close, nil
	case "none":
		return nil, func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
