package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/logging"
	"github.com/diabetes-report-mcp-server/internal/testutil"
)

type failingCache struct{}

func (failingCache) Get(context.Context, string) ([]float32, bool, error) {
	return nil, false, errors.New("cache down")
}

func (failingCache) Set(context.Context, string, []float32) error {
	return errors.New("cache down")
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("m", "hello"), Key("m", "hello"))
	assert.NotEqual(t, Key("m", "hello"), Key("other", "hello"))
	assert.NotEqual(t, Key("m", "hello"), Key("m", "hello "))
	assert.Contains(t, Key("text-embedding-3-small", "x"), "embedding:text-embedding-3-small:")
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(2, 0)

	require.NoError(t, c.Set(ctx, "a", []float32{1}))
	require.NoError(t, c.Set(ctx, "b", []float32{2}))
	require.NoError(t, c.Set(ctx, "c", []float32{3}))

	_, ok, _ := c.Get(ctx, "a")
	assert.False(t, ok, "oldest entry evicted")
	v, ok, _ := c.Get(ctx, "c")
	assert.True(t, ok)
	assert.Equal(t, []float32{3}, v)
	assert.Equal(t, 2, c.Len())
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(10, 20*time.Millisecond)
	require.NoError(t, c.Set(ctx, "a", []float32{1}))

	assert.Eventually(t, func() bool {
		_, ok, _ := c.Get(ctx, "a")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestCachedEmbedder(t *testing.T) {
	ctx := context.Background()
	inner := testutil.NewHashEmbedder("hash-64")
	e := NewCachedEmbedder(inner, NewMemoryCache(16, time.Hour), logging.Discard())

	assert.Equal(t, "hash-64", e.ModelName())

	first, err := e.Embed(ctx, []string{"hba1c control", "blood pressure"})
	require.NoError(t, err)
	assert.Equal(t, 1, inner.Calls)

	second, err := e.Embed(ctx, []string{"blood pressure", "lipids", "hba1c control"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Calls)
	assert.Equal(t, first[1], second[0])
	assert.Equal(t, first[0], second[2])

	_, err = e.Embed(ctx, []string{"lipids"})
	require.NoError(t, err)
	assert.Equal(t, 2, inner.Calls, "all hits, no embedding call")
}

func TestCachedEmbedder_CacheFailuresFallThrough(t *testing.T) {
	inner := testutil.NewHashEmbedder("hash-64")
	e := NewCachedEmbedder(inner, failingCache{}, logging.Discard())

	vectors, err := e.Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
}

func TestCachedEmbedder_PropagatesEmbedError(t *testing.T) {
	inner := testutil.NewHashEmbedder("hash-64")
	inner.Err = errors.New("quota exceeded")
	e := NewCachedEmbedder(inner, NewMemoryCache(4, 0), logging.Discard())

	_, err := e.Embed(context.Background(), []string{"a"})
	assert.EqualError(t, err, "quota exceeded")
}

func TestNewCachedEmbedder_NilCache(t *testing.T) {
	inner := testutil.NewHashEmbedder("hash-64")
	assert.Same(t, domain.Embedder(inner), NewCachedEmbedder(inner, nil, logging.Discard()))
}

func TestNew(t *testing.T) {
	c, closer, err := New(domain.CacheConfig{Backend: "memory", Size: 8}, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache{}, c)
	assert.NoError(t, closer())

	c, _, err = New(domain.CacheConfig{Backend: "none"}, logging.Discard())
	require.NoError(t, err)
	assert.Nil(t, c)

	_, _, err = New(domain.CacheConfig{Backend: "memcached"}, logging.Discard())
	assert.Error(t, err)
}
