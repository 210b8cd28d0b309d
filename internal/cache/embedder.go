package cache

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// CachedEmbedder wraps an Embedder with a VectorCache. Cache failures are
// logged and fall through to the embedder.
type CachedEmbedder struct {
	next   domain.Embedder
	cache  VectorCache
	logger *logrus.Logger
}

// NewCachedEmbedder returns next unchanged when cache is nil.
func NewCachedEmbedder(next domain.Embedder, cache VectorCache, logger *logrus.Logger) domain.Embedder {
	if cache == nil {
		return next
	}
	return &CachedEmbedder{next: next, cache: cache, logger: logger}
}

func (e *CachedEmbedder) ModelName() string {
	return e.next.ModelName()
}

// Embed serves hits from the cache and embeds only the misses, in one call.
func (e *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.next.ModelName()
	out := make([][]float32, len(texts))

	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		v, ok, err := e.cache.Get(ctx, Key(model, text))
		if err != nil {
			e.logger.WithError(err).Warn("Embedding cache read failed")
		}
		if ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	vectors, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, v := range vectors {
		if j >= len(missIdx) {
			break
		}
		out[missIdx[j]] = v
		if err := e.cache.Set(ctx, Key(model, missTexts[j]), v); err != nil {
			e.logger.WithError(err).Warn("Embedding cache write failed")
		}
	}

	e.logger.WithFields(logrus.Fields{
		"hits":   len(texts) - len(missTexts),
		"misses": len(missTexts),
	}).Debug("Embedding cache lookup")
	return out, nil
}
