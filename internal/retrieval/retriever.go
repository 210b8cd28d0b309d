// Package retrieval embeds queries and searches the guideline index.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/index"
)

// DefaultTopK is the fan-out used for report generation.
const DefaultTopK = 6

// Retriever searches an index with queries embedded by the index's own model.
type Retriever struct {
	index    *index.Index
	embedder domain.Embedder
	logger   *logrus.Logger
}

// NewRetriever pairs an index with an embedder. It refuses an embedder whose
// model differs from the one the index was built with.
func NewRetriever(idx *index.Index, embedder domain.Embedder, logger *logrus.Logger) (*Retriever, error) {
	if idx == nil {
		return nil, domain.ErrIndexNotFound
	}
	if err := checkModel(idx, embedder); err != nil {
		return nil, err
	}
	return &Retriever{index: idx, embedder: embedder, logger: logger}, nil
}

func checkModel(idx *index.Index, embedder domain.Embedder) error {
	if idx.Model != embedder.ModelName() {
		return &domain.EmbeddingModelMismatch{IndexModel: idx.Model, RetrieverModel: embedder.ModelName()}
	}
	return nil
}

// Size returns the number of indexed vectors.
func (r *Retriever) Size() int {
	return r.index.Size()
}

// Model returns the embedding model shared by the index and the retriever.
func (r *Retriever) Model() string {
	return r.index.Model
}

// Retrieve embeds query, normalises it and returns up to min(k, size) results
// by descending score.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.ErrEmptyQuery
	}
	if err := checkModel(r.index, r.embedder); err != nil {
		return nil, err
	}
	if k <= 0 || r.index.Size() == 0 {
		return []domain.RetrievalResult{}, nil
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedding query: expected 1 vector, got %d", len(vecs))
	}
	q, ok := index.Normalize(vecs[0])
	if !ok {
		return nil, fmt.Errorf("embedding query: zero vector")
	}

	results, err := r.index.Search(q, k)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"k":       k,
		"results": len(results),
		"top":     domain.PassageIDs(results),
	}).Debug("Retrieved guideline passages")

	return results, nil
}
