package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

const defaultBatchSize = 64

// Builder turns a corpus into an Index.
type Builder struct {
	embedder  domain.Embedder
	chunker   *Chunker
	batchSize int
	logger    *logrus.Logger
	now       func() time.Time
}

// NewBuilder creates a builder that embeds chunks produced by chunker.
func NewBuilder(embedder domain.Embedder, chunker *Chunker, logger *logrus.Logger) *Builder {
	if chunker == nil {
		chunker = NewChunker()
	}
	return &Builder{
		embedder:  embedder,
		chunker:   chunker,
		batchSize: defaultBatchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Build chunks every passage, embeds the chunks, L2-normalises the vectors and
// returns an in-memory index. Nothing is written to disk.
func (b *Builder) Build(ctx context.Context, corpus domain.GuidelineCorpus) (*Index, error) {
	if len(corpus.Passages) == 0 {
		return nil, &domain.IndexBuildError{Reason: "corpus is empty"}
	}

	var chunks []domain.Chunk
	for _, p := range corpus.Passages {
		chunks = append(chunks, b.chunker.Chunk(p)...)
	}
	if len(chunks) == 0 {
		return nil, &domain.IndexBuildError{Reason: "corpus produced no chunks"}
	}

	b.logger.WithFields(logrus.Fields{
		"passages": len(corpus.Passages),
		"chunks":   len(chunks),
		"model":    b.embedder.ModelName(),
	}).Info("Embedding guideline chunks")

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := b.embedder.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, &domain.IndexBuildError{Reason: "embedding failed", Err: err}
		}
		embeddings = append(embeddings, batch...)
	}

	if len(embeddings) == 0 {
		return nil, &domain.IndexBuildError{Reason: "embedding returned zero vectors"}
	}
	if len(embeddings) != len(chunks) {
		return nil, &domain.IndexBuildError{
			Reason: fmt.Sprintf("embedding returned %d vectors for %d chunks", len(embeddings), len(chunks)),
		}
	}

	dim := len(embeddings[0])
	if dim == 0 {
		return nil, &domain.IndexBuildError{Reason: "embedding returned empty vectors"}
	}

	vectors := make([]float32, 0, len(chunks)*dim)
	for i, e := range embeddings {
		if len(e) != dim {
			return nil, &domain.IndexBuildError{
				Reason: fmt.Sprintf("chunk %s has dimension %d, expected %d", chunks[i].ID, len(e), dim),
			}
		}
		unit, ok := Normalize(e)
		if !ok {
			return nil, &domain.IndexBuildError{Reason: fmt.Sprintf("chunk %s has a zero embedding", chunks[i].ID)}
		}
		vectors = append(vectors, unit...)
	}

	idx := &Index{
		BuildID:       uuid.NewString(),
		Model:         b.embedder.ModelName(),
		Dimension:     dim,
		CorpusVersion: corpus.Version,
		CorpusDigest:  b.Digest(corpus),
		CreatedAt:     b.now().UTC(),
		entries:       chunks,
		vectors:       vectors,
	}

	b.logger.WithFields(logrus.Fields{
		"build_id":  idx.BuildID,
		"vectors":   idx.Size(),
		"dimension": dim,
	}).Info("Index built")

	return idx, nil
}

// Digest fingerprints the corpus content together with the chunking settings.
// An index whose digest differs from the current corpus is stale.
func (b *Builder) Digest(corpus domain.GuidelineCorpus) string {
	h := sha256.New()
	field := func(s string) {
		io.WriteString(h, s)
		h.Write([]byte{0})
	}
	field(corpus.Version)
	field(strconv.Itoa(b.chunker.chunkSize))
	field(strconv.Itoa(b.chunker.overlap))
	for _, p := range corpus.Passages {
		field(p.ID)
		field(p.Source)
		field(p.Section)
		field(p.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}
