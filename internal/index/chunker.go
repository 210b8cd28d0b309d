// Package index builds, persists and searches the guideline vector index.
package index

import (
	"fmt"
	"strings"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// DefaultChunkSize is the default number of words per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of words shared by consecutive chunks.
const DefaultChunkOverlap = 200

// Chunker splits passage text into overlapping word windows.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the window size in words.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between windows in words.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a chunker with the given options.
func NewChunker(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Overlap must leave a positive stride.
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the window size in words.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the overlap in words.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits p into windows starting every chunkSize-overlap words.
// Whitespace-only text produces no chunks.
func (c *Chunker) Chunk(p domain.GuidelinePassage) []domain.Chunk {
	words := strings.Fields(p.Text)
	if len(words) == 0 {
		return nil
	}

	stride := c.chunkSize - c.overlap
	chunks := make([]domain.Chunk, 0, len(words)/stride+1)
	for start, i := 0, 0; start < len(words); start, i = start+stride, i+1 {
		end := start + c.chunkSize
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, domain.Chunk{
			ID:        ChunkID(p.ID, i),
			PassageID: p.ID,
			Source:    p.Source,
			Section:   p.Section,
			Text:      strings.Join(words[start:end], " "),
			Position:  i,
		})
	}
	return chunks
}

// ChunkID is the stable identifier of the i-th window of a passage.
func ChunkID(passageID string, i int) string {
	return fmt.Sprintf("%s_chunk_%d", passageID, i)
}
