package index

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// Index is an exact inner-product index over unit vectors, so scores are cosine
// similarities. It is immutable once built; rebuild rather than patch.
type Index struct {
	BuildID       string
	Model         string
	Dimension     int
	CorpusVersion string
	CorpusDigest  string
	CreatedAt     time.Time

	entries []domain.Chunk
	vectors []float32 // row-major, len(entries) * Dimension
}

// Size returns the number of indexed vectors.
func (idx *Index) Size() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

// Entries returns the metadata rows in index order.
func (idx *Index) Entries() []domain.Chunk {
	out := make([]domain.Chunk, len(idx.entries))
	copy(out, idx.entries)
	return out
}

func (idx *Index) vector(i int) []float32 {
	return idx.vectors[i*idx.Dimension : (i+1)*idx.Dimension]
}

type hit struct {
	pos   int
	score float64
}

// Search returns up to k results by descending score. Ties keep index order.
// k <= 0 or an empty index yields an empty result.
func (idx *Index) Search(query []float32, k int) ([]domain.RetrievalResult, error) {
	n := idx.Size()
	if n == 0 || k <= 0 {
		return []domain.RetrievalResult{}, nil
	}
	if len(query) != idx.Dimension {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d", len(query), idx.Dimension)
	}
	if k > n {
		k = n
	}

	hits := make([]hit, n)
	for i := 0; i < n; i++ {
		hits[i] = hit{pos: i, score: dot(query, idx.vector(i))}
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].score > hits[b].score
	})

	results := make([]domain.RetrievalResult, k)
	for i, h := range hits[:k] {
		e := idx.entries[h.pos]
		results[i] = domain.RetrievalResult{
			PassageID: e.PassageID,
			ChunkID:   e.ID,
			Source:    e.Source,
			Section:   e.Section,
			Score:     h.score,
			Text:      e.Text,
		}
	}
	return results, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

// Normalize returns v scaled to unit L2 norm. It reports false for a zero vector.
func Normalize(v []float32) ([]float32, bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 || math.IsNaN(sum) || math.IsInf(sum, 0) {
		return nil, false
	}
	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}
