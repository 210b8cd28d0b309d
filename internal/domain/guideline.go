package domain

// GuidelinePassage is a citable unit of guideline text with a stable identifier.
type GuidelinePassage struct {
	ID      string `json:"id" toml:"id"`
	Source  string `json:"source" toml:"source"`
	Section string `json:"section" toml:"section"`
	Text    string `json:"text" toml:"text"`
}

// GuidelineCorpus is an immutable, versioned set of passages.
type GuidelineCorpus struct {
	Version  string             `json:"version" toml:"version"`
	Passages []GuidelinePassage `json:"passages" toml:"passages"`
}

// Chunk is a word window cut from a single passage.
type Chunk struct {
	ID        string `json:"chunk_id"`
	PassageID string `json:"passage_id"`
	Source    string `json:"source"`
	Section   string `json:"section"`
	Text      string `json:"text"`
	Position  int    `json:"position"`
}

// IndexedVector is a unit-length embedding paired with the chunk it was computed from.
type IndexedVector struct {
	PassageID string    `json:"passage_id"`
	ChunkID   string    `json:"chunk_id"`
	Embedding []float32 `json:"-"`
}

// RetrievalResult is one ranked hit. Never persisted.
type RetrievalResult struct {
	PassageID string  `json:"passage_id"`
	ChunkID   string  `json:"chunk_id"`
	Source    string  `json:"source"`
	Section   string  `json:"section"`
	Score     float64 `json:"score"`
	Text      string  `json:"text"`
}

// PassageIDs returns the passage ids of results in rank order, without duplicates.
func PassageIDs(results []RetrievalResult) []string {
	seen := make(map[string]struct{}, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.PassageID]; ok {
			continue
		}
		seen[r.PassageID] = struct{}{}
		ids = append(ids, r.PassageID)
	}
	return ids
}
