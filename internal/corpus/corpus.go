// Package corpus holds the curated guideline passages and the clinical rule table.
package corpus

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

//go:embed guidelines.toml
var defaultGuidelines []byte

// Default returns the built-in NICE/BDA corpus.
func Default() (domain.GuidelineCorpus, error) {
	return Parse(defaultGuidelines)
}

// LoadFile reads a TOML corpus from path. An empty path yields the built-in corpus.
func LoadFile(path string) (domain.GuidelineCorpus, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.GuidelineCorpus{}, fmt.Errorf("reading corpus %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates a TOML corpus. A corpus without passages is valid
// here; the index builder decides whether it can be indexed.
func Parse(data []byte) (domain.GuidelineCorpus, error) {
	var c domain.GuidelineCorpus
	if err := toml.Unmarshal(data, &c); err != nil {
		return domain.GuidelineCorpus{}, fmt.Errorf("decoding corpus: %w", err)
	}
	if err := Validate(c); err != nil {
		return domain.GuidelineCorpus{}, err
	}
	return c, nil
}

// Validate checks passage ids are present and unique and every passage has text.
func Validate(c domain.GuidelineCorpus) error {
	seen := make(map[string]struct{}, len(c.Passages))
	for i, p := range c.Passages {
		if strings.TrimSpace(p.ID) == "" {
			return fmt.Errorf("passage %d: missing id", i)
		}
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("passage %d: duplicate id %q", i, p.ID)
		}
		seen[p.ID] = struct{}{}
		if strings.TrimSpace(p.Text) == "" {
			return fmt.Errorf("passage %q: empty text", p.ID)
		}
	}
	return nil
}
