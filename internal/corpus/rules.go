package corpus

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

//go:embed rules.json
var defaultRules []byte

// DefaultRules returns the built-in traffic-light thresholds.
func DefaultRules() (domain.RuleTable, error) {
	return ParseRules(defaultRules)
}

// LoadRules reads a rule table from path. An empty path yields the built-in table.
func LoadRules(path string) (domain.RuleTable, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.RuleTable{}, fmt.Errorf("reading rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes a rule table and checks every threshold pair is ordered.
func ParseRules(data []byte) (domain.RuleTable, error) {
	var t domain.RuleTable
	if err := json.Unmarshal(data, &t); err != nil {
		return domain.RuleTable{}, fmt.Errorf("decoding rules: %w", err)
	}
	for metric, th := range t.Traffic {
		if th.AmberMax < th.GreenMax {
			return domain.RuleTable{}, fmt.Errorf("rule %q: amber_max %v below green_max %v",
				metric, th.AmberMax, th.GreenMax)
		}
	}
	if t.Traffic == nil {
		t.Traffic = map[string]domain.Threshold{}
	}
	return t, nil
}
