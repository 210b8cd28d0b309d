package service

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// StripCodeFence removes a surrounding markdown fence such as ```json ... ```.
func StripCodeFence(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		// drop the language tag line
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseReport decodes model output into a ReportOut. The text must be a single
// JSON object carrying every report section, with a non-empty summary and EMR note.
func ParseReport(raw string) (*domain.ReportOut, error) {
	body := StripCodeFence(raw)
	if body == "" {
		return nil, &domain.GenerationParseError{Reason: "empty response"}
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &sections); err != nil {
		return nil, &domain.GenerationParseError{Reason: "invalid JSON", Err: err}
	}

	var missing []string
	for _, key := range domain.ReportSections {
		v, ok := sections[key]
		if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &domain.GenerationParseError{Reason: "missing sections: " + strings.Join(missing, ", ")}
	}

	var report domain.ReportOut
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		return nil, &domain.GenerationParseError{Reason: "report does not match schema", Err: err}
	}
	if strings.TrimSpace(report.ExecutiveSummary) == "" {
		return nil, &domain.GenerationParseError{Reason: "executive_summary is empty"}
	}
	if strings.TrimSpace(report.EMRNote) == "" {
		return nil, &domain.GenerationParseError{Reason: "emr_note is empty"}
	}
	return &report, nil
}
