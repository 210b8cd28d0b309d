package service

import (
	"sort"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// CitationCheck is the outcome of validating a report's citations.
type CitationCheck struct {
	Valid bool `json:"valid"`
	// InvalidIDs are cited ids missing from the retrieved set.
	InvalidIDs []string `json:"invalid_ids,omitempty"`
	// UnlistedIDs are ids used in the body but absent from the citations list.
	UnlistedIDs []string `json:"unlisted_ids,omitempty"`
}

// Warning returns the integrity warning for a failed check, or nil.
func (c CitationCheck) Warning() *domain.CitationIntegrityWarning {
	if len(c.InvalidIDs) == 0 && len(c.UnlistedIDs) == 0 {
		return nil
	}
	return &domain.CitationIntegrityWarning{InvalidIDs: c.InvalidIDs, UnlistedIDs: c.UnlistedIDs}
}

// ValidateCitations checks every id cited from the report body and the citations
// list against the passage ids of retrieved. The report is not modified.
func ValidateCitations(report *domain.ReportOut, retrieved []domain.RetrievalResult) CitationCheck {
	allowed := make(map[string]struct{}, len(retrieved))
	for _, r := range retrieved {
		allowed[r.PassageID] = struct{}{}
	}

	listed := make(map[string]struct{}, len(report.Citations))
	for _, id := range report.ListedCitationIDs() {
		listed[id] = struct{}{}
	}

	invalid := make(map[string]struct{})
	unlisted := make(map[string]struct{})

	for _, id := range report.BodyCitationIDs() {
		if _, ok := allowed[id]; !ok {
			invalid[id] = struct{}{}
		}
		if _, ok := listed[id]; !ok {
			unlisted[id] = struct{}{}
		}
	}
	for id := range listed {
		if _, ok := allowed[id]; !ok {
			invalid[id] = struct{}{}
		}
	}

	check := CitationCheck{
		InvalidIDs:  sortedKeys(invalid),
		UnlistedIDs: sortedKeys(unlisted),
	}
	check.Valid = len(check.InvalidIDs) == 0
	return check
}

func sortedKeys(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
