package retrieval

import (
	"strings"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// Canonical query fragments, appended in this order.
const (
	PhraseGlycaemic    = "HbA1c blood glucose control"
	PhraseHypertension = "blood pressure hypertension"
	PhraseLipids       = "cholesterol lipids cardiovascular risk"
	PhraseHypo         = "hypoglycaemia management"
	PhraseInsulin      = "insulin therapy"
	PhraseScreening    = "diabetes annual screening retinopathy kidney foot"
	FallbackQuery      = "diabetes management guidelines"
)

// BuildQuery turns a patient record into a retrieval query. The result depends
// only on the record, never on time or randomness, and is never empty.
func BuildQuery(p domain.PatientState) string {
	var parts []string

	if p.DiabetesType != "" {
		parts = append(parts, string(p.DiabetesType)+" diabetes")
	}
	if p.Labs.HbA1cPct != nil {
		parts = append(parts, PhraseGlycaemic)
	}
	if p.BPSys != nil {
		parts = append(parts, PhraseHypertension)
	}
	if p.Labs.Lipids.HasAny() {
		parts = append(parts, PhraseLipids)
	}
	if p.Hypos90d > 0 {
		parts = append(parts, PhraseHypo)
	}
	if p.UsesInsulin() {
		parts = append(parts, PhraseInsulin)
	}

	if len(parts) == 0 {
		parts = append(parts, FallbackQuery)
	}
	parts = append(parts, PhraseScreening)

	return strings.Join(parts, " ")
}
