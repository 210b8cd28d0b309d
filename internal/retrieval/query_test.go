package retrieval

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

func TestBuildQuery_HbA1cOnly(t *testing.T) {
	p := domain.PatientState{
		DiabetesType: domain.DiabetesT2,
		Labs:         domain.LabPanel{HbA1cPct: domain.Float(8.3)},
	}

	q := BuildQuery(p)

	assert.Contains(t, q, "diabetes")
	assert.Contains(t, q, "HbA1c")
	assert.Contains(t, q, "glucose control")
	assert.NotContains(t, q, "hypertension")
	assert.NotContains(t, q, "lipid")
	assert.NotContains(t, q, "cholesterol")
}

func TestBuildQuery_HbA1cWithoutTypeStillMentionsDiabetes(t *testing.T) {
	q := BuildQuery(domain.PatientState{Labs: domain.LabPanel{HbA1cPct: domain.Float(8.3)}})

	assert.Contains(t, q, "diabetes")
	assert.NotContains(t, q, FallbackQuery)
}

func TestBuildQuery_AllSignals(t *testing.T) {
	p := domain.PatientState{
		DiabetesType: domain.DiabetesT1,
		BPSys:        domain.Float(142),
		Hypos90d:     3,
		Meds:         []domain.Medication{{Name: "Metformin"}, {Name: "Insulin glargine"}},
		Labs: domain.LabPanel{
			HbA1cPct: domain.Float(7.9),
			Lipids:   domain.Lipids{LDL: domain.Float(2.8)},
		},
	}

	want := strings.Join([]string{
		"T1DM diabetes",
		PhraseGlycaemic,
		PhraseHypertension,
		PhraseLipids,
		PhraseHypo,
		PhraseInsulin,
		PhraseScreening,
	}, " ")
	assert.Equal(t, want, BuildQuery(p))
}

func TestBuildQuery_Fallback(t *testing.T) {
	q := BuildQuery(domain.PatientState{})

	assert.NotEmpty(t, q)
	assert.True(t, strings.HasPrefix(q, FallbackQuery))
}

func TestBuildQuery_ZeroHyposIgnored(t *testing.T) {
	q := BuildQuery(domain.PatientState{DiabetesType: domain.DiabetesT2, Hypos90d: 0})
	assert.NotContains(t, q, PhraseHypo)
}

func TestBuildQuery_Deterministic(t *testing.T) {
	p := domain.PatientState{
		DiabetesType: domain.DiabetesT2,
		BPSys:        domain.Float(150),
		Meds:         []domain.Medication{{Name: "INSULIN aspart"}},
	}
	first := BuildQuery(p)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, BuildQuery(p.Clone()))
	}
}
