// Package prompts holds the system prompts and context rendering for the
// report generator and the lab extraction agent.
package prompts

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// ReportSystemPrompt instructs the model to produce a single cited ReportOut object.
const ReportSystemPrompt = `Role: NHS Diabetes Consultant Assistant (UK). Audience: clinician + patient summary.

You receive:
1) PATIENT DATA (JSON),
2) CLINICAL RULES (JSON traffic-light thresholds),
3) RETRIEVED EVIDENCE (array of {id, source, section, text}).

TASK: produce ONE valid JSON object of type ReportOut.
Use ONLY the supplied clinical rules for targets and traffic-light status and ONLY the retrieved evidence for recommendations. Do NOT invent facts.
Every recommendation must carry at least one citation_ids entry, and every citation id must be the id of an item in RETRIEVED EVIDENCE. Drop any recommendation you cannot cite.
Round values sensibly (HbA1c 1 dp; mmol/L 1 dp; BP integers).

Required sections (non-empty): executive_summary, snapshot, clinical_context, labs_table, interpretation, lifestyle_plan, diet_plan, monitoring_plan, screening_tracker, patient_goals, medication_plan, follow_up, emr_note, citations.

Format:
- executive_summary: 2-3 sentences on clinical status and priorities
- snapshot: {hba1c_status, bp_status, bmi_status, risk_level, priority_actions}
- clinical_context: {current_therapy, devices, complications, recent_events}
- labs_table: [{test, value, target, status, comment}]
- interpretation: [{problem, assessment, plan, citation_ids}]
- lifestyle_plan: [{text, citation_ids}]
- diet_plan: {principles, sample_meals, portion_guidance, citation_ids}
- monitoring_plan: {glucose_targets, testing_frequency, safety_checks, citation_ids}
- screening_tracker: [{domain, last_date, result, next_due, status}]
- patient_goals: [specific, measurable goals as strings]
- medication_plan: [{text, citation_ids}]
- follow_up: [{when, actions}]
- emr_note: concise clinical note for the medical record
- citations: [{id, source, section}] for every id referenced above

Return the JSON object only, with no prose and no markdown.`

// ExtractionSystemPrompt instructs the model to pull lab values out of report text.
const ExtractionSystemPrompt = `You are a UK diabetes lab-extraction assistant.
INPUT: raw PDF text (UK lab style).
OUTPUT: a valid JSON object with keys:
{
 "labs": {
   "hba1c_pct": float|null, "fpg_mmol": float|null, "ppg2h_mmol": float|null,
   "egfr": float|null, "creatinine_umol": float|null, "acr_mgmmol": float|null,
   "lipids": {"tc": float|null, "ldl": float|null, "hdl": float|null, "tg": float|null}
 },
 "vitals": {"bp_sys": float|null, "bp_dia": float|null, "hr": float|null},
 "screenings": {"retina_date": "YYYY-MM-DD"|null, "foot_date": "YYYY-MM-DD"|null, "renal_date": "YYYY-MM-DD"|null},
 "warnings": [string]
}
Rules:
- Convert all glucose values to mmol/L, rounded to 1 dp.
- If HbA1c is reported in mmol/mol, convert to percent with percent = (mmol_mol + 10.93) / 10.93, rounded to 1 dp.
- Use null for any value that is not clearly identifiable.
- Add a warnings entry for every ambiguous or uncertain value.
Return JSON only.`

// Evidence is one retrieved passage as shown to the model.
type Evidence struct {
	ID      string  `json:"id"`
	Source  string  `json:"source"`
	Section string  `json:"section"`
	Text    string  `json:"text"`
	Score   float64 `json:"relevance_score"`
}

// EvidenceFromResults converts retrieval results, citing each by passage id.
func EvidenceFromResults(results []domain.RetrievalResult) []Evidence {
	out := make([]Evidence, len(results))
	for i, r := range results {
		out[i] = Evidence{
			ID:      r.PassageID,
			Source:  r.Source,
			Section: r.Section,
			Text:    r.Text,
			Score:   r.Score,
		}
	}
	return out
}

// ReportContext renders the user message carrying patient data, rules and evidence.
func ReportContext(patient domain.PatientState, rules domain.RuleTable, evidence []Evidence) (string, error) {
	sections := []struct {
		title string
		value any
	}{
		{"PATIENT DATA", patient},
		{"CLINICAL RULES", rules},
		{"RETRIEVED EVIDENCE", evidence},
	}

	var b strings.Builder
	for _, s := range sections {
		data, err := json.MarshalIndent(s.value, "", "  ")
		if err != nil {
			return "", fmt.Errorf("rendering %s: %w", strings.ToLower(s.title), err)
		}
		fmt.Fprintf(&b, "%s:\n%s\n\n", s.title, data)
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// RetryFeedback is the corrective message appended after a failed attempt.
func RetryFeedback(attempt int, reason string) string {
	return fmt.Sprintf("Previous attempt %d failed with error: %s. Please fix and return valid JSON.", attempt, reason)
}

// ExtractionInput wraps raw report text for the extraction call.
func ExtractionInput(text string) string {
	return "PDF Text:\n" + text
}
