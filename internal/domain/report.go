package domain

// Recommendation is a single actionable item backed by zero or more citations.
type Recommendation struct {
	Text        string   `json:"text"`
	CitationIDs []string `json:"citation_ids"`
}

// InterpretationItem is one problem-oriented assessment.
type InterpretationItem struct {
	Problem     string   `json:"problem"`
	Assessment  string   `json:"assessment"`
	Plan        string   `json:"plan"`
	CitationIDs []string `json:"citation_ids"`
}

// Citation points at a retrieved passage.
type Citation struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Section string `json:"section"`
}

// ReportOut is the generated management report. Free-form sections are kept as
// decoded JSON since their shape is descriptive rather than validated.
type ReportOut struct {
	ExecutiveSummary string               `json:"executive_summary"`
	Snapshot         map[string]any       `json:"snapshot"`
	ClinicalContext  map[string]any       `json:"clinical_context"`
	LabsTable        []map[string]any     `json:"labs_table"`
	Interpretation   []InterpretationItem `json:"interpretation"`
	LifestylePlan    []Recommendation     `json:"lifestyle_plan"`
	DietPlan         map[string]any       `json:"diet_plan"`
	MonitoringPlan   map[string]any       `json:"monitoring_plan"`
	ScreeningTracker []map[string]any     `json:"screening_tracker"`
	PatientGoals     []string             `json:"patient_goals"`
	MedicationPlan   []Recommendation     `json:"medication_plan"`
	FollowUp         []map[string]any     `json:"follow_up"`
	EMRNote          string               `json:"emr_note"`
	Citations        []Citation           `json:"citations"`
}

// ReportSections lists the top-level keys every generated report must carry.
var ReportSections = []string{
	"executive_summary",
	"snapshot",
	"clinical_context",
	"labs_table",
	"interpretation",
	"lifestyle_plan",
	"diet_plan",
	"monitoring_plan",
	"screening_tracker",
	"patient_goals",
	"medication_plan",
	"follow_up",
	"emr_note",
	"citations",
}

// BodyCitationIDs returns every citation id referenced from a recommendation-bearing
// section, in document order. Diet and monitoring plans count when they carry ids.
func (r *ReportOut) BodyCitationIDs() []string {
	var ids []string
	for _, item := range r.LifestylePlan {
		ids = append(ids, item.CitationIDs...)
	}
	for _, item := range r.MedicationPlan {
		ids = append(ids, item.CitationIDs...)
	}
	for _, item := range r.Interpretation {
		ids = append(ids, item.CitationIDs...)
	}
	ids = append(ids, mapCitationIDs(r.DietPlan)...)
	ids = append(ids, mapCitationIDs(r.MonitoringPlan)...)
	return ids
}

// ListedCitationIDs returns the ids in the citations list.
func (r *ReportOut) ListedCitationIDs() []string {
	ids := make([]string, 0, len(r.Citations))
	for _, c := range r.Citations {
		ids = append(ids, c.ID)
	}
	return ids
}

// mapCitationIDs reads an optional "citation_ids" string array from a free-form section.
func mapCitationIDs(section map[string]any) []string {
	raw, ok := section["citation_ids"].([]any)
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids
}

// StoredReport is a persisted report together with the snapshot it was generated from.
type StoredReport struct {
	PatientID string       `json:"patient_id"`
	Date      string       `json:"date"`
	Report    ReportOut    `json:"report"`
	Patient   PatientState `json:"patient"`
}
