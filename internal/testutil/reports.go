package testutil

import "encoding/json"

// ReportJSON renders a complete report whose recommendations cite bodyIDs and
// whose citations list holds listIDs.
func ReportJSON(bodyIDs, listIDs []string) string {
	citations := make([]map[string]string, 0, len(listIDs))
	for _, id := range listIDs {
		citations = append(citations, map[string]string{"id": id, "source": "NICE", "section": "1"})
	}
	report := map[string]any{
		"executive_summary": "Suboptimal glycaemic control; intensify therapy.",
		"snapshot":          map[string]any{"hba1c_status": "amber"},
		"clinical_context":  map[string]any{"current_therapy": "metformin"},
		"labs_table":        []map[string]any{{"test": "HbA1c", "value": 8.3}},
		"interpretation": []map[string]any{
			{"problem": "Glycaemia", "assessment": "Above target", "plan": "Titrate", "citation_ids": bodyIDs},
		},
		"lifestyle_plan":    []map[string]any{{"text": "150 min activity weekly", "citation_ids": bodyIDs}},
		"diet_plan":         map[string]any{"principles": []string{"reduce refined carbohydrate"}},
		"monitoring_plan":   map[string]any{"testing_frequency": "HbA1c every 3 months"},
		"screening_tracker": []map[string]any{{"domain": "retina", "status": "due"}},
		"patient_goals":     []string{"HbA1c below 7.5% in 6 months"},
		"medication_plan":   []map[string]any{{"text": "Continue metformin", "citation_ids": bodyIDs}},
		"follow_up":         []map[string]any{{"when": "3 months", "actions": "repeat HbA1c"}},
		"emr_note":          "T2DM, HbA1c 8.3%. Plan reviewed.",
		"citations":         citations,
	}
	data, _ := json.Marshal(report)
	return string(data)
}
