package domain

// ExpectedExtractionFields is the fixed denominator for extraction confidence.
const ExpectedExtractionFields = 15

// ExtractionStatus distinguishes a usable extraction from the degraded paths
// callers are expected to branch on.
type ExtractionStatus string

const (
	ExtractionOK            ExtractionStatus = "ok"
	ExtractionLowConfidence ExtractionStatus = "low_confidence"
	ExtractionFailed        ExtractionStatus = "failed"
)

// ExtractionResult is the structured outcome of reading a lab report.
// It is always returned, even on failure, so callers can render something.
type ExtractionResult struct {
	Status     ExtractionStatus  `json:"status"`
	Labs       LabPanel          `json:"labs"`
	Vitals     Vitals            `json:"vitals"`
	Screenings Screenings        `json:"screenings"`
	Confidence float64           `json:"confidence"`
	Warnings   []string          `json:"warnings"`
	Provenance map[string]string `json:"provenance"`
}

// ExtractedFields lists the fields holding a value, in a fixed order.
func (r ExtractionResult) ExtractedFields() []Field {
	var out []Field
	add := func(f Field, ok bool) {
		if ok {
			out = append(out, f)
		}
	}
	add(FieldHbA1c, r.Labs.HbA1cPct != nil)
	add(FieldFPG, r.Labs.FPGMmol != nil)
	add(FieldPPG2h, r.Labs.PPG2hMmol != nil)
	add(FieldEGFR, r.Labs.EGFR != nil)
	add(FieldCreatinine, r.Labs.CreatinineUmol != nil)
	add(FieldACR, r.Labs.ACRMgMmol != nil)
	add(FieldTC, r.Labs.Lipids.TC != nil)
	add(FieldLDL, r.Labs.Lipids.LDL != nil)
	add(FieldHDL, r.Labs.Lipids.HDL != nil)
	add(FieldTG, r.Labs.Lipids.TG != nil)
	add(FieldBPSys, r.Vitals.BPSys != nil)
	add(FieldBPDia, r.Vitals.BPDia != nil)
	add(FieldHeartRate, r.Vitals.HeartRate != nil)
	add(FieldRetinaDate, r.Screenings.RetinaDate != "")
	add(FieldFootDate, r.Screenings.FootDate != "")
	add(FieldRenalDate, r.Screenings.RenalDate != "")
	return out
}

// ExtractionConfidence is min(1, n/15).
func ExtractionConfidence(nonNull int) float64 {
	if nonNull <= 0 {
		return 0
	}
	c := float64(nonNull) / ExpectedExtractionFields
	if c > 1 {
		return 1
	}
	return c
}

// FailedExtraction builds the zero-confidence result used for every failure path.
func FailedExtraction(warning string, provenance map[string]string) ExtractionResult {
	if provenance == nil {
		provenance = map[string]string{}
	}
	return ExtractionResult{
		Status:     ExtractionFailed,
		Confidence: 0,
		Warnings:   []string{warning},
		Provenance: provenance,
	}
}
