package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// Sex of the patient as recorded on intake.
type Sex string

const (
	SexMale   Sex = "Male"
	SexFemale Sex = "Female"
	SexOther  Sex = "Other"
)

// DiabetesType is the recorded diagnosis.
type DiabetesType string

const (
	DiabetesT1 DiabetesType = "T1DM"
	DiabetesT2 DiabetesType = "T2DM"
)

// Medication is one entry of the medication list.
type Medication struct {
	Name     string `json:"name"`
	Dose     string `json:"dose,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

// Lifestyle captures self-reported lifestyle factors.
type Lifestyle struct {
	AlcoholUnits  *float64 `json:"alcohol_units,omitempty"`
	Smoking       string   `json:"smoking,omitempty"`
	SleepHours    *float64 `json:"sleep_hours,omitempty"`
	ActivityLevel string   `json:"activity_level,omitempty"`
	DietPattern   string   `json:"diet_pattern,omitempty"`
}

// Screenings holds the date (YYYY-MM-DD) of the most recent annual checks.
type Screenings struct {
	RetinaDate string `json:"retina_date,omitempty"`
	FootDate   string `json:"foot_date,omitempty"`
	RenalDate  string `json:"renal_date,omitempty"`
	FluDate    string `json:"flu_date,omitempty"`
	PneumoDate string `json:"pneumo_date,omitempty"`
}

// Lipids in mmol/L.
type Lipids struct {
	TC  *float64 `json:"tc,omitempty"`
	LDL *float64 `json:"ldl,omitempty"`
	HDL *float64 `json:"hdl,omitempty"`
	TG  *float64 `json:"tg,omitempty"`
}

// HasAny reports whether at least one lipid value is recorded.
func (l Lipids) HasAny() bool {
	return l.TC != nil || l.LDL != nil || l.HDL != nil || l.TG != nil
}

// LabPanel covers glycaemic, renal and lipid results.
type LabPanel struct {
	HbA1cPct       *float64 `json:"hba1c_pct,omitempty"`
	FPGMmol        *float64 `json:"fpg_mmol,omitempty"`
	PPG2hMmol      *float64 `json:"ppg2h_mmol,omitempty"`
	EGFR           *float64 `json:"egfr,omitempty"`
	CreatinineUmol *float64 `json:"creatinine_umol,omitempty"`
	ACRMgMmol      *float64 `json:"acr_mgmmol,omitempty"`
	Lipids         Lipids   `json:"lipids"`
}

// Vitals as extracted from a lab report.
type Vitals struct {
	BPSys     *float64 `json:"bp_sys,omitempty"`
	BPDia     *float64 `json:"bp_dia,omitempty"`
	HeartRate *float64 `json:"hr,omitempty"`
}

// PatientState is the structured intake record handed to generation.
// Treat values as immutable: merges return a fresh copy.
type PatientState struct {
	UUID          string       `json:"uuid"`
	Name          string       `json:"name,omitempty"`
	DOB           string       `json:"dob,omitempty"`
	Sex           Sex          `json:"sex,omitempty"`
	DiabetesType  DiabetesType `json:"diabetes_type,omitempty"`
	DiagnosisDate string       `json:"diagnosis_date,omitempty"`
	Ethnicity     string       `json:"ethnicity,omitempty"`
	Language      string       `json:"language,omitempty"`

	HeightCm  *float64 `json:"height_cm,omitempty"`
	WeightKg  *float64 `json:"weight_kg,omitempty"`
	WaistCm   *float64 `json:"waist_cm,omitempty"`
	BPSys     *float64 `json:"bp_sys,omitempty"`
	BPDia     *float64 `json:"bp_dia,omitempty"`
	HeartRate *float64 `json:"heart_rate,omitempty"`

	Devices        []string `json:"devices,omitempty"`
	Hypos90d       int      `json:"hypos_90d,omitempty"`
	SevereHypos90d int      `json:"severe_hypos_90d,omitempty"`
	DKA12m         int      `json:"dka_12m,omitempty"`
	Allergies      string   `json:"allergies,omitempty"`
	Comorbidities  []string `json:"comorbidities,omitempty"`

	Meds       []Medication `json:"meds,omitempty"`
	Lifestyle  Lifestyle    `json:"lifestyle"`
	Screenings Screenings   `json:"screenings"`
	Labs       LabPanel     `json:"labs"`

	Goals string `json:"goals,omitempty"`
	Notes string `json:"notes,omitempty"`
}

// Clone returns a deep copy so callers never share optional-value pointers.
func (p PatientState) Clone() PatientState {
	out := p
	out.HeightCm = clonePtr(p.HeightCm)
	out.WeightKg = clonePtr(p.WeightKg)
	out.WaistCm = clonePtr(p.WaistCm)
	out.BPSys = clonePtr(p.BPSys)
	out.BPDia = clonePtr(p.BPDia)
	out.HeartRate = clonePtr(p.HeartRate)
	out.Devices = append([]string(nil), p.Devices...)
	out.Comorbidities = append([]string(nil), p.Comorbidities...)
	out.Meds = append([]Medication(nil), p.Meds...)
	out.Lifestyle.AlcoholUnits = clonePtr(p.Lifestyle.AlcoholUnits)
	out.Lifestyle.SleepHours = clonePtr(p.Lifestyle.SleepHours)
	out.Labs = p.Labs.Clone()
	return out
}

// Clone returns a deep copy of the panel.
func (l LabPanel) Clone() LabPanel {
	return LabPanel{
		HbA1cPct:       clonePtr(l.HbA1cPct),
		FPGMmol:        clonePtr(l.FPGMmol),
		PPG2hMmol:      clonePtr(l.PPG2hMmol),
		EGFR:           clonePtr(l.EGFR),
		CreatinineUmol: clonePtr(l.CreatinineUmol),
		ACRMgMmol:      clonePtr(l.ACRMgMmol),
		Lipids: Lipids{
			TC:  clonePtr(l.Lipids.TC),
			LDL: clonePtr(l.Lipids.LDL),
			HDL: clonePtr(l.Lipids.HDL),
			TG:  clonePtr(l.Lipids.TG),
		},
	}
}

// UsesInsulin reports whether any medication name mentions insulin.
func (p PatientState) UsesInsulin() bool {
	for _, m := range p.Meds {
		if strings.Contains(strings.ToLower(m.Name), "insulin") {
			return true
		}
	}
	return false
}

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// Field names a value that can come from either the form or a PDF extraction.
type Field string

const (
	FieldHbA1c      Field = "hba1c_pct"
	FieldFPG        Field = "fpg_mmol"
	FieldPPG2h      Field = "ppg2h_mmol"
	FieldEGFR       Field = "egfr"
	FieldCreatinine Field = "creatinine_umol"
	FieldACR        Field = "acr_mgmmol"
	FieldTC         Field = "tc"
	FieldLDL        Field = "ldl"
	FieldHDL        Field = "hdl"
	FieldTG         Field = "tg"
	FieldBPSys      Field = "bp_sys"
	FieldBPDia      Field = "bp_dia"
	FieldHeartRate  Field = "heart_rate"
	FieldRetinaDate Field = "retina_date"
	FieldFootDate   Field = "foot_date"
	FieldRenalDate  Field = "renal_date"
)

// Resolution decides which source wins for a single field during a merge.
type Resolution int

const (
	// ResolutionAuto lets the PDF value win when its confidence clears the threshold.
	ResolutionAuto Resolution = iota
	ResolutionUseForm
	ResolutionUsePDF
)

var resolutionNames = map[Resolution]string{
	ResolutionAuto:    "auto",
	ResolutionUseForm: "form",
	ResolutionUsePDF:  "pdf",
}

func (r Resolution) String() string {
	if s, ok := resolutionNames[r]; ok {
		return s
	}
	return fmt.Sprintf("Resolution(%d)", int(r))
}

// ParseResolution accepts "auto", "form" or "pdf".
func ParseResolution(s string) (Resolution, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return ResolutionAuto, nil
	case "form":
		return ResolutionUseForm, nil
	case "pdf":
		return ResolutionUsePDF, nil
	}
	return ResolutionAuto, fmt.Errorf("unknown resolution %q", s)
}

func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Resolution) UnmarshalText(b []byte) error {
	v, err := ParseResolution(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// PDFData is the subset of a patient record recovered from an uploaded report,
// with a per-field confidence score.
type PDFData struct {
	Labs       LabPanel          `json:"labs"`
	Vitals     Vitals            `json:"vitals"`
	Screenings Screenings        `json:"screenings"`
	Confidence map[Field]float64 `json:"_confidence,omitempty"`
}

// PDFDataFromExtraction spreads the overall extraction confidence across every
// field the extraction produced.
func PDFDataFromExtraction(r ExtractionResult) PDFData {
	data := PDFData{
		Labs:       r.Labs.Clone(),
		Vitals:     Vitals{BPSys: clonePtr(r.Vitals.BPSys), BPDia: clonePtr(r.Vitals.BPDia), HeartRate: clonePtr(r.Vitals.HeartRate)},
		Screenings: r.Screenings,
		Confidence: make(map[Field]float64),
	}
	for _, f := range r.ExtractedFields() {
		data.Confidence[f] = r.Confidence
	}
	return data
}

// GenerationRequest is the explicit context threaded through one generation call.
type GenerationRequest struct {
	RequestID   string               `json:"request_id,omitempty"`
	Form        PatientState         `json:"form"`
	PDF         *PDFData             `json:"pdf,omitempty"`
	Resolutions map[Field]Resolution `json:"resolutions,omitempty"`
}

var patientIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidatePatientID checks that id is safe to use as a storage key.
func ValidatePatientID(id string) error {
	if !patientIDPattern.MatchString(id) {
		return NewValidationError("patient_id", "contains unsupported characters", id)
	}
	return nil
}
