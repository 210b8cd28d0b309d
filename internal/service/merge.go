package service

import (
	"math"
	"strings"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// DefaultConfidenceThreshold is the PDF confidence above which an unresolved
// field overrides the form value.
const DefaultConfidenceThreshold = 0.7

// numericTolerance is the largest difference still treated as agreement.
const numericTolerance = 0.1

type numericField struct {
	field domain.Field
	pdf   func(*domain.PDFData) *float64
	form  func(*domain.PatientState) **float64
}

type dateField struct {
	field domain.Field
	pdf   func(*domain.PDFData) string
	form  func(*domain.PatientState) *string
}

var numericFields = []numericField{
	{domain.FieldHbA1c, func(d *domain.PDFData) *float64 { return d.Labs.HbA1cPct }, func(p *domain.PatientState) **float64 { return &p.Labs.HbA1cPct }},
	{domain.FieldFPG, func(d *domain.PDFData) *float64 { return d.Labs.FPGMmol }, func(p *domain.PatientState) **float64 { return &p.Labs.FPGMmol }},
	{domain.FieldPPG2h, func(d *domain.PDFData) *float64 { return d.Labs.PPG2hMmol }, func(p *domain.PatientState) **float64 { return &p.Labs.PPG2hMmol }},
	{domain.FieldEGFR, func(d *domain.PDFData) *float64 { return d.Labs.EGFR }, func(p *domain.PatientState) **float64 { return &p.Labs.EGFR }},
	{domain.FieldCreatinine, func(d *domain.PDFData) *float64 { return d.Labs.CreatinineUmol }, func(p *domain.PatientState) **float64 { return &p.Labs.CreatinineUmol }},
	{domain.FieldACR, func(d *domain.PDFData) *float64 { return d.Labs.ACRMgMmol }, func(p *domain.PatientState) **float64 { return &p.Labs.ACRMgMmol }},
	{domain.FieldTC, func(d *domain.PDFData) *float64 { return d.Labs.Lipids.TC }, func(p *domain.PatientState) **float64 { return &p.Labs.Lipids.TC }},
	{domain.FieldLDL, func(d *domain.PDFData) *float64 { return d.Labs.Lipids.LDL }, func(p *domain.PatientState) **float64 { return &p.Labs.Lipids.LDL }},
	{domain.FieldHDL, func(d *domain.PDFData) *float64 { return d.Labs.Lipids.HDL }, func(p *domain.PatientState) **float64 { return &p.Labs.Lipids.HDL }},
	{domain.FieldTG, func(d *domain.PDFData) *float64 { return d.Labs.Lipids.TG }, func(p *domain.PatientState) **float64 { return &p.Labs.Lipids.TG }},
	{domain.FieldBPSys, func(d *domain.PDFData) *float64 { return d.Vitals.BPSys }, func(p *domain.PatientState) **float64 { return &p.BPSys }},
	{domain.FieldBPDia, func(d *domain.PDFData) *float64 { return d.Vitals.BPDia }, func(p *domain.PatientState) **float64 { return &p.BPDia }},
	{domain.FieldHeartRate, func(d *domain.PDFData) *float64 { return d.Vitals.HeartRate }, func(p *domain.PatientState) **float64 { return &p.HeartRate }},
}

var dateFields = []dateField{
	{domain.FieldRetinaDate, func(d *domain.PDFData) string { return d.Screenings.RetinaDate }, func(p *domain.PatientState) *string { return &p.Screenings.RetinaDate }},
	{domain.FieldFootDate, func(d *domain.PDFData) string { return d.Screenings.FootDate }, func(p *domain.PatientState) *string { return &p.Screenings.FootDate }},
	{domain.FieldRenalDate, func(d *domain.PDFData) string { return d.Screenings.RenalDate }, func(p *domain.PatientState) *string { return &p.Screenings.RenalDate }},
}

// MergePatient combines form and PDF values into a new record. For each field the
// PDF holds, an explicit resolution decides; otherwise the PDF value wins only when
// its confidence exceeds threshold. Neither input is modified.
func MergePatient(form domain.PatientState, pdf *domain.PDFData, resolutions map[domain.Field]domain.Resolution, threshold float64) domain.PatientState {
	merged := form.Clone()
	if pdf == nil {
		return merged
	}

	for _, f := range numericFields {
		v := f.pdf(pdf)
		if v == nil || !usePDF(f.field, pdf, resolutions, threshold) {
			continue
		}
		*f.form(&merged) = domain.Float(*v)
	}
	for _, f := range dateFields {
		v := f.pdf(pdf)
		if v == "" || !usePDF(f.field, pdf, resolutions, threshold) {
			continue
		}
		*f.form(&merged) = v
	}
	return merged
}

func usePDF(field domain.Field, pdf *domain.PDFData, resolutions map[domain.Field]domain.Resolution, threshold float64) bool {
	switch resolutions[field] {
	case domain.ResolutionUsePDF:
		return true
	case domain.ResolutionUseForm:
		return false
	default:
		return pdf.Confidence[field] > threshold
	}
}

// Conflict is a field where the form and the PDF disagree.
type Conflict struct {
	Field      domain.Field      `json:"field"`
	FormValue  any               `json:"form_value"`
	PDFValue   any               `json:"pdf_value"`
	Confidence float64           `json:"confidence"`
	Suggested  domain.Resolution `json:"suggested"`
}

// DetectConflicts lists fields present in both sources whose values differ by more
// than 0.1 (numbers) or after case-insensitive comparison (dates).
func DetectConflicts(form domain.PatientState, pdf *domain.PDFData, threshold float64) []Conflict {
	if pdf == nil {
		return nil
	}

	var conflicts []Conflict
	suggest := func(field domain.Field) domain.Resolution {
		if pdf.Confidence[field] > threshold {
			return domain.ResolutionUsePDF
		}
		return domain.ResolutionUseForm
	}

	for _, f := range numericFields {
		pv, fv := f.pdf(pdf), *f.form(&form)
		if pv == nil || fv == nil || math.Abs(*pv-*fv) <= numericTolerance {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Field:      f.field,
			FormValue:  *fv,
			PDFValue:   *pv,
			Confidence: pdf.Confidence[f.field],
			Suggested:  suggest(f.field),
		})
	}
	for _, f := range dateFields {
		pv, fv := f.pdf(pdf), *f.form(&form)
		if pv == "" || fv == "" || strings.EqualFold(strings.TrimSpace(pv), strings.TrimSpace(fv)) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			Field:      f.field,
			FormValue:  fv,
			PDFValue:   pv,
			Confidence: pdf.Confidence[f.field],
			Suggested:  suggest(f.field),
		})
	}
	return conflicts
}
