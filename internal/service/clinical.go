package service

import (
	"fmt"
	"math"
	"time"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// Red flag thresholds.
const (
	RedFlagHbA1cPct = 10.0
	RedFlagFPGMmol  = 13.9
	RedFlagPPGMmol  = 16.7
	RedFlagBPSys    = 180.0
	RedFlagBPDia    = 110.0
)

// hba1cMmolOffset converts between IFCC (mmol/mol) and DCCT (%) HbA1c.
const hba1cMmolOffset = 10.93

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// HbA1cMmolToPercent converts an IFCC value to percent, rounded to 1 dp.
func HbA1cMmolToPercent(mmolMol float64) float64 {
	return Round1((mmolMol + hba1cMmolOffset) / hba1cMmolOffset)
}

// HbA1cPercentToMmol is the inverse of HbA1cMmolToPercent, rounded to a whole number.
func HbA1cPercentToMmol(pct float64) float64 {
	return math.Round(pct*hba1cMmolOffset - hba1cMmolOffset)
}

// CalculateBMI returns kg/m² to 1 dp, or nil when either measurement is missing.
func CalculateBMI(heightCm, weightKg *float64) *float64 {
	if heightCm == nil || weightKg == nil || *heightCm <= 0 || *weightKg <= 0 {
		return nil
	}
	m := *heightCm / 100
	return domain.Float(Round1(*weightKg / (m * m)))
}

// CalculateAge returns whole years between dob (YYYY-MM-DD) and now.
func CalculateAge(dob string, now time.Time) (int, error) {
	born, err := time.Parse(time.DateOnly, dob)
	if err != nil {
		return 0, domain.NewValidationError("dob", "must be YYYY-MM-DD", dob)
	}
	if born.After(now) {
		return 0, domain.NewValidationError("dob", "is in the future", dob)
	}
	age := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		age--
	}
	return age, nil
}

// NormalizePatient rounds measured values for display and prompting. Blood
// pressure is kept as whole mmHg.
func NormalizePatient(p domain.PatientState) domain.PatientState {
	out := p.Clone()
	for _, v := range []*float64{
		out.HeightCm, out.WeightKg, out.WaistCm,
		out.Labs.HbA1cPct, out.Labs.FPGMmol, out.Labs.PPG2hMmol,
		out.Labs.Lipids.TC, out.Labs.Lipids.LDL, out.Labs.Lipids.HDL, out.Labs.Lipids.TG,
	} {
		if v != nil {
			*v = Round1(*v)
		}
	}
	for _, v := range []*float64{out.BPSys, out.BPDia, out.HeartRate} {
		if v != nil {
			*v = math.Round(*v)
		}
	}
	return out
}

// RedFlags lists values at or above the urgent thresholds.
func RedFlags(p domain.PatientState) []domain.RedFlag {
	var flags []domain.RedFlag
	if v := p.Labs.HbA1cPct; v != nil && *v >= RedFlagHbA1cPct {
		flags = append(flags, domain.RedFlag{
			Metric:   "hba1c",
			Value:    *v,
			Severity: domain.SeverityUrgent,
			Message:  fmt.Sprintf("HbA1c %.1f%% (≥10%% threshold)", *v),
		})
	}
	if v := p.Labs.FPGMmol; v != nil && *v >= RedFlagFPGMmol {
		flags = append(flags, domain.RedFlag{
			Metric:   "fpg",
			Value:    *v,
			Severity: domain.SeverityUrgent,
			Message:  fmt.Sprintf("FPG %.1f mmol/L (≥13.9 mmol/L threshold)", *v),
		})
	}
	if v := p.Labs.PPG2hMmol; v != nil && *v >= RedFlagPPGMmol {
		flags = append(flags, domain.RedFlag{
			Metric:   "ppg2h",
			Value:    *v,
			Severity: domain.SeverityUrgent,
			Message:  fmt.Sprintf("2h-PPG %.1f mmol/L (≥16.7 mmol/L threshold)", *v),
		})
	}
	if p.BPSys != nil && p.BPDia != nil && (*p.BPSys >= RedFlagBPSys || *p.BPDia >= RedFlagBPDia) {
		flags = append(flags, domain.RedFlag{
			Metric:   "bp",
			Value:    *p.BPSys,
			Severity: domain.SeverityUrgent,
			Message:  fmt.Sprintf("BP %.0f/%.0f mmHg (≥180/110 threshold)", *p.BPSys, *p.BPDia),
		})
	}
	return flags
}

// TrafficSnapshot colours every recorded metric the rule table knows about.
func TrafficSnapshot(p domain.PatientState, rules domain.RuleTable) map[string]domain.TrafficLight {
	values := map[string]*float64{
		"hba1c":  p.Labs.HbA1cPct,
		"fpg":    p.Labs.FPGMmol,
		"bp_sys": p.BPSys,
		"bp_dia": p.BPDia,
		"ldl":    p.Labs.Lipids.LDL,
		"acr":    p.Labs.ACRMgMmol,
		"bmi":    CalculateBMI(p.HeightCm, p.WeightKg),
	}

	out := make(map[string]domain.TrafficLight)
	for metric, v := range values {
		if v == nil {
			continue
		}
		if _, ok := rules.Traffic[metric]; !ok {
			continue
		}
		out[metric] = rules.Status(metric, *v)
	}
	return out
}
