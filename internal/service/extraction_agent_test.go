package service

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/logging"
	"github.com/diabetes-report-mcp-server/internal/pdf"
	"github.com/diabetes-report-mcp-server/internal/testutil"
)

const labText = `Diabetes Review Bloods
HbA1c 64 mmol/mol
Fasting glucose 7.8 mmol/L
eGFR 78 mL/min/1.73m2
Cholesterol 5.1 LDL 3.0 HDL 1.1
BP 142/88`

func newAgent(chat domain.ChatCompleter) *ExtractionAgent {
	return NewExtractionAgent(chat, ExtractionAgentConfig{}, logging.Discard())
}

func TestExtract_EmptyTextSkipsModel(t *testing.T) {
	chat := &testutil.ScriptedChat{}
	res := newAgent(chat).Extract(context.Background(), " \n\t ")

	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, domain.ExtractionFailed, res.Status)
	assert.Equal(t, []string{WarnNoText}, res.Warnings)
	assert.Zero(t, chat.CallCount())
}

func TestExtract_ScannedDocumentSkipsModel(t *testing.T) {
	chat := &testutil.ScriptedChat{}
	doc := &pdf.Document{Filename: "scan.pdf", Pages: []string{"  IMG_0001  ", strings.Repeat("text ", 40)}}

	res := newAgent(chat).ExtractDocument(context.Background(), doc)

	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, []string{pdf.ScannedWarning}, res.Warnings)
	assert.Equal(t, "scan.pdf", res.Provenance["filename"])
	assert.Zero(t, chat.CallCount())
}

func TestExtract_Success(t *testing.T) {
	response := `{
	  "labs": {"hba1c_pct": 8.0, "fpg_mmol": 7.8, "ppg2h_mmol": null, "egfr": 78, "creatinine_umol": null, "acr_mgmmol": null,
	           "lipids": {"tc": 5.1, "ldl": 3.0, "hdl": 1.1, "tg": null}},
	  "vitals": {"bp_sys": 142, "bp_dia": 88, "hr": null},
	  "screenings": {"retina_date": null, "foot_date": null, "renal_date": null},
	  "warnings": ["LDL may be calculated"]
	}`
	chat := &testutil.ScriptedChat{Model: "gpt-4o-mini", Responses: []string{response}}

	res := newAgent(chat).Extract(context.Background(), labText)

	assert.Equal(t, domain.ExtractionLowConfidence, res.Status)
	assert.InDelta(t, 8.0/15, res.Confidence, 1e-9)
	assert.Equal(t, 8.0, *res.Labs.HbA1cPct)
	assert.Equal(t, 142.0, *res.Vitals.BPSys)
	assert.Equal(t, []string{"LDL may be calculated"}, res.Warnings)
	assert.Equal(t, "gpt-4o-mini", res.Provenance["extraction_model"])
	assert.Equal(t, "8", res.Provenance["extracted_fields"])

	require.Equal(t, 1, chat.CallCount())
	req := chat.Requests[0]
	assert.Equal(t, 0.1, req.Temperature)
	assert.Equal(t, 1000, req.MaxTokens)
	assert.Equal(t, "PDF Text:\n"+labText, req.Messages[0].Content)
}

func TestExtract_ConvertsMmolMolHbA1c(t *testing.T) {
	chat := &testutil.ScriptedChat{Responses: []string{`{"labs": {"hba1c_pct": 64}}`}}

	res := newAgent(chat).Extract(context.Background(), labText)

	require.NotNil(t, res.Labs.HbA1cPct)
	assert.Equal(t, 6.9, *res.Labs.HbA1cPct)
	assert.Contains(t, res.Warnings[0], "mmol/mol")
}

func TestExtract_ParseFailureIsSingleShot(t *testing.T) {
	chat := &testutil.ScriptedChat{Responses: []string{"Sure! Here are the labs:", `{"labs": {}}`}}

	res := newAgent(chat).Extract(context.Background(), labText)

	assert.Equal(t, 0.0, res.Confidence)
	assert.Equal(t, domain.ExtractionFailed, res.Status)
	require.Len(t, res.Warnings, 1)
	assert.True(t, strings.HasPrefix(res.Warnings[0], "Failed to parse extraction JSON: "))
	assert.Equal(t, 1, chat.CallCount())
}

func TestExtract_ModelErrorIsReported(t *testing.T) {
	chat := &testutil.ScriptedChat{Errs: []error{errBoom}}

	res := newAgent(chat).Extract(context.Background(), labText)
	assert.Equal(t, []string{"LLM extraction failed: boom"}, res.Warnings)
	assert.Equal(t, 0.0, res.Confidence)
}

func TestExtract_ConfidenceIsBoundedAndMonotonic(t *testing.T) {
	fields := []string{
		`"hba1c_pct": 7.1`, `"fpg_mmol": 6.2`, `"ppg2h_mmol": 9.1`, `"egfr": 80`,
		`"creatinine_umol": 88`, `"acr_mgmmol": 2.1`,
	}
	prev := -1.0
	for n := 0; n <= len(fields); n++ {
		response := `{"labs": {` + strings.Join(fields[:n], ",") + `},
		  "vitals": {"bp_sys": 130, "bp_dia": 80, "hr": 70},
		  "screenings": {"retina_date": "2024-01-01", "foot_date": "2024-01-01", "renal_date": "2024-01-01"},
		  "warnings": []}`
		require.True(t, json.Valid([]byte(response)))
		chat := &testutil.ScriptedChat{Responses: []string{response}}

		res := newAgent(chat).Extract(context.Background(), labText)
		assert.GreaterOrEqual(t, res.Confidence, prev)
		assert.LessOrEqual(t, res.Confidence, 1.0)
		assert.GreaterOrEqual(t, res.Confidence, 0.0)
		prev = res.Confidence
	}
}

func TestExtract_FullPanelCapsAtOne(t *testing.T) {
	response := `{
	  "labs": {"hba1c_pct": 7.1, "fpg_mmol": 6.2, "ppg2h_mmol": 9.1, "egfr": 80, "creatinine_umol": 88, "acr_mgmmol": 2.1,
	           "lipids": {"tc": 4.5, "ldl": 2.1, "hdl": 1.2, "tg": 1.5}},
	  "vitals": {"bp_sys": 130, "bp_dia": 80, "hr": 70},
	  "screenings": {"retina_date": "2024-01-01", "foot_date": "2024-01-01", "renal_date": "2024-01-01"}
	}`
	chat := &testutil.ScriptedChat{Responses: []string{response}}

	res := newAgent(chat).Extract(context.Background(), labText)
	assert.Equal(t, 1.0, res.Confidence)
	assert.Equal(t, domain.ExtractionOK, res.Status)
}

func TestExtract_NothingFound(t *testing.T) {
	chat := &testutil.ScriptedChat{Responses: []string{`{"labs": {}, "vitals": {}, "screenings": {}, "warnings": []}`}}

	res := newAgent(chat).Extract(context.Background(), labText)
	assert.Equal(t, domain.ExtractionFailed, res.Status)
	assert.Equal(t, 0.0, res.Confidence)
}
