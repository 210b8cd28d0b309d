package api

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-report-mcp-server/internal/app"
	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/logging"
	"github.com/diabetes-report-mcp-server/internal/service"
	"github.com/diabetes-report-mcp-server/internal/testutil"
)

type fakeRunner struct{ out string }

func (r fakeRunner) Run(context.Context, string, ...string) ([]byte, error) {
	return []byte(r.out), nil
}

type testEnv struct {
	server *Server
	comps  *app.Components
	chat   *testutil.ScriptedChat
}

func newTestEnv(t *testing.T, responses ...string) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &domain.Config{
		Server:     domain.ServerConfig{RequestTimeout: 5 * time.Second, MaxUploadBytes: 1 << 20, CORSOrigins: []string{"*"}},
		RAG:        domain.RAGConfig{IndexDir: filepath.Join(dir, "rag"), TopK: 6},
		Generation: domain.GenerationConfig{Temperature: 0.2, MaxTokens: 4000, MaxRetries: 1, CitationPolicy: domain.CitationPolicyWarn, ConfidenceThreshold: 0.7},
		Cache:      domain.CacheConfig{Backend: "memory", Size: 100},
		Storage:    domain.StorageConfig{Backend: "file", DataDir: dir},
		Audit:      domain.AuditConfig{Backend: "sqlite", SQLitePath: filepath.Join(dir, "audit.db")},
	}
	chat := &testutil.ScriptedChat{Model: "chat-test", Responses: responses}
	runner := fakeRunner{out: "HbA1c 64 mmol/mol\nFasting glucose 9.1 mmol/L\n" + strings.Repeat("Laboratory report text. ", 5)}

	comps, err := app.New(context.Background(), cfg,
		app.WithLogger(logging.Discard()),
		app.WithModels(testutil.NewHashEmbedder("hash-64"), chat),
		app.WithCommandRunner(runner),
	)
	require.NoError(t, err)
	t.Cleanup(func() { comps.Close() })

	return &testEnv{server: NewServer(cfg.Server, comps), comps: comps, chat: chat}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func scenarioPatient() domain.PatientState {
	return domain.PatientState{
		UUID:         "patient-42",
		DiabetesType: domain.DiabetesT2,
		DOB:          "1970-03-15",
		HeightCm:     domain.Float(175),
		WeightKg:     domain.Float(92),
		BPSys:        domain.Float(138),
		BPDia:        domain.Float(86),
		Labs:         domain.LabPanel{HbA1cPct: domain.Float(8.3), FPGMmol: domain.Float(9.2)},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "hash-64", body["embedding_model"])
	assert.Equal(t, "chat-test", body["chat_model"])
	assert.NotZero(t, body["index_size"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestGenerateReport_AcceptedAndStored(t *testing.T) {
	ids := []string{"nice_ng17_hba1c"}
	env := newTestEnv(t, testutil.ReportJSON(ids, ids))

	w := env.do(t, http.MethodPost, "/api/v1/reports", domain.GenerationRequest{Form: scenarioPatient()})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[GenerateResponse](t, w)
	assert.Equal(t, service.StateAccepted, resp.State)
	assert.True(t, resp.Persisted)
	require.NotNil(t, resp.Report)
	assert.Empty(t, resp.InvalidCitations)
	assert.Len(t, resp.Attempts, 1)
	assert.Equal(t, w.Header().Get("X-Correlation-ID"), resp.RequestID)

	list := env.do(t, http.MethodGet, "/api/v1/patients/patient-42/reports", nil)
	require.Equal(t, http.StatusOK, list.Code)
	dates := decode[struct {
		Dates []string `json:"dates"`
	}](t, list)
	assert.Equal(t, []string{resp.Date}, dates.Dates)

	get := env.do(t, http.MethodGet, "/api/v1/patients/patient-42/reports/"+resp.Date, nil)
	require.Equal(t, http.StatusOK, get.Code)
	stored := decode[domain.StoredReport](t, get)
	assert.Equal(t, resp.Report.ExecutiveSummary, stored.Report.ExecutiveSummary)

	rec, err := env.comps.Audit.Get(context.Background(), resp.RequestID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ACCEPTED", rec.State)
	assert.Equal(t, "http", rec.Transport)
}

func TestGenerateReport_InvalidCitationWarns(t *testing.T) {
	env := newTestEnv(t, testutil.ReportJSON([]string{"made_up_source"}, []string{"made_up_source"}))

	w := env.do(t, http.MethodPost, "/api/v1/reports", domain.GenerationRequest{Form: scenarioPatient()})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[GenerateResponse](t, w)
	assert.Equal(t, []string{"made_up_source"}, resp.InvalidCitations)
	assert.NotEmpty(t, resp.Errors)
}

func TestGenerateReport_FailedIs422(t *testing.T) {
	env := newTestEnv(t, "not json", "still not json")

	w := env.do(t, http.MethodPost, "/api/v1/reports", domain.GenerationRequest{Form: scenarioPatient()})

	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	body := decode[struct {
		Error  domain.APIError  `json:"error"`
		Result GenerateResponse `json:"result"`
	}](t, w)
	assert.Equal(t, domain.CodeGeneration, body.Error.Code)
	assert.Equal(t, service.StateFailed, body.Result.State)
	assert.Nil(t, body.Result.Report)
	assert.Len(t, body.Result.Attempts, 2)
	assert.Equal(t, 2, env.chat.CallCount())

	dates, err := env.comps.Reports.ListDates(context.Background(), "patient-42")
	require.NoError(t, err)
	assert.Empty(t, dates, "nothing is persisted on failure")

	rec, err := env.comps.Audit.Get(context.Background(), body.Result.RequestID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "FAILED", rec.State)
}

func TestGenerateReport_BadBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/reports", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.chat.CallCount())
}

func TestGetReport_NotFoundAndInvalid(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/patients/p1/reports/2026-01-01", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/patients/p1/reports/yesterday", nil).Code)
}

func TestExtract_JSONText(t *testing.T) {
	env := newTestEnv(t, `{"labs":{"hba1c_pct":8.2},"vitals":{},"screenings":{},"warnings":[]}`)

	w := env.do(t, http.MethodPost, "/api/v1/extractions", map[string]string{"text": "HbA1c 8.2%"})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ExtractionResponse](t, w)
	assert.InDelta(t, 1.0/15.0, resp.Confidence, 1e-9)
	assert.Equal(t, resp.Confidence, resp.PDFData.Confidence[domain.FieldHbA1c])
}

func TestExtract_EmptyTextSkipsModel(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/extractions", map[string]string{"text": "   "})

	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ExtractionResponse](t, w)
	assert.Equal(t, 0.0, resp.Confidence)
	assert.Contains(t, resp.Warnings, service.WarnNoText)
	assert.Zero(t, env.chat.CallCount())
}

func TestExtract_MultipartUpload(t *testing.T) {
	env := newTestEnv(t, `{"labs":{"hba1c_pct":64,"fpg_mmol":9.1},"vitals":{},"screenings":{},"warnings":[]}`)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "labs.pdf")
	require.NoError(t, err)
	_, _ = part.Write([]byte("%PDF-1.4 fake"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/extractions", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode[ExtractionResponse](t, w)
	require.NotNil(t, resp.Labs.HbA1cPct)
	assert.Equal(t, 6.9, *resp.Labs.HbA1cPct, "64 mmol/mol is converted to percent")
	assert.Equal(t, "labs.pdf", resp.Provenance["filename"])
}

func TestConflicts(t *testing.T) {
	env := newTestEnv(t)
	form := scenarioPatient()
	pdf := &domain.PDFData{
		Labs:       domain.LabPanel{HbA1cPct: domain.Float(9.0)},
		Confidence: map[domain.Field]float64{domain.FieldHbA1c: 0.9},
	}

	w := env.do(t, http.MethodPost, "/api/v1/conflicts", map[string]any{"form": form, "pdf": pdf})

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Conflicts []service.Conflict `json:"conflicts"`
	}](t, w)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, domain.FieldHbA1c, body.Conflicts[0].Field)
}

func TestBuildQuery(t *testing.T) {
	env := newTestEnv(t)
	p := scenarioPatient()
	p.Labs.HbA1cPct = domain.Float(10.4)

	w := env.do(t, http.MethodPost, "/api/v1/query", p)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Query    string           `json:"query"`
		RedFlags []domain.RedFlag `json:"red_flags"`
	}](t, w)
	assert.NotEmpty(t, body.Query)
	require.Len(t, body.RedFlags, 1)
	assert.Equal(t, "hba1c", body.RedFlags[0].Metric)
}

func TestSearchGuidelines(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/guidelines/search?q=blood+pressure+target&k=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Results []domain.RetrievalResult `json:"results"`
	}](t, w)
	assert.Len(t, body.Results, 2)
	assert.GreaterOrEqual(t, body.Results[0].Score, body.Results[1].Score)

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/guidelines/search?q=", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/guidelines/search?q=bp&k=99", nil).Code)
}

func TestRules(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/rules", nil)
	require.Equal(t, http.StatusOK, w.Code)
	rules := decode[domain.RuleTable](t, w)
	assert.Contains(t, rules.Traffic, "hba1c")

	w = env.do(t, http.MethodGet, "/api/v1/rules/hba1c/status?value=12", nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := decode[map[string]any](t, w)
	assert.Equal(t, "red", status["status"])
	assert.Equal(t, true, status["known"])

	w = env.do(t, http.MethodGet, "/api/v1/rules/unknown_metric/status?value=12", nil)
	status = decode[map[string]any](t, w)
	assert.Equal(t, "green", status["status"])
	assert.Equal(t, false, status["known"])

	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/rules/hba1c/status?value=high", nil).Code)
}

func TestAuditEndpoints(t *testing.T) {
	ids := []string{"nice_ng17_hba1c"}
	env := newTestEnv(t, testutil.ReportJSON(ids, ids))
	gen := decode[GenerateResponse](t, env.do(t, http.MethodPost, "/api/v1/reports", domain.GenerationRequest{Form: scenarioPatient()}))

	w := env.do(t, http.MethodGet, "/api/v1/audit?patient_id=patient-42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Records []map[string]any `json:"records"`
		Total   int64            `json:"total"`
	}](t, w)
	assert.Len(t, body.Records, 1)
	assert.Equal(t, int64(1), body.Total)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/v1/audit/"+gen.RequestID, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/v1/audit/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/v1/audit?limit=0", nil).Code)
}
