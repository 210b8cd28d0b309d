package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/middleware"
	"github.com/diabetes-report-mcp-server/internal/retrieval"
	"github.com/diabetes-report-mcp-server/internal/service"
)

const (
	maxSearchK     = 20
	defaultAuditN  = 50
	maxAuditN      = 500
	transportLabel = "http"
)

// GenerateResponse is returned by POST /api/v1/reports.
type GenerateResponse struct {
	RequestID        string                         `json:"request_id"`
	State            service.State                  `json:"state"`
	PatientID        string                         `json:"patient_id"`
	Date             string                         `json:"date,omitempty"`
	Report           *domain.ReportOut              `json:"report,omitempty"`
	Persisted        bool                           `json:"persisted"`
	Attempts         []service.Attempt              `json:"attempts"`
	Retrieved        []string                       `json:"retrieved_ids"`
	InvalidCitations []string                       `json:"invalid_citations"`
	RedFlags         []domain.RedFlag               `json:"red_flags"`
	Traffic          map[string]domain.TrafficLight `json:"traffic"`
	Errors           []string                       `json:"errors"`
}

func newGenerateResponse(res *service.GenerationResult) GenerateResponse {
	return GenerateResponse{
		RequestID:        res.RequestID,
		State:            res.State,
		PatientID:        res.Patient.UUID,
		Date:             res.Date,
		Report:           res.Report,
		Persisted:        res.Persisted,
		Attempts:         res.Attempts,
		Retrieved:        nonNil(domain.PassageIDs(res.Retrieved)),
		InvalidCitations: nonNil(res.Citations.InvalidIDs),
		RedFlags:         res.RedFlags,
		Traffic:          res.Traffic,
		Errors:           nonNil(res.Errors),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// handleGenerateReport runs one generation request. A FAILED run is answered
// with 422 and the accumulated error strings.
func (s *Server) handleGenerateReport(c *gin.Context) {
	var req domain.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid generation request", err)
		return
	}
	if req.RequestID == "" {
		req.RequestID = c.GetString(middleware.CorrelationIDKey)
	}

	ctx := c.Request.Context()
	res := s.components.Orchestrator.Run(ctx, req)
	s.components.RecordGeneration(ctx, res, transportLabel)

	body := newGenerateResponse(res)
	if !res.Accepted() {
		s.logger.WithFields(logrus.Fields{
			"request_id": res.RequestID,
			"attempts":   len(res.Attempts),
		}).Warn("Report generation failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": domain.NewAPIError(domain.CodeGeneration, lastOr(res.Errors, "Report generation failed"),
				strings.Join(res.Errors, "; "), res.RequestID),
			"result": body,
		})
		return
	}
	c.JSON(http.StatusOK, body)
}

func lastOr(s []string, fallback string) string {
	if len(s) == 0 {
		return fallback
	}
	return s[len(s)-1]
}

func (s *Server) handleListReports(c *gin.Context) {
	patientID := c.Param("id")
	dates, err := s.components.Reports.ListDates(c.Request.Context(), patientID)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patient_id": patientID, "dates": dates})
}

func (s *Server) handleGetReport(c *gin.Context) {
	stored, err := s.components.Reports.Load(c.Request.Context(), c.Param("id"), c.Param("date"))
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

// ExtractionResponse pairs the raw extraction with the merge-ready PDF data.
type ExtractionResponse struct {
	domain.ExtractionResult
	PDFData domain.PDFData `json:"pdf_data"`
}

// handleExtract accepts either a multipart upload in field "file" or a JSON
// body {"text": "..."} with text that was already extracted.
func (s *Server) handleExtract(c *gin.Context) {
	ctx := c.Request.Context()
	var res domain.ExtractionResult

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("file")
		if err != nil {
			s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Missing PDF upload in field 'file'", err)
			return
		}
		f, err := fh.Open()
		if err != nil {
			s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Unreadable upload", err)
			return
		}
		defer f.Close()
		res = s.components.ExtractPDF(ctx, fh.Filename, f)
	} else {
		var body struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid extraction request", err)
			return
		}
		res = s.components.Extraction.Extract(ctx, body.Text)
	}

	c.JSON(http.StatusOK, ExtractionResponse{ExtractionResult: res, PDFData: domain.PDFDataFromExtraction(res)})
}

func (s *Server) handleConflicts(c *gin.Context) {
	var body struct {
		Form domain.PatientState `json:"form"`
		PDF  *domain.PDFData     `json:"pdf"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid conflict request", err)
		return
	}
	threshold := s.components.Orchestrator.Config().ConfidenceThreshold
	conflicts := service.DetectConflicts(body.Form, body.PDF, threshold)
	if conflicts == nil {
		conflicts = []service.Conflict{}
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": conflicts, "threshold": threshold})
}

func (s *Server) handleBuildQuery(c *gin.Context) {
	var patient domain.PatientState
	if err := c.ShouldBindJSON(&patient); err != nil {
		s.respondError(c, http.StatusBadRequest, domain.CodeInvalidInput, "Invalid patient", err)
		return
	}
	patient = service.NormalizePatient(patient)
	c.JSON(http.StatusOK, gin.H{
		"query":     retrieval.BuildQuery(patient),
		"red_flags": service.RedFlags(patient),
	})
}

func (s *Server) handleSearchGuidelines(c *gin.Context) {
	k, err := intQuery(c, "k", retrieval.DefaultTopK, 1, maxSearchK)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	results, err := s.components.Retriever.Retrieve(c.Request.Context(), c.Query("q"), k)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": c.Query("q"), "k": k, "results": results})
}

func (s *Server) handleRules(c *gin.Context) {
	c.JSON(http.StatusOK, s.components.Rules)
}

func (s *Server) handleRuleStatus(c *gin.Context) {
	metric := c.Param("metric")
	value, err := strconv.ParseFloat(c.Query("value"), 64)
	if err != nil {
		s.respondDomainError(c, domain.NewValidationError("value", "must be a number", c.Query("value")))
		return
	}
	_, known := s.components.Rules.Traffic[metric]
	c.JSON(http.StatusOK, gin.H{
		"metric": metric,
		"value":  value,
		"status": s.components.Rules.Status(metric, value),
		"known":  known,
	})
}

func (s *Server) handleListAudit(c *gin.Context) {
	if s.components.Audit == nil {
		s.respondError(c, http.StatusNotFound, domain.CodeNotFound, "Audit log is disabled", nil)
		return
	}
	limit, err := intQuery(c, "limit", defaultAuditN, 1, maxAuditN)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0, 0, 1<<30)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	records, err := s.components.Audit.List(c.Request.Context(), c.Query("patient_id"), limit, offset)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	total, err := s.components.Audit.Count(c.Request.Context())
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total})
}

func (s *Server) handleGetAudit(c *gin.Context) {
	if s.components.Audit == nil {
		s.respondError(c, http.StatusNotFound, domain.CodeNotFound, "Audit log is disabled", nil)
		return
	}
	rec, err := s.components.Audit.Get(c.Request.Context(), c.Param("request_id"))
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	if rec == nil {
		s.respondError(c, http.StatusNotFound, domain.CodeNotFound, "Audit record not found", nil)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// intQuery parses an optional integer query parameter within [lo, hi].
func intQuery(c *gin.Context, name string, def, lo, hi int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewValidationError(name, "must be an integer", raw)
	}
	if n < lo || n > hi {
		return 0, domain.NewValidationError(name, "out of range", n)
	}
	return n, nil
}
