package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/retrieval"
	"github.com/diabetes-report-mcp-server/internal/service"
)

const transportLabel = "mcp"

var toolNames = []string{
	"generate_report",
	"extract_labs",
	"search_guidelines",
	"build_query",
	"traffic_light",
	"get_report",
}

// GenerateReportInput is the input schema for generate_report. Resolutions map
// a field name to "pdf", "form" or "auto".
type GenerateReportInput struct {
	RequestID   string              `json:"request_id,omitempty" jsonschema:"caller-supplied request id; generated when empty"`
	Form        domain.PatientState `json:"form" jsonschema:"patient intake record"`
	PDF         *domain.PDFData     `json:"pdf,omitempty" jsonschema:"values extracted from a lab report, with per-field confidence"`
	Resolutions map[string]string   `json:"resolutions,omitempty" jsonschema:"per-field conflict resolution: pdf, form or auto"`
}

// GenerateReportOutput is the output schema for generate_report.
type GenerateReportOutput struct {
	RequestID        string                         `json:"request_id"`
	State            string                         `json:"state"`
	Accepted         bool                           `json:"accepted"`
	PatientID        string                         `json:"patient_id"`
	Date             string                         `json:"date,omitempty"`
	Report           *domain.ReportOut              `json:"report,omitempty"`
	Persisted        bool                           `json:"persisted"`
	Attempts         int                            `json:"attempts"`
	RetrievedIDs     []string                       `json:"retrieved_ids"`
	InvalidCitations []string                       `json:"invalid_citations"`
	RedFlags         []domain.RedFlag               `json:"red_flags"`
	Traffic          map[string]domain.TrafficLight `json:"traffic"`
	Errors           []string                       `json:"errors"`
}

// ExtractLabsInput is the input schema for extract_labs.
type ExtractLabsInput struct {
	Text    string `json:"text,omitempty" jsonschema:"raw lab report text"`
	PDFPath string `json:"pdf_path,omitempty" jsonschema:"path to a lab report PDF readable by the server"`
}

// ExtractLabsOutput is the output schema for extract_labs.
type ExtractLabsOutput struct {
	Result  domain.ExtractionResult `json:"result"`
	PDFData domain.PDFData          `json:"pdf_data"`
}

// SearchGuidelinesInput is the input schema for search_guidelines.
type SearchGuidelinesInput struct {
	Query string `json:"query" jsonschema:"natural-language search query"`
	K     int    `json:"k,omitempty" jsonschema:"number of passages to return (default 6)"`
}

// SearchGuidelinesOutput is the output schema for search_guidelines.
type SearchGuidelinesOutput struct {
	Results []domain.RetrievalResult `json:"results"`
	Count   int                      `json:"count"`
}

// BuildQueryInput is the input schema for build_query.
type BuildQueryInput struct {
	Patient domain.PatientState `json:"patient" jsonschema:"patient record"`
}

// BuildQueryOutput is the output schema for build_query.
type BuildQueryOutput struct {
	Query    string                         `json:"query"`
	RedFlags []domain.RedFlag               `json:"red_flags"`
	Traffic  map[string]domain.TrafficLight `json:"traffic"`
}

// TrafficLightInput is the input schema for traffic_light.
type TrafficLightInput struct {
	Metric string  `json:"metric" jsonschema:"metric name, e.g. hba1c, bp_sys, ldl"`
	Value  float64 `json:"value" jsonschema:"measured value"`
}

// TrafficLightOutput is the output schema for traffic_light.
type TrafficLightOutput struct {
	Metric string              `json:"metric"`
	Value  float64             `json:"value"`
	Status domain.TrafficLight `json:"status"`
	Known  bool                `json:"known"`
}

// GetReportInput is the input schema for get_report.
type GetReportInput struct {
	PatientID string `json:"patient_id" jsonschema:"patient identifier"`
	Date      string `json:"date,omitempty" jsonschema:"report date YYYY-MM-DD; latest when omitted"`
}

// GetReportOutput is the output schema for get_report.
type GetReportOutput struct {
	PatientID string               `json:"patient_id"`
	Dates     []string             `json:"dates"`
	Report    *domain.StoredReport `json:"report,omitempty"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "generate_report",
		Description: "Generate a cited diabetes review report from patient data and optional lab report values",
	}, s.handleGenerateReport)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "extract_labs",
		Description: "Extract structured lab values from lab report text or a PDF file",
	}, s.handleExtractLabs)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search_guidelines",
		Description: "Search the clinical guideline corpus",
	}, s.handleSearchGuidelines)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "build_query",
		Description: "Build the guideline retrieval query and red flags for a patient",
	}, s.handleBuildQuery)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "traffic_light",
		Description: "Classify a metric value as green, amber or red against the rule table",
	}, s.handleTrafficLight)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_report",
		Description: "Load a stored report for a patient",
	}, s.handleGetReport)
}

func (s *Server) handleGenerateReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GenerateReportInput,
) (*mcp.CallToolResult, GenerateReportOutput, error) {
	resolutions, err := parseResolutions(input.Resolutions)
	if err != nil {
		return nil, GenerateReportOutput{}, err
	}

	res := s.components.Orchestrator.Run(ctx, domain.GenerationRequest{
		RequestID:   input.RequestID,
		Form:        input.Form,
		PDF:         input.PDF,
		Resolutions: resolutions,
	})
	s.components.RecordGeneration(ctx, res, transportLabel)

	if !res.Accepted() {
		s.logger.WithFields(logrus.Fields{
			"request_id": res.RequestID,
			"attempts":   len(res.Attempts),
		}).Warn("Report generation failed")
	}

	return nil, GenerateReportOutput{
		RequestID:        res.RequestID,
		State:            string(res.State),
		Accepted:         res.Accepted(),
		PatientID:        res.Patient.UUID,
		Date:             res.Date,
		Report:           res.Report,
		Persisted:        res.Persisted,
		Attempts:         len(res.Attempts),
		RetrievedIDs:     orEmpty(domain.PassageIDs(res.Retrieved)),
		InvalidCitations: orEmpty(res.Citations.InvalidIDs),
		RedFlags:         flagsOrEmpty(res.RedFlags),
		Traffic:          res.Traffic,
		Errors:           orEmpty(res.Errors),
	}, nil
}

func parseResolutions(in map[string]string) (map[domain.Field]domain.Resolution, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[domain.Field]domain.Resolution, len(in))
	for field, raw := range in {
		r, err := domain.ParseResolution(raw)
		if err != nil {
			return nil, fmt.Errorf("resolution for %s: %w", field, err)
		}
		out[domain.Field(field)] = r
	}
	return out, nil
}

func (s *Server) handleExtractLabs(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExtractLabsInput,
) (*mcp.CallToolResult, ExtractLabsOutput, error) {
	var res domain.ExtractionResult
	if path := strings.TrimSpace(input.PDFPath); path != "" {
		doc, err := s.components.PDF.ExtractFile(ctx, path)
		if err != nil {
			return nil, ExtractLabsOutput{}, err
		}
		res = s.components.Extraction.ExtractDocument(ctx, doc)
	} else {
		res = s.components.Extraction.Extract(ctx, input.Text)
	}
	return nil, ExtractLabsOutput{Result: res, PDFData: domain.PDFDataFromExtraction(res)}, nil
}

func (s *Server) handleSearchGuidelines(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchGuidelinesInput,
) (*mcp.CallToolResult, SearchGuidelinesOutput, error) {
	k := input.K
	if k <= 0 {
		k = retrieval.DefaultTopK
	}
	results, err := s.components.Retriever.Retrieve(ctx, input.Query, k)
	if err != nil {
		return nil, SearchGuidelinesOutput{}, err
	}
	return nil, SearchGuidelinesOutput{Results: results, Count: len(results)}, nil
}

func (s *Server) handleBuildQuery(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input BuildQueryInput,
) (*mcp.CallToolResult, BuildQueryOutput, error) {
	p := service.NormalizePatient(input.Patient)
	return nil, BuildQueryOutput{
		Query:    retrieval.BuildQuery(p),
		RedFlags: flagsOrEmpty(service.RedFlags(p)),
		Traffic:  service.TrafficSnapshot(p, s.components.Rules),
	}, nil
}

func (s *Server) handleTrafficLight(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input TrafficLightInput,
) (*mcp.CallToolResult, TrafficLightOutput, error) {
	_, known := s.components.Rules.Traffic[input.Metric]
	return nil, TrafficLightOutput{
		Metric: input.Metric,
		Value:  input.Value,
		Status: s.components.Rules.Status(input.Metric, input.Value),
		Known:  known,
	}, nil
}

func (s *Server) handleGetReport(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetReportInput,
) (*mcp.CallToolResult, GetReportOutput, error) {
	dates, err := s.components.Reports.ListDates(ctx, input.PatientID)
	if err != nil {
		return nil, GetReportOutput{}, err
	}
	out := GetReportOutput{PatientID: input.PatientID, Dates: orEmpty(dates)}

	date := input.Date
	if date == "" {
		if len(dates) == 0 {
			return nil, out, nil
		}
		date = dates[0]
	}
	stored, err := s.components.Reports.Load(ctx, input.PatientID, date)
	if err != nil {
		return nil, GetReportOutput{}, err
	}
	out.Report = stored
	return nil, out, nil
}

func flagsOrEmpty(f []domain.RedFlag) []domain.RedFlag {
	if f == nil {
		return []domain.RedFlag{}
	}
	return f
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
