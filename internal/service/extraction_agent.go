package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/pdf"
	"github.com/diabetes-report-mcp-server/internal/prompts"
)

// Extraction warnings.
const (
	WarnNoText       = "No text extracted from PDF"
	WarnParseFailure = "Failed to parse extraction JSON"
	WarnModelFailure = "LLM extraction failed"
)

// hba1cMmolMolFloor separates values reported in mmol/mol from percentages.
// No plausible percentage exceeds it.
const hba1cMmolMolFloor = 20.0

// ExtractionAgentConfig tunes the extraction call.
type ExtractionAgentConfig struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// LowConfidence is the confidence below which a result is flagged low_confidence.
	LowConfidence float64
}

// DefaultExtractionAgentConfig returns temperature 0.1 and 1000 tokens.
func DefaultExtractionAgentConfig() ExtractionAgentConfig {
	return ExtractionAgentConfig{
		Temperature:   0.1,
		MaxTokens:     1000,
		LowConfidence: DefaultConfidenceThreshold,
	}
}

// ExtractionAgent reads lab values out of report text with a single model call.
type ExtractionAgent struct {
	chat   domain.ChatCompleter
	cfg    ExtractionAgentConfig
	logger *logrus.Logger
}

// NewExtractionAgent creates an agent. Zero-valued config fields take defaults.
func NewExtractionAgent(chat domain.ChatCompleter, cfg ExtractionAgentConfig, logger *logrus.Logger) *ExtractionAgent {
	def := DefaultExtractionAgentConfig()
	if cfg.Temperature <= 0 {
		cfg.Temperature = def.Temperature
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = def.MaxTokens
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = def.LowConfidence
	}
	return &ExtractionAgent{chat: chat, cfg: cfg, logger: logger}
}

// ExtractDocument extracts from a PDF's text. Scanned documents short-circuit
// without a model call.
func (a *ExtractionAgent) ExtractDocument(ctx context.Context, doc *pdf.Document) domain.ExtractionResult {
	if doc == nil {
		return domain.FailedExtraction(WarnNoText, nil)
	}
	provenance := doc.Provenance()
	if doc.LooksScanned() {
		a.logger.WithField("file", doc.Filename).Info("Skipping extraction of scanned document")
		return domain.FailedExtraction(pdf.ScannedWarning, provenance)
	}

	res := a.Extract(ctx, doc.Text())
	for k, v := range provenance {
		res.Provenance[k] = v
	}
	return res
}

// Extract turns raw lab report text into structured values. It never returns an
// error: every failure is a zero-confidence result carrying a warning.
func (a *ExtractionAgent) Extract(ctx context.Context, text string) domain.ExtractionResult {
	if strings.TrimSpace(text) == "" {
		return domain.FailedExtraction(WarnNoText, nil)
	}

	callCtx := ctx
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}

	provenance := map[string]string{"extraction_model": a.chat.ModelName()}
	raw, err := a.chat.Complete(callCtx, domain.ChatRequest{
		SystemPrompt: prompts.ExtractionSystemPrompt,
		Messages:     []domain.ChatMessage{{Role: domain.RoleUser, Content: prompts.ExtractionInput(text)}},
		Temperature:  a.cfg.Temperature,
		MaxTokens:    a.cfg.MaxTokens,
		JSONOutput:   true,
	})
	if err != nil {
		a.logger.WithError(err).Warn("Extraction call failed")
		return domain.FailedExtraction(fmt.Sprintf("%s: %v", WarnModelFailure, err), provenance)
	}

	var parsed struct {
		Labs       domain.LabPanel   `json:"labs"`
		Vitals     domain.Vitals     `json:"vitals"`
		Screenings domain.Screenings `json:"screenings"`
		Warnings   []string          `json:"warnings"`
	}
	if err := json.Unmarshal([]byte(StripCodeFence(raw)), &parsed); err != nil {
		failure := &domain.ExtractionFailure{Reason: WarnParseFailure, Err: err}
		a.logger.WithError(err).Warn("Extraction response was not valid JSON")
		return domain.FailedExtraction(failure.Error(), provenance)
	}

	res := domain.ExtractionResult{
		Labs:       parsed.Labs,
		Vitals:     parsed.Vitals,
		Screenings: parsed.Screenings,
		Warnings:   append([]string{}, parsed.Warnings...),
		Provenance: provenance,
	}
	if v := res.Labs.HbA1cPct; v != nil && *v > hba1cMmolMolFloor {
		pct := HbA1cMmolToPercent(*v)
		res.Warnings = append(res.Warnings, fmt.Sprintf("HbA1c %.0f looked like mmol/mol; converted to %.1f%%", *v, pct))
		res.Labs.HbA1cPct = domain.Float(pct)
	}

	n := len(res.ExtractedFields())
	res.Confidence = domain.ExtractionConfidence(n)
	res.Provenance["extracted_fields"] = fmt.Sprint(n)
	switch {
	case n == 0:
		res.Status = domain.ExtractionFailed
		res.Warnings = append(res.Warnings, "No lab values could be identified")
	case res.Confidence < a.cfg.LowConfidence:
		res.Status = domain.ExtractionLowConfidence
	default:
		res.Status = domain.ExtractionOK
	}

	a.logger.WithFields(logrus.Fields{
		"fields":     n,
		"confidence": res.Confidence,
		"status":     res.Status,
	}).Info("Lab extraction completed")
	return res
}
