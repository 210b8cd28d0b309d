package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/prompts"
	"github.com/diabetes-report-mcp-server/internal/retrieval"
)

// State of a generation request.
type State string

const (
	StateBuildingContext State = "BUILDING_CONTEXT"
	StateCallingModel    State = "CALLING_MODEL"
	StateParsing         State = "PARSING"
	StateValidating      State = "VALIDATING"
	StateRetrying        State = "RETRYING"
	StateAccepted        State = "ACCEPTED"
	StateFailed          State = "FAILED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateFailed
}

// Attempt records one model round trip. Stage is the state the attempt ended in.
type Attempt struct {
	Number int    `json:"number"`
	Stage  State  `json:"stage"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the attempt produced an error.
func (a Attempt) Failed() bool {
	return a.Error != ""
}

// GenerationResult is the full trace of one generation request.
type GenerationResult struct {
	RequestID   string                         `json:"request_id"`
	State       State                          `json:"state"`
	Transitions []State                        `json:"transitions"`
	Report      *domain.ReportOut              `json:"report,omitempty"`
	Patient     domain.PatientState            `json:"patient"`
	Query       string                         `json:"query"`
	Retrieved   []domain.RetrievalResult       `json:"retrieved"`
	Attempts    []Attempt                      `json:"attempts"`
	Citations   CitationCheck                  `json:"citations"`
	RedFlags    []domain.RedFlag               `json:"red_flags,omitempty"`
	Traffic     map[string]domain.TrafficLight `json:"traffic,omitempty"`
	Date        string                         `json:"date,omitempty"`
	Persisted   bool                           `json:"persisted"`
	Errors      []string                       `json:"errors"`
	Duration    time.Duration                  `json:"duration"`
}

// Accepted reports whether a report was produced.
func (r *GenerationResult) Accepted() bool {
	return r.State == StateAccepted && r.Report != nil
}

// OrchestratorConfig tunes the generation loop.
type OrchestratorConfig struct {
	TopK                int
	Temperature         float64
	MaxTokens           int
	MaxRetries          int
	CitationPolicy      domain.CitationPolicy
	ConfidenceThreshold float64
	// CallTimeout bounds each model call. Zero disables the per-call deadline.
	CallTimeout time.Duration
}

// DefaultOrchestratorConfig returns k=6, temperature 0.2, one retry and the warn policy.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		TopK:                retrieval.DefaultTopK,
		Temperature:         0.2,
		MaxTokens:           4000,
		MaxRetries:          1,
		CitationPolicy:      domain.CitationPolicyWarn,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// OrchestratorConfigFrom maps application config onto the orchestrator. The
// temperature is taken as configured, so zero means greedy decoding; defaults
// come from the config layer.
func OrchestratorConfigFrom(gen domain.GenerationConfig, rag domain.RAGConfig, llm domain.LLMConfig) OrchestratorConfig {
	cfg := DefaultOrchestratorConfig()
	if rag.TopK > 0 {
		cfg.TopK = rag.TopK
	}
	cfg.Temperature = gen.Temperature
	if gen.MaxTokens > 0 {
		cfg.MaxTokens = gen.MaxTokens
	}
	if gen.MaxRetries >= 0 {
		cfg.MaxRetries = gen.MaxRetries
	}
	if gen.CitationPolicy.Valid() {
		cfg.CitationPolicy = gen.CitationPolicy
	}
	if gen.ConfidenceThreshold > 0 {
		cfg.ConfidenceThreshold = gen.ConfidenceThreshold
	}
	cfg.CallTimeout = llm.Timeout
	return cfg
}

// ReportOrchestrator drives a request from merged patient data to an accepted report.
type ReportOrchestrator struct {
	retriever domain.Retriever
	chat      domain.ChatCompleter
	store     domain.ReportStore
	rules     domain.RuleTable
	cfg       OrchestratorConfig
	logger    *logrus.Logger
	now       func() time.Time
}

// NewReportOrchestrator wires the generation pipeline. store may be nil, in which
// case accepted reports are returned without being persisted.
func NewReportOrchestrator(
	retriever domain.Retriever,
	chat domain.ChatCompleter,
	store domain.ReportStore,
	rules domain.RuleTable,
	cfg OrchestratorConfig,
	logger *logrus.Logger,
) *ReportOrchestrator {
	if cfg.TopK <= 0 {
		cfg.TopK = retrieval.DefaultTopK
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if !cfg.CitationPolicy.Valid() {
		cfg.CitationPolicy = domain.CitationPolicyWarn
	}
	return &ReportOrchestrator{
		retriever: retriever,
		chat:      chat,
		store:     store,
		rules:     rules,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the clock used for generation dates.
func (o *ReportOrchestrator) WithClock(now func() time.Time) *ReportOrchestrator {
	o.now = now
	return o
}

// Config returns the effective configuration.
func (o *ReportOrchestrator) Config() OrchestratorConfig {
	return o.cfg
}

// Rules returns the rule table given to the model.
func (o *ReportOrchestrator) Rules() domain.RuleTable {
	return o.rules
}

// Generate runs the request and returns the report only when it was accepted,
// together with every error message accumulated along the way.
func (o *ReportOrchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (*GenerationResult, []string) {
	res := o.Run(ctx, req)
	if !res.Accepted() {
		return nil, res.Errors
	}
	return res, res.Errors
}

// Run executes the state machine and always returns the full trace.
func (o *ReportOrchestrator) Run(ctx context.Context, req domain.GenerationRequest) *GenerationResult {
	start := o.now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}

	patient := NormalizePatient(MergePatient(req.Form, req.PDF, req.Resolutions, o.cfg.ConfidenceThreshold))
	if patient.UUID == "" {
		patient.UUID = uuid.NewString()
	}

	res := &GenerationResult{
		RequestID: requestID,
		Patient:   patient,
		Errors:    []string{},
	}
	logger := o.logger.WithFields(logrus.Fields{
		"request_id": requestID,
		"patient_id": patient.UUID,
	})
	defer func() {
		res.Duration = o.now().Sub(start)
		logger.WithFields(logrus.Fields{
			"state":    res.State,
			"attempts": len(res.Attempts),
			"errors":   len(res.Errors),
			"duration": res.Duration,
		}).Info("Report generation finished")
	}()

	if err := domain.ValidatePatientID(patient.UUID); err != nil {
		logger.WithError(err).Warn("Rejecting request with unusable patient id")
		return o.fail(res, fmt.Sprintf("Report generation failed: %v", err))
	}

	o.enter(res, StateBuildingContext)
	res.RedFlags = RedFlags(patient)
	res.Traffic = TrafficSnapshot(patient, o.rules)
	res.Query = retrieval.BuildQuery(patient)

	retrieved, err := o.retriever.Retrieve(ctx, res.Query, o.cfg.TopK)
	if err != nil {
		logger.WithError(err).Error("Retrieval failed")
		return o.fail(res, fmt.Sprintf("Report generation failed: retrieval: %v", err))
	}
	res.Retrieved = retrieved

	userContext, err := prompts.ReportContext(patient, o.rules, prompts.EvidenceFromResults(retrieved))
	if err != nil {
		return o.fail(res, fmt.Sprintf("Report generation failed: %v", err))
	}
	logger.WithFields(logrus.Fields{
		"query":     res.Query,
		"retrieved": len(retrieved),
		"passages":  domain.PassageIDs(retrieved),
	}).Debug("Context assembled")

	maxAttempts := o.cfg.MaxRetries + 1
	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return o.fail(res, fmt.Sprintf("Report generation cancelled: %v", err))
		}
		if n > 1 {
			o.enter(res, StateRetrying)
		}

		report, check, attempt := o.attempt(ctx, res, n, userContext)
		res.Attempts = append(res.Attempts, attempt)

		if !attempt.Failed() {
			res.Report = report
			res.Citations = check
			if w := check.Warning(); w != nil {
				res.Errors = append(res.Errors, w.Error())
			}
			o.accept(ctx, res, logger)
			return res
		}

		res.Errors = append(res.Errors, fmt.Sprintf("Attempt %d failed: %s", n, attempt.Error))
		logger.WithFields(logrus.Fields{
			"attempt": n,
			"stage":   attempt.Stage,
		}).Warn(attempt.Error)

		if attempt.Stage == StateValidating && o.cfg.CitationPolicy == domain.CitationPolicyReject {
			res.Citations = check
			return o.fail(res, "Report generation failed: citations reference passages that were not retrieved")
		}
		if ctx.Err() != nil {
			return o.fail(res, fmt.Sprintf("Report generation cancelled: %v", ctx.Err()))
		}
	}

	return o.fail(res, fmt.Sprintf("Report generation failed after %d attempts", maxAttempts))
}

// attempt performs CALLING_MODEL, PARSING and VALIDATING once. The message list
// is rebuilt from the recorded attempts so earlier failures become feedback.
func (o *ReportOrchestrator) attempt(ctx context.Context, res *GenerationResult, n int, userContext string) (*domain.ReportOut, CitationCheck, Attempt) {
	o.enter(res, StateCallingModel)

	callCtx := ctx
	if o.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.CallTimeout)
		defer cancel()
	}

	raw, err := o.chat.Complete(callCtx, domain.ChatRequest{
		SystemPrompt: prompts.ReportSystemPrompt,
		Messages:     buildMessages(userContext, res.Attempts),
		Temperature:  o.cfg.Temperature,
		MaxTokens:    o.cfg.MaxTokens,
		JSONOutput:   true,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("model call timed out after %s: %w", o.cfg.CallTimeout, err)
		}
		return nil, CitationCheck{}, Attempt{Number: n, Stage: StateCallingModel, Error: err.Error()}
	}

	o.enter(res, StateParsing)
	report, err := ParseReport(raw)
	if err != nil {
		return nil, CitationCheck{}, Attempt{Number: n, Stage: StateParsing, Error: err.Error()}
	}

	o.enter(res, StateValidating)
	check := ValidateCitations(report, res.Retrieved)
	if !check.Valid && o.cfg.CitationPolicy != domain.CitationPolicyWarn {
		return nil, check, Attempt{Number: n, Stage: StateValidating, Error: check.Warning().Error()}
	}
	return report, check, Attempt{Number: n, Stage: StateValidating}
}

// buildMessages returns the context message followed by one feedback message
// per failed attempt, oldest first.
func buildMessages(userContext string, history []Attempt) []domain.ChatMessage {
	msgs := []domain.ChatMessage{{Role: domain.RoleUser, Content: userContext}}
	for _, a := range history {
		if !a.Failed() {
			continue
		}
		msgs = append(msgs, domain.ChatMessage{
			Role:    domain.RoleUser,
			Content: prompts.RetryFeedback(a.Number, a.Error),
		})
	}
	return msgs
}

func (o *ReportOrchestrator) accept(ctx context.Context, res *GenerationResult, logger *logrus.Entry) {
	o.enter(res, StateAccepted)
	res.Date = o.now().Format(time.DateOnly)

	if !res.Citations.Valid {
		logger.WithField("invalid_ids", res.Citations.InvalidIDs).Warn("Accepted report with invalid citations")
	}
	if o.store == nil {
		return
	}

	err := o.store.Save(ctx, domain.StoredReport{
		PatientID: res.Patient.UUID,
		Date:      res.Date,
		Report:    *res.Report,
		Patient:   res.Patient,
	})
	if err != nil {
		logger.WithError(err).Error("Failed to persist report")
		res.Errors = append(res.Errors, fmt.Sprintf("persisting report: %v", err))
		return
	}
	res.Persisted = true
}

func (o *ReportOrchestrator) fail(res *GenerationResult, msg string) *GenerationResult {
	o.enter(res, StateFailed)
	res.Report = nil
	res.Errors = append(res.Errors, msg)
	return res
}

func (o *ReportOrchestrator) enter(res *GenerationResult, s State) {
	res.State = s
	res.Transitions = append(res.Transitions, s)
}
