// Package app assembles the generation pipeline from configuration. The REST
// server, the MCP server and the operator CLI all build on Components.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/diabetes-report-mcp-server/internal/audit"
	"github.com/diabetes-report-mcp-server/internal/cache"
	"github.com/diabetes-report-mcp-server/internal/corpus"
	"github.com/diabetes-report-mcp-server/internal/database"
	"github.com/diabetes-report-mcp-server/internal/domain"
	"github.com/diabetes-report-mcp-server/internal/index"
	"github.com/diabetes-report-mcp-server/internal/logging"
	"github.com/diabetes-report-mcp-server/internal/pdf"
	"github.com/diabetes-report-mcp-server/internal/repository"
	"github.com/diabetes-report-mcp-server/internal/retrieval"
	"github.com/diabetes-report-mcp-server/internal/service"
	"github.com/diabetes-report-mcp-server/internal/storage"
	"github.com/diabetes-report-mcp-server/pkg/external"
)

// Components is the wired pipeline.
type Components struct {
	Config       *domain.Config
	Logger       *logrus.Logger
	Rules        domain.RuleTable
	Corpus       domain.GuidelineCorpus
	Embedder     domain.Embedder
	Chat         domain.ChatCompleter
	Index        *index.Index
	Retriever    domain.Retriever
	Reports      domain.ReportStore
	Audit        audit.Store
	Orchestrator *service.ReportOrchestrator
	Extraction   *service.ExtractionAgent
	PDF          *pdf.Extractor

	runner       pdf.CommandRunner
	forceRebuild bool
	closers      []func() error
}

// Option customises construction, mainly to substitute collaborators in tests.
type Option func(*Components)

// WithLogger sets a custom logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Components) { c.Logger = logger }
}

// WithModels replaces the model endpoint client.
func WithModels(embedder domain.Embedder, chat domain.ChatCompleter) Option {
	return func(c *Components) {
		c.Embedder = embedder
		c.Chat = chat
	}
}

// WithReportStore replaces the configured report backend.
func WithReportStore(store domain.ReportStore) Option {
	return func(c *Components) { c.Reports = store }
}

// WithAuditStore replaces the configured audit backend.
func WithAuditStore(store audit.Store) Option {
	return func(c *Components) { c.Audit = store }
}

// WithCommandRunner replaces the runner used to invoke pdftotext.
func WithCommandRunner(runner pdf.CommandRunner) Option {
	return func(c *Components) { c.runner = runner }
}

// WithForceRebuild rebuilds the index from the corpus instead of loading the pair
// on disk. A pair built with another embedding model is replaced rather than
// rejected.
func WithForceRebuild() Option {
	return func(c *Components) { c.forceRebuild = true }
}

// New loads the corpus and rules, opens or builds the index and connects the
// configured stores. Close releases everything New opened.
func New(ctx context.Context, cfg *domain.Config, opts ...Option) (*Components, error) {
	c := &Components{Config: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.Logger == nil {
		c.Logger = logging.New(cfg.Logging)
	}

	if err := c.init(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Components) init(ctx context.Context) error {
	cfg := c.Config
	var err error

	if c.Rules, err = loadRules(cfg.RAG.RulesFile); err != nil {
		return fmt.Errorf("loading rules: %w", err)
	}
	if c.Corpus, err = loadCorpus(cfg.RAG.CorpusFile); err != nil {
		return fmt.Errorf("loading corpus: %w", err)
	}

	if c.Embedder == nil || c.Chat == nil {
		client := external.NewLLMClientFromConfig(cfg.LLM, c.Logger)
		if c.Embedder == nil {
			c.Embedder = client.Embedder(cfg.LLM.EmbeddingModel)
		}
		if c.Chat == nil {
			c.Chat = client.Chat(cfg.LLM.ChatModel)
		}
	}

	vc, closeCache, err := cache.New(cfg.Cache, c.Logger)
	if err != nil {
		return fmt.Errorf("creating embedding cache: %w", err)
	}
	c.closers = append(c.closers, closeCache)
	c.Embedder = cache.NewCachedEmbedder(c.Embedder, vc, c.Logger)

	if err := c.openIndex(ctx); err != nil {
		return err
	}

	if c.Reports == nil {
		if c.Reports, err = c.openReportStore(ctx); err != nil {
			return err
		}
	}
	if c.Audit == nil {
		if c.Audit, err = c.openAuditStore(); err != nil {
			return err
		}
	}

	c.Orchestrator = c.newOrchestrator()
	c.Extraction = service.NewExtractionAgent(c.Chat, service.ExtractionAgentConfig{
		Temperature:   cfg.Extraction.Temperature,
		MaxTokens:     cfg.Extraction.MaxTokens,
		Timeout:       cfg.LLM.Timeout,
		LowConfidence: cfg.Generation.ConfidenceThreshold,
	}, c.Logger)
	c.PDF = pdf.NewExtractor(cfg.Extraction.PdftotextPath, c.runner, c.Logger)

	c.Logger.WithFields(logrus.Fields{
		"index_size":      c.Index.Size(),
		"embedding_model": c.Embedder.ModelName(),
		"chat_model":      c.Chat.ModelName(),
		"storage":         cfg.Storage.Backend,
		"audit":           cfg.Audit.Backend,
		"citation_policy": c.Orchestrator.Config().CitationPolicy,
	}).Info("Report pipeline ready")
	return nil
}

// NewBuilder returns an index builder using the configured chunking.
func NewBuilder(cfg domain.RAGConfig, embedder domain.Embedder, logger *logrus.Logger) *index.Builder {
	var opts []index.Option
	if cfg.ChunkSize > 0 {
		opts = append(opts, index.WithChunkSize(cfg.ChunkSize))
	}
	if cfg.ChunkOverlap > 0 {
		opts = append(opts, index.WithOverlap(cfg.ChunkOverlap))
	}
	return index.NewBuilder(embedder, index.NewChunker(opts...), logger)
}

func (c *Components) openIndex(ctx context.Context) error {
	builder := NewBuilder(c.Config.RAG, c.Embedder, c.Logger)
	open := index.Ensure
	if c.forceRebuild {
		open = index.Rebuild
	}
	idx, err := open(ctx, c.Config.RAG.IndexDir, c.Corpus, builder)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	retriever, err := retrieval.NewRetriever(idx, c.Embedder, c.Logger)
	if err != nil {
		return err
	}
	c.Index = idx
	c.Retriever = retriever
	return nil
}

func (c *Components) newOrchestrator() *service.ReportOrchestrator {
	cfg := c.Config
	return service.NewReportOrchestrator(
		c.Retriever,
		c.Chat,
		c.Reports,
		c.Rules,
		service.OrchestratorConfigFrom(cfg.Generation, cfg.RAG, cfg.LLM),
		c.Logger,
	)
}

func (c *Components) openReportStore(ctx context.Context) (domain.ReportStore, error) {
	switch c.Config.Storage.Backend {
	case "", "file":
		return storage.NewFileReportStore(c.Config.Storage.DataDir, c.Logger), nil
	case "postgres":
		dbCfg := database.ConfigFromDomain(c.Config.Database)
		if err := database.Migrate(ctx, dbCfg.URL(), c.Logger); err != nil {
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		db, err := database.NewConnection(ctx, dbCfg, c.Logger)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, func() error { db.Close(); return nil })
		return repository.NewReportRepository(db.Pool, c.Logger), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", c.Config.Storage.Backend)
	}
}

func (c *Components) openAuditStore() (audit.Store, error) {
	var (
		store audit.Store
		err   error
	)
	switch c.Config.Audit.Backend {
	case "none":
		return nil, nil
	case "", "sqlite":
		store, err = audit.NewSQLiteStore(c.Config.Audit.SQLitePath)
	case "postgres":
		store, err = audit.NewPostgresStoreFromURL(database.ConfigFromDomain(c.Config.Database).URL())
	default:
		return nil, fmt.Errorf("unknown audit backend %q", c.Config.Audit.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("opening audit store: %w", err)
	}
	c.closers = append(c.closers, store.Close)
	return store, nil
}

func loadRules(path string) (domain.RuleTable, error) {
	if path == "" {
		return corpus.DefaultRules()
	}
	return corpus.LoadRules(path)
}

func loadCorpus(path string) (domain.GuidelineCorpus, error) {
	if path == "" {
		return corpus.Default()
	}
	return corpus.LoadFile(path)
}

// RecordGeneration appends an audit record for a finished request. Audit
// failures are logged and never change the outcome of the request.
func (c *Components) RecordGeneration(ctx context.Context, res *service.GenerationResult, transport string) {
	if c.Audit == nil || res == nil {
		return
	}
	rec := audit.RecordFromResult(res, c.Orchestrator.Config().CitationPolicy, transport)
	if err := c.Audit.Save(ctx, rec); err != nil {
		c.Logger.WithError(err).WithField("request_id", res.RequestID).Error("Failed to write audit record")
	}
}

// ExtractPDF reads an uploaded report and runs the extraction agent over it.
// Unreadable or empty uploads yield a zero-confidence result, never an error.
func (c *Components) ExtractPDF(ctx context.Context, filename string, r io.Reader) domain.ExtractionResult {
	doc, err := c.PDF.Extract(ctx, filename, r)
	if errors.Is(err, pdf.ErrEmptyDocument) {
		return domain.FailedExtraction(service.WarnNoText, map[string]string{"filename": filename})
	}
	if err != nil {
		c.Logger.WithError(err).WithField("file", filename).Warn("PDF text extraction failed")
		return domain.FailedExtraction(err.Error(), map[string]string{"filename": filename})
	}
	return c.Extraction.ExtractDocument(ctx, doc)
}

// Close releases stores and connections in reverse order of opening.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
