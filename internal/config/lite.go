// Package config provides configuration management for the report servers.
// This file contains the lightweight configuration for standalone operation.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// LiteConfig is a simplified configuration for standalone operation.
// It requires no external databases and uses sensible defaults.
type LiteConfig struct {
	// Data storage
	DataDir string // Base directory for the index, reports and audit log

	// Cache settings
	CacheMaxItems int           // Maximum embeddings in memory cache
	CacheTTL      time.Duration // Embedding cache TTL

	// Model endpoint
	LLMBaseURL     string
	APIKey         string
	ChatModel      string
	EmbeddingModel string
	LLMTimeout     time.Duration

	// Generation
	MaxRetries     int
	CitationPolicy domain.CitationPolicy
	PdftotextPath  string

	// Transport settings
	Transport string // Transport type: stdio, http
	HTTPPort  int    // HTTP port (if transport is http)

	// Logging
	LogLevel  string // Log level: debug, info, warn, error
	LogFormat string // Log format: json, text
}

// DefaultLiteConfig returns a configuration with sensible defaults.
func DefaultLiteConfig() *LiteConfig {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".diabetes-report")

	return &LiteConfig{
		DataDir:        dataDir,
		CacheMaxItems:  1000,
		CacheTTL:       24 * time.Hour,
		LLMBaseURL:     "https://api.openai.com/v1",
		ChatModel:      "gpt-4o-mini",
		EmbeddingModel: "text-embedding-ada-002",
		LLMTimeout:     120 * time.Second,
		MaxRetries:     1,
		CitationPolicy: domain.CitationPolicyWarn,
		PdftotextPath:  "pdftotext",
		Transport:      "stdio",
		HTTPPort:       8080,
		LogLevel:       "info",
		LogFormat:      "json",
	}
}

// LoadLiteConfig loads configuration from environment variables.
// Falls back to defaults if not set.
func LoadLiteConfig() *LiteConfig {
	cfg := DefaultLiteConfig()

	if v := os.Getenv("DIABETES_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}

	if v := os.Getenv("DIABETES_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.CacheMaxItems = n
		}
	}
	if v := os.Getenv("DIABETES_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}

	cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLMBaseURL = v
	}
	if v := os.Getenv("LLM_CHAT_MODEL"); v != "" {
		cfg.ChatModel = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		cfg.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLMTimeout = d
		}
	}

	if v := os.Getenv("DIABETES_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.MaxRetries = n
		}
	}
	if v := domain.CitationPolicy(os.Getenv("DIABETES_CITATION_POLICY")); v.Valid() {
		cfg.CitationPolicy = v
	}
	if v := os.Getenv("PDFTOTEXT_PATH"); v != "" {
		cfg.PdftotextPath = v
	}

	if v := os.Getenv("DIABETES_TRANSPORT"); v != "" {
		cfg.Transport = v
	}
	if v := os.Getenv("DIABETES_HTTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.HTTPPort = n
		}
	}

	if v := os.Getenv("DIABETES_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DIABETES_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	return cfg
}

// AuditDBPath returns the path to the audit SQLite database.
func (c *LiteConfig) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// IndexDir returns the directory holding the vector index pair.
func (c *LiteConfig) IndexDir() string {
	return filepath.Join(c.DataDir, "rag")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *LiteConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	return os.MkdirAll(c.IndexDir(), 0755)
}

// Config expands the lite settings into the full configuration with file
// storage, SQLite audit and an in-memory embedding cache.
func (c *LiteConfig) Config() *domain.Config {
	return &domain.Config{
		LLM: domain.LLMConfig{
			BaseURL:        c.LLMBaseURL,
			APIKey:         c.APIKey,
			ChatModel:      c.ChatModel,
			EmbeddingModel: c.EmbeddingModel,
			Timeout:        c.LLMTimeout,
			RateLimit:      5,
			BreakerRatio:   0.6,
		},
		RAG: domain.RAGConfig{
			IndexDir:     c.IndexDir(),
			ChunkSize:    1000,
			ChunkOverlap: 200,
			TopK:         6,
		},
		Generation: domain.GenerationConfig{
			Temperature:         0.2,
			MaxTokens:           4000,
			MaxRetries:          c.MaxRetries,
			CitationPolicy:      c.CitationPolicy,
			ConfidenceThreshold: 0.7,
		},
		Extraction: domain.ExtractionConfig{
			Temperature:   0.1,
			MaxTokens:     1000,
			PdftotextPath: c.PdftotextPath,
		},
		Cache: domain.CacheConfig{
			Backend: "memory",
			TTL:     c.CacheTTL,
			Size:    c.CacheMaxItems,
		},
		Storage: domain.StorageConfig{
			Backend: "file",
			DataDir: c.DataDir,
		},
		Audit: domain.AuditConfig{
			Backend:    "sqlite",
			SQLitePath: c.AuditDBPath(),
		},
		Logging: domain.LoggingConfig{
			Level:  c.LogLevel,
			Format: c.LogFormat,
			Output: "stderr",
		},
	}
}
