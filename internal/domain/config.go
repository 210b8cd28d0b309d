package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	LLM        LLMConfig        `mapstructure:"llm"`
	RAG        RAGConfig        `mapstructure:"rag"`
	Generation GenerationConfig `mapstructure:"generation"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Audit      AuditConfig      `mapstructure:"audit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LLMConfig configures the OpenAI-compatible embedding and chat endpoint.
type LLMConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	ChatModel      string        `mapstructure:"chat_model"`
	EmbeddingModel string        `mapstructure:"embedding_model"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	BreakerRatio   float64       `mapstructure:"breaker_failure_ratio"`
}

// RAGConfig configures corpus chunking, the index location and fan-out.
type RAGConfig struct {
	IndexDir     string `mapstructure:"index_dir"`
	CorpusFile   string `mapstructure:"corpus_file"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	TopK         int    `mapstructure:"top_k"`
	RulesFile    string `mapstructure:"rules_file"`
}

// CitationPolicy decides what happens when a report cites evidence that was not retrieved.
type CitationPolicy string

const (
	// CitationPolicyWarn accepts the report and records the defect.
	CitationPolicyWarn CitationPolicy = "warn"
	// CitationPolicyRetry treats invalid citations as a failed attempt.
	CitationPolicyRetry CitationPolicy = "retry"
	// CitationPolicyReject fails the request on the first invalid citation.
	CitationPolicyReject CitationPolicy = "reject"
)

// Valid reports whether p is a known policy.
func (p CitationPolicy) Valid() bool {
	switch p {
	case CitationPolicyWarn, CitationPolicyRetry, CitationPolicyReject:
		return true
	}
	return false
}

// GenerationConfig configures the report generator.
type GenerationConfig struct {
	Temperature         float64        `mapstructure:"temperature"`
	MaxTokens           int            `mapstructure:"max_tokens"`
	MaxRetries          int            `mapstructure:"max_retries"`
	CitationPolicy      CitationPolicy `mapstructure:"citation_policy"`
	ConfidenceThreshold float64        `mapstructure:"confidence_threshold"`
}

// ExtractionConfig configures the lab report extraction agent.
type ExtractionConfig struct {
	Temperature   float64 `mapstructure:"temperature"`
	MaxTokens     int     `mapstructure:"max_tokens"`
	PdftotextPath string  `mapstructure:"pdftotext_path"`
}

// CacheConfig represents embedding cache configuration
type CacheConfig struct {
	Backend  string        `mapstructure:"backend"`
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
	Size     int           `mapstructure:"size"`
}

// StorageConfig selects where accepted reports are persisted.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"`
}

// AuditConfig selects the generation audit log backend.
type AuditConfig struct {
	Backend    string `mapstructure:"backend"`
	SQLitePath string `mapstructure:"sqlite_path"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
