package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. DIABETES_REPORT_LLM_API_KEY.
const EnvPrefix = "DIABETES_REPORT"

// Manager implements the ConfigManager interface using Viper
type Manager struct {
	v      *viper.Viper
	file   string
	config *domain.Config
}

var _ domain.ConfigManager = (*Manager)(nil)

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	return NewManagerFromFile("")
}

// NewManagerFromFile loads configuration from an explicit file instead of the search path.
func NewManagerFromFile(path string) (*Manager, error) {
	m := &Manager{file: path}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	v := viper.New()

	if m.file != "" {
		v.SetConfigFile(m.file)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/diabetes-report/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and env vars cover everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || m.file != "" {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "180s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.request_timeout", "170s")
	v.SetDefault("server.max_upload_bytes", 10<<20)
	v.SetDefault("server.cors_origins", []string{"*"})

	// Database defaults
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.database", "diabetes_report")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "5m")

	// Model endpoint defaults
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.chat_model", "gpt-4o-mini")
	v.SetDefault("llm.embedding_model", "text-embedding-ada-002")
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.rate_limit", 5)
	v.SetDefault("llm.breaker_failure_ratio", 0.6)

	// Retrieval defaults
	v.SetDefault("rag.index_dir", "data/rag")
	v.SetDefault("rag.corpus_file", "")
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 6)
	v.SetDefault("rag.rules_file", "")

	// Generation defaults
	v.SetDefault("generation.temperature", 0.2)
	v.SetDefault("generation.max_tokens", 4000)
	v.SetDefault("generation.max_retries", 1)
	v.SetDefault("generation.citation_policy", string(domain.CitationPolicyWarn))
	v.SetDefault("generation.confidence_threshold", 0.7)

	// Extraction defaults
	v.SetDefault("extraction.temperature", 0.1)
	v.SetDefault("extraction.max_tokens", 1000)
	v.SetDefault("extraction.pdftotext_path", "pdftotext")

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.redis_url", "redis://localhost:6379")
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.size", 2048)

	// Storage defaults
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.data_dir", "data")

	// Audit defaults
	v.SetDefault("audit.backend", "sqlite")
	v.SetDefault("audit.sqlite_path", "data/audit.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Enabled || config.Storage.Backend == "postgres" || config.Audit.Backend == "postgres" {
		if config.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if config.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if config.Database.Username == "" {
			return fmt.Errorf("database username is required")
		}
	}

	if _, err := url.ParseRequestURI(config.LLM.BaseURL); err != nil {
		return fmt.Errorf("invalid llm base URL %q: %w", config.LLM.BaseURL, err)
	}
	if config.LLM.EmbeddingModel == "" {
		return fmt.Errorf("embedding model is required")
	}

	if config.RAG.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive: %d", config.RAG.ChunkSize)
	}
	if config.RAG.ChunkOverlap < 0 || config.RAG.ChunkOverlap >= config.RAG.ChunkSize {
		return fmt.Errorf("chunk overlap must be in [0, %d): %d", config.RAG.ChunkSize, config.RAG.ChunkOverlap)
	}
	if config.RAG.TopK <= 0 {
		return fmt.Errorf("top_k must be positive: %d", config.RAG.TopK)
	}

	if t := config.Generation.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("generation temperature must be in [0, 2]: %v", t)
	}
	if config.Generation.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative: %d", config.Generation.MaxRetries)
	}
	if !config.Generation.CitationPolicy.Valid() {
		return fmt.Errorf("invalid citation policy: %q", config.Generation.CitationPolicy)
	}
	if t := config.Generation.ConfidenceThreshold; t < 0 || t > 1 {
		return fmt.Errorf("confidence threshold must be in [0, 1]: %v", t)
	}

	switch config.Cache.Backend {
	case "memory", "none":
	case "redis":
		if config.Cache.RedisURL == "" {
			return fmt.Errorf("Redis URL is required for the redis cache backend")
		}
	default:
		return fmt.Errorf("invalid cache backend: %s", config.Cache.Backend)
	}

	switch config.Storage.Backend {
	case "file", "postgres":
	default:
		return fmt.Errorf("invalid storage backend: %s", config.Storage.Backend)
	}

	switch config.Audit.Backend {
	case "sqlite", "postgres", "none":
	default:
		return fmt.Errorf("invalid audit backend: %s", config.Audit.Backend)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}

// GetDatabaseConnectionString returns a postgres URL for pgx and golang-migrate.
func (m *Manager) GetDatabaseConnectionString() string {
	return DatabaseURL(m.config.Database)
}

// DatabaseURL formats db as a postgres:// URL.
func DatabaseURL(db domain.DatabaseConfig) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(db.Username, db.Password),
		Host:     fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:     db.Database,
		RawQuery: "sslmode=" + db.SSLMode,
	}
	return u.String()
}

// IsProduction returns true if running in production mode
func (m *Manager) IsProduction() bool {
	return strings.ToLower(m.v.GetString("environment")) == "production"
}

// IsDevelopment returns true if running in development mode
func (m *Manager) IsDevelopment() bool {
	env := strings.ToLower(m.v.GetString("environment"))
	return env == "development" || env == "dev" || env == ""
}
