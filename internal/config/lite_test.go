package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

func TestDefaultLiteConfig(t *testing.T) {
	cfg := DefaultLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, 24*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "text-embedding-ada-002", cfg.EmbeddingModel)
	assert.Equal(t, 1, cfg.MaxRetries)
	assert.Equal(t, domain.CitationPolicyWarn, cfg.CitationPolicy)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadLiteConfig_Defaults(t *testing.T) {
	clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, 1000, cfg.CacheMaxItems)
	assert.Equal(t, "stdio", cfg.Transport)
	assert.Empty(t, cfg.APIKey)
}

func TestLoadLiteConfig_EnvironmentOverrides(t *testing.T) {
	clearEnvVars(t)

	os.Setenv("DIABETES_DATA_DIR", "/tmp/test-diabetes")
	os.Setenv("DIABETES_CACHE_MAX_ITEMS", "500")
	os.Setenv("DIABETES_CACHE_TTL", "12h")
	os.Setenv("DIABETES_TRANSPORT", "http")
	os.Setenv("DIABETES_HTTP_PORT", "9090")
	os.Setenv("DIABETES_LOG_LEVEL", "debug")
	os.Setenv("DIABETES_MAX_RETRIES", "3")
	os.Setenv("DIABETES_CITATION_POLICY", "reject")
	os.Setenv("OPENAI_API_KEY", "test-key")
	os.Setenv("EMBEDDING_MODEL", "text-embedding-3-small")

	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, "/tmp/test-diabetes", cfg.DataDir)
	assert.Equal(t, 500, cfg.CacheMaxItems)
	assert.Equal(t, 12*time.Hour, cfg.CacheTTL)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, domain.CitationPolicyReject, cfg.CitationPolicy)
	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
}

func TestLoadLiteConfig_IgnoresUnknownCitationPolicy(t *testing.T) {
	clearEnvVars(t)
	os.Setenv("DIABETES_CITATION_POLICY", "lenient")
	defer clearEnvVars(t)

	cfg := LoadLiteConfig()

	assert.Equal(t, domain.CitationPolicyWarn, cfg.CitationPolicy)
}

func TestLiteConfig_Paths(t *testing.T) {
	cfg := &LiteConfig{DataDir: "/home/user/.diabetes-report"}

	assert.Equal(t, "/home/user/.diabetes-report/audit.db", cfg.AuditDBPath())
	assert.Equal(t, "/home/user/.diabetes-report/rag", cfg.IndexDir())
}

func TestLiteConfig_EnsureDataDir(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(tmpDir)

	cfg := &LiteConfig{DataDir: filepath.Join(tmpDir, "diabetes")}

	err = cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(cfg.DataDir)
	assert.NoError(t, err)

	_, err = os.Stat(cfg.IndexDir())
	assert.NoError(t, err)
}

func TestLiteConfig_Config(t *testing.T) {
	lite := DefaultLiteConfig()
	lite.DataDir = "/data"

	cfg := lite.Config()

	assert.Equal(t, "/data/rag", cfg.RAG.IndexDir)
	assert.Equal(t, 6, cfg.RAG.TopK)
	assert.Equal(t, 1000, cfg.RAG.ChunkSize)
	assert.Equal(t, 200, cfg.RAG.ChunkOverlap)
	assert.Equal(t, 0.2, cfg.Generation.Temperature)
	assert.Equal(t, 0.7, cfg.Generation.ConfidenceThreshold)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.Equal(t, "/data/audit.db", cfg.Audit.SQLitePath)
	assert.Equal(t, "stderr", cfg.Logging.Output)
}

func clearEnvVars(t *testing.T) {
	t.Helper()
	vars := []string{
		"DIABETES_DATA_DIR",
		"DIABETES_CACHE_MAX_ITEMS",
		"DIABETES_CACHE_TTL",
		"DIABETES_TRANSPORT",
		"DIABETES_HTTP_PORT",
		"DIABETES_LOG_LEVEL",
		"DIABETES_LOG_FORMAT",
		"DIABETES_MAX_RETRIES",
		"DIABETES_CITATION_POLICY",
		"OPENAI_API_KEY",
		"LLM_BASE_URL",
		"LLM_CHAT_MODEL",
		"EMBEDDING_MODEL",
		"LLM_TIMEOUT",
		"PDFTOTEXT_PATH",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
