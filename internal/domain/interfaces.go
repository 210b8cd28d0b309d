package domain

import (
	"context"
)

// Embedder turns texts into dense vectors with one fixed model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}

// ChatRole is the author of a chat message.
type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatMessage is a single turn sent to the generation model.
type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// ChatRequest is one structured-generation call.
type ChatRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	Temperature  float64
	MaxTokens    int
	JSONOutput   bool
}

// ChatCompleter issues generation calls and returns the raw text.
type ChatCompleter interface {
	Complete(ctx context.Context, req ChatRequest) (string, error)
	ModelName() string
}

// Retriever returns the top-k passages for a natural-language query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]RetrievalResult, error)
}

// ReportStore persists accepted reports per patient and per generation date.
type ReportStore interface {
	Save(ctx context.Context, report StoredReport) error
	Load(ctx context.Context, patientID, date string) (*StoredReport, error)
	ListDates(ctx context.Context, patientID string) ([]string, error)
}

// ConfigManager defines the interface for configuration management
type ConfigManager interface {
	GetConfig() *Config
	GetDatabaseConfig() *DatabaseConfig
	GetServerConfig() *ServerConfig
	Reload() error
	Validate() error
	GetDatabaseConnectionString() string
	IsProduction() bool
	IsDevelopment() bool
}
