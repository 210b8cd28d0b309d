package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4096

// LLMClient talks to an OpenAI-compatible API for embeddings and chat completions.
type LLMClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *logrus.Logger
}

// NewLLMClient creates a new client
func NewLLMClient(config ClientConfig, logger *logrus.Logger) *LLMClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	if config.Timeout == 0 {
		config.Timeout = 120 * time.Second
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 5
	}

	return &LLMClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		breaker:   newCircuitBreaker("LLM", config.CircuitBreaker, logger),
		logger:    logger,
	}
}

// NewLLMClientFromConfig builds a client from application config.
func NewLLMClientFromConfig(cfg domain.LLMConfig, logger *logrus.Logger) *LLMClient {
	return NewLLMClient(ClientConfig{
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		CircuitBreaker: CircuitBreakerConfig{
			FailureRatio: cfg.BreakerRatio,
		},
	}, logger)
}

// Embedder binds the client to one embedding model.
func (c *LLMClient) Embedder(model string) *EmbeddingModel {
	return &EmbeddingModel{client: c, model: model}
}

// Chat binds the client to one chat model.
func (c *LLMClient) Chat(model string) *ChatModel {
	return &ChatModel{client: c, model: model}
}

// BreakerState reports the circuit breaker state for health checks.
func (c *LLMClient) BreakerState() string {
	return c.breaker.State().String()
}

// EmbeddingModel implements domain.Embedder.
type EmbeddingModel struct {
	client *LLMClient
	model  string
}

func (m *EmbeddingModel) ModelName() string { return m.model }

// Embed returns one vector per input text, in input order.
func (m *EmbeddingModel) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp embeddingResponse
	if err := m.client.post(ctx, "/embeddings", embeddingRequest{Model: m.model, Input: texts}, &resp); err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("embedding response index %d out of range", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing vector %d", i)
		}
	}
	return out, nil
}

// ChatModel implements domain.ChatCompleter.
type ChatModel struct {
	client *LLMClient
	model  string
}

func (m *ChatModel) ModelName() string { return m.model }

// Complete issues one chat completion and returns the trimmed message content.
func (m *ChatModel) Complete(ctx context.Context, req domain.ChatRequest) (string, error) {
	body := chatCompletionRequest{
		Model:       m.model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.SystemPrompt != "" {
		body.Messages = append(body.Messages, wireMessage{Role: string(domain.RoleSystem), Content: req.SystemPrompt})
	}
	for _, msg := range req.Messages {
		body.Messages = append(body.Messages, wireMessage{Role: string(msg.Role), Content: msg.Content})
	}
	if req.JSONOutput {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatCompletionResponse
	if err := m.client.post(ctx, "/chat/completions", body, &resp); err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}

	m.client.logger.WithFields(logrus.Fields{
		"model":             m.model,
		"prompt_tokens":     resp.Usage.PromptTokens,
		"completion_tokens": resp.Usage.CompletionTokens,
		"finish_reason":     resp.Choices[0].FinishReason,
	}).Debug("Chat completion finished")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// post sends a JSON request through the rate limiter and circuit breaker.
func (c *LLMClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	if err := c.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	start := time.Now()
	_, err = execute(c.breaker, func() (struct{}, error) {
		return struct{}{}, c.doPost(ctx, path, payload, out)
	})

	c.logger.WithFields(logrus.Fields{
		"path":     path,
		"duration": time.Since(start),
		"success":  err == nil,
	}).Debug("LLM API call")
	return err
}

func (c *LLMClient) doPost(ctx context.Context, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}

	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error.Message != "" {
		apiErr.Message = parsed.Error.Message
		apiErr.Type = parsed.Error.Type
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
