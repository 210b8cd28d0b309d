// Package testutil provides deterministic stand-ins for the model endpoints.
package testutil

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"sync"

	"github.com/diabetes-report-mcp-server/internal/domain"
)

// HashEmbedder is a bag-of-words embedder: each lower-cased token increments one
// of Dim buckets. Texts sharing words get high cosine similarity.
type HashEmbedder struct {
	Model string
	Dim   int
	Err   error

	mu    sync.Mutex
	Calls int
}

// NewHashEmbedder returns an embedder with 64 buckets.
func NewHashEmbedder(model string) *HashEmbedder {
	return &HashEmbedder{Model: model, Dim: 64}
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.Calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, e.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, e.Dim)
		for _, tok := range strings.Fields(strings.ToLower(t)) {
			tok = strings.Trim(tok, ".,;:()%/")
			if tok == "" {
				continue
			}
			h := fnv.New32a()
			h.Write([]byte(tok))
			v[int(h.Sum32())%e.Dim]++
		}
		// keep every vector non-zero
		v[0] += 0.01
		out[i] = v
	}
	return out, nil
}

func (e *HashEmbedder) ModelName() string { return e.Model }

// ScriptedChat replays canned responses in order and records every request.
type ScriptedChat struct {
	Model     string
	Responses []string
	Errs      []error

	mu       sync.Mutex
	Requests []domain.ChatRequest
}

// ErrScriptExhausted is returned once every scripted response was consumed.
var ErrScriptExhausted = errors.New("no scripted response left")

func (c *ScriptedChat) Complete(_ context.Context, req domain.ChatRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.Requests)
	c.Requests = append(c.Requests, req)

	if n < len(c.Errs) && c.Errs[n] != nil {
		return "", c.Errs[n]
	}
	if n >= len(c.Responses) {
		return "", ErrScriptExhausted
	}
	return c.Responses[n], nil
}

func (c *ScriptedChat) ModelName() string {
	if c.Model == "" {
		return "scripted"
	}
	return c.Model
}

// CallCount returns how many requests were made.
func (c *ScriptedChat) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}
