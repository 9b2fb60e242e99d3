// Package testutil holds deterministic stand-ins for the AI providers.
package testutil

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// KeywordEmbedder maps each text to a bag-of-words vector over a fixed vocabulary.
// Words outside the vocabulary are ignored, so unrelated texts score 0.
type KeywordEmbedder struct {
	vocab map[string]int

	mu    sync.Mutex
	calls int
	Err   error // returned by every call when set
}

// NewKeywordEmbedder builds an embedder whose dimension is len(words).
func NewKeywordEmbedder(words ...string) *KeywordEmbedder {
	vocab := make(map[string]int, len(words))
	for i, w := range words {
		vocab[strings.ToLower(w)] = i
	}
	return &KeywordEmbedder{vocab: vocab}
}

// EmbedBatch implements port.Embedder.
func (e *KeywordEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.Err
	e.mu.Unlock()
	if err != nil {
		return nil, &port.ProviderError{Provider: "keyword", Op: "embed batch", Err: err}
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(e.vocab))
		for _, word := range strings.Fields(strings.ToLower(text)) {
			if idx, ok := e.vocab[strings.Trim(word, ".,;:")]; ok {
				vec[idx]++
			}
		}
		out[i] = vec
	}
	return out, nil
}

// Calls returns how many batches were embedded.
func (e *KeywordEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// StaticEmbedder returns preset vectors keyed by exact text.
type StaticEmbedder map[string][]float32

// EmbedBatch implements port.Embedder.
func (s StaticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, ok := s[t]
		if !ok {
			return nil, &port.ProviderError{Provider: "static", Op: "embed batch", Err: errors.New("unknown text " + t)}
		}
		out[i] = v
	}
	return out, nil
}

// CompleteFunc adapts a function to port.Completer.
type CompleteFunc func(ctx context.Context, prompt string) (string, error)

// Complete implements port.Completer.
func (f CompleteFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// RecordingCompleter answers by matching a marker in the prompt and records every prompt.
type RecordingCompleter struct {
	// Answers maps a prompt substring to the response. The first match in Order wins.
	Answers map[string]string
	Order   []string
	// Failures maps a prompt substring to an error.
	Failures map[string]error
	Default  string

	mu      sync.Mutex
	prompts []string
}

// Complete implements port.Completer.
func (c *RecordingCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	c.prompts = append(c.prompts, prompt)
	c.mu.Unlock()

	for marker, err := range c.Failures {
		if strings.Contains(prompt, marker) {
			return "", &port.ProviderError{Provider: "recording", Op: "complete", Err: err}
		}
	}
	for _, marker := range c.Order {
		if strings.Contains(prompt, marker) {
			return c.Answers[marker], nil
		}
	}
	return c.Default, nil
}

// Prompts returns a copy of the received prompts.
func (c *RecordingCompleter) Prompts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.prompts))
	copy(out, c.prompts)
	return out
}

// PromptsContaining returns the received prompts that contain marker.
func (c *RecordingCompleter) PromptsContaining(marker string) []string {
	var out []string
	for _, p := range c.Prompts() {
		if strings.Contains(p, marker) {
			out = append(out, p)
		}
	}
	return out
}
