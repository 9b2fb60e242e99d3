package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/arturoeanton/go-deviation-rag/internal/metrics"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// OllamaEndpointConfig holds the configuration for a single Ollama endpoint.
type OllamaEndpointConfig struct {
	BaseURL string // e.g. http://localhost:11434 or https://api.ollama.com
	Model   string // e.g. bge-m3, qwen3
	Token   string // Bearer token for Ollama Cloud (empty = no auth)
}

// OllamaProvider implements port.AIProvider using the Ollama REST API.
// Supports separate endpoints for embed vs chat (different URLs, models, and tokens).
type OllamaProvider struct {
	embed        OllamaEndpointConfig
	chat         OllamaEndpointConfig
	systemPrompt string
	httpClient   *http.Client

	mu        sync.Mutex
	dimension int // fixed after the first successful embed call
}

// NewOllamaProvider creates a new Ollama-backed AI provider with separate embed/chat configs.
func NewOllamaProvider(embed, chat OllamaEndpointConfig, systemPrompt string, timeout time.Duration) *OllamaProvider {
	return &OllamaProvider{
		embed:        embed,
		chat:         chat,
		systemPrompt: systemPrompt,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// ModelName returns the chat model identifier.
func (o *OllamaProvider) ModelName() string {
	return o.chat.Model
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (o *OllamaProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vectors, err := o.embedBatch(ctx, texts)
	metrics.ObserveLLM("ollama", "embed", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, &port.ProviderError{Provider: "ollama", Op: "embed batch", Err: err}
	}
	return vectors, nil
}

func (o *OllamaProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]interface{}{
		"model": o.embed.Model,
		"input": texts,
	}

	body, err := o.post(ctx, o.embed, "/api/embed", payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("got %d embeddings for %d texts", len(resp.Embeddings), len(texts))
	}
	if err := o.checkDimension(resp.Embeddings); err != nil {
		return nil, err
	}
	return resp.Embeddings, nil
}

// checkDimension enforces one vector dimension for the lifetime of the provider.
func (o *OllamaProvider) checkDimension(vectors [][]float32) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, v := range vectors {
		if len(v) == 0 {
			return errors.New("empty embedding vector")
		}
		if o.dimension == 0 {
			o.dimension = len(v)
			continue
		}
		if len(v) != o.dimension {
			return fmt.Errorf("%w: want %d, got %d", port.ErrDimensionChanged, o.dimension, len(v))
		}
	}
	return nil
}

// Complete sends a single prompt to the chat endpoint and returns the response.
func (o *OllamaProvider) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := o.Chat(ctx, o.systemPrompt, prompt)
	metrics.ObserveLLM("ollama", "complete", time.Since(start).Seconds(), err)
	if err != nil {
		return "", &port.ProviderError{Provider: "ollama", Op: "complete", Err: err}
	}
	return out, nil
}

// Chat sends a system and user prompt and returns the complete response.
func (o *OllamaProvider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]map[string]string, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, map[string]string{"role": "system", "content": systemPrompt})
	}
	messages = append(messages, map[string]string{"role": "user", "content": userPrompt})

	payload := map[string]interface{}{
		"model":    o.chat.Model,
		"messages": messages,
		"stream":   false,
	}

	body, err := o.post(ctx, o.chat, "/api/chat", payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}

	return resp.Message.Content, nil
}

// post is a helper for POST requests to an Ollama endpoint (with optional bearer token).
func (o *OllamaProvider) post(ctx context.Context, cfg OllamaEndpointConfig, path string, payload interface{}) ([]byte, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+path, bytes.NewReader(payloadBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cfg.Token)
	}

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama API error (%d): %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
