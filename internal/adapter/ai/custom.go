package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arturoeanton/go-deviation-rag/internal/metrics"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// CustomLLM is a completer for a private HTTP gateway that accepts
// {"user_input": ..., "max_token": ...} and answers {"response": ...}.
type CustomLLM struct {
	baseURL    string
	apiKey     string
	maxTokens  int
	httpClient *http.Client
}

// NewCustomLLM creates a completer for the given gateway URL.
func NewCustomLLM(baseURL, apiKey string, maxTokens int, timeout time.Duration) *CustomLLM {
	return &CustomLLM{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		maxTokens:  maxTokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Complete posts the prompt to the gateway.
func (c *CustomLLM) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	out, err := c.complete(ctx, prompt)
	metrics.ObserveLLM("custom", "complete", time.Since(start).Seconds(), err)
	if err != nil {
		return "", &port.ProviderError{Provider: "custom-llm", Op: "complete", Err: err}
	}
	return out, nil
}

func (c *CustomLLM) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(map[string]interface{}{
		"user_input": prompt,
		"max_token":  c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("gateway error (%d): %s", resp.StatusCode, string(body))
	}

	var out struct {
		Response *string `json:"response"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode: %w", err)
	}
	if out.Response == nil {
		return "", fmt.Errorf("response field missing")
	}
	return *out.Response, nil
}
