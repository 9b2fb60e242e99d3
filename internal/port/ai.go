package port

import "context"

// Embedder converts texts to fixed-dimension vectors.
// Implementations return one vector per input text, in input order.
type Embedder interface {
	// EmbedBatch generates embeddings for multiple texts in one call.
	// An empty input yields an empty output without contacting the provider.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer is a single-shot text generation backend.
type Completer interface {
	// Complete sends a prompt and returns the generated text.
	Complete(ctx context.Context, prompt string) (string, error)
}

// AIProvider abstracts the AI/LLM backend for embeddings and completions.
// Implementations can target Ollama, a custom HTTP gateway, or any compatible API.
type AIProvider interface {
	Embedder
	Completer

	// ModelName returns the identifier of the completion model being used.
	ModelName() string
}
