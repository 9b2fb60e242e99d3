// Package service composes retrieval, the prompt catalog and the task
// pipeline into the deviation workflows.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// completeTask produces a task output by sending the assembled context to the LLM.
func completeTask(llm port.Completer) pipeline.ProduceFunc {
	return func(ctx context.Context, input string) (string, error) {
		return llm.Complete(ctx, input)
	}
}

// complete runs one prompt outside of a graph.
func complete(ctx context.Context, llm port.Completer, step, prompt string) (string, error) {
	out, err := llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s: %w", step, err)
	}
	return strings.TrimSpace(out), nil
}

// failureReasons flattens pipeline failures for API responses.
func failureReasons(results *pipeline.ResultsMap) map[string]string {
	failed := results.Failures()
	if len(failed) == 0 {
		return nil
	}
	out := make(map[string]string, len(failed))
	for key, err := range failed {
		out[key] = err.Error()
	}
	return out
}
