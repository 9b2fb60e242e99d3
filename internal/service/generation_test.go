package service

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/arturoeanton/go-deviation-rag/internal/testutil"
)

func TestGenerateDocument(t *testing.T) {
	f := newFixture(t)

	var (
		mu      sync.Mutex
		prompts []string
	)
	llm := testutil.CompleteFunc(func(_ context.Context, p string) (string, error) {
		mu.Lock()
		prompts = append(prompts, p)
		mu.Unlock()
		switch {
		case strings.Contains(p, "Q/A pairs") && strings.Contains(p, "fridge failed"):
			return "pd summary", nil
		case strings.Contains(p, "Q/A pairs") && strings.Contains(p, "worn seal"):
			return "rc summary", nil
		}
		return "draft", nil
	})

	res, err := NewGenerationService(llm, f.catalog, f.sched).Generate(context.Background(), map[string]string{
		"Problem Description and Immediate Action": "fridge failed",
		"Investigation":                            "  ",
		"Root Cause":                               "worn seal",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"Problem Description and Immediate Action": "pd summary",
		"Root Cause":                               "rc summary",
	}, res.Summaries)
	assert.Equal(t, map[string]string{
		"Deviation Description":   "draft",
		"Immediate Actions Taken": "draft",
		"Root Cause Statement":    "draft",
	}, res.Sections)
	assert.Equal(t, []string{"Investigation Summary", "Product Quality Impact", "CAPA Plan"}, res.Skipped)
	require.Len(t, res.Waves, 2)
	assert.ElementsMatch(t, []string{"summary:Problem Description and Immediate Action", "summary:Root Cause"}, res.Waves[0])
	assert.Empty(t, res.Failed)

	var statement string
	for _, p := range prompts {
		if strings.Contains(p, "Root Cause Statement") {
			statement = p
		}
	}
	assert.Contains(t, statement, "rc summary")
	assert.NotContains(t, statement, "pd summary")
}

func TestGenerateRequiresInput(t *testing.T) {
	f := newFixture(t)
	llm := &testutil.RecordingCompleter{Default: "x"}

	_, err := NewGenerationService(llm, f.catalog, f.sched).Generate(context.Background(), map[string]string{"Investigation": ""})
	assert.ErrorIs(t, err, port.ErrMissingField)
	assert.Empty(t, llm.Prompts())
}
