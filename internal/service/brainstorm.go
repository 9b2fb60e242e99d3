package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/arturoeanton/go-deviation-rag/internal/prompts"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
)

// BrainstormResult is the outcome of one brainstorming run.
type BrainstormResult struct {
	Summary           string            `json:"summary"`
	Normalized        string            `json:"normalized"`
	Sections          map[string]string `json:"sections"`
	Failed            map[string]string `json:"failed,omitempty"`
	SimilarDeviations []string          `json:"similar_deviations"`
	MissingDeviations []string          `json:"missing_deviations,omitempty"`
	Waves             [][]string        `json:"waves"`
	ElapsedMS         int64             `json:"elapsed_ms"`
}

// BrainstormService drafts root cause and CAPA sections for a new incident,
// grounded on the root causes of similar historical deviations.
type BrainstormService struct {
	llm        port.Completer
	similarity *retrieval.SimilarityService
	records    *retrieval.ContextAssembler
	catalog    *prompts.Catalog
	scheduler  *pipeline.Scheduler
	topK       int
}

// NewBrainstormService creates a brainstorming service. topK <= 0 uses retrieval.DefaultTopK.
func NewBrainstormService(
	llm port.Completer,
	similarity *retrieval.SimilarityService,
	records *retrieval.ContextAssembler,
	catalog *prompts.Catalog,
	scheduler *pipeline.Scheduler,
	topK int,
) *BrainstormService {
	if topK <= 0 {
		topK = retrieval.DefaultTopK
	}
	return &BrainstormService{
		llm:        llm,
		similarity: similarity,
		records:    records,
		catalog:    catalog,
		scheduler:  scheduler,
		topK:       topK,
	}
}

// Brainstorm runs the full flow for input keyed by form field.
// Observers receive per-section progress.
func (s *BrainstormService) Brainstorm(ctx context.Context, input map[string]string, observers ...pipeline.Observer) (*BrainstormResult, error) {
	start := time.Now()
	description := strings.TrimSpace(input[domain.ProblemDescriptionField])
	if description == "" {
		return nil, fmt.Errorf("%w: %q", port.ErrMissingField, domain.ProblemDescriptionField)
	}

	// 1. Summarize the incident
	prompt, err := s.catalog.Summary(description)
	if err != nil {
		return nil, err
	}
	summary, err := complete(ctx, s.llm, "summarize problem description", prompt)
	if err != nil {
		return nil, err
	}

	// 2. Rewrite it into comparable deviation content
	prompt, err = s.catalog.Normalize(summary)
	if err != nil {
		return nil, err
	}
	normalized, err := complete(ctx, s.llm, "normalize description", prompt)
	if err != nil {
		return nil, err
	}

	// 3. Retrieve similar deviations and their root causes
	matches, err := s.similarity.FindSimilar(ctx, []string{normalized}, s.topK)
	if err != nil {
		return nil, fmt.Errorf("find similar deviations: %w", err)
	}
	ids := retrieval.UnionRecordIDs(matches, domain.MetaSummaryID)
	found, missing, err := s.records.Hydrate(ctx, ids)
	if err != nil {
		return nil, err
	}
	history := retrieval.RootCauseContext(found)
	slog.Info("brainstorm context assembled", "similar", len(ids), "hydrated", len(found), "missing", len(missing))

	// 4. Generate sections in dependency order
	graph, err := s.graph(summary, history)
	if err != nil {
		return nil, err
	}
	run := s.scheduler.Run(ctx, graph, observers...)

	if ids == nil {
		ids = []string{}
	}
	return &BrainstormResult{
		Summary:           summary,
		Normalized:        normalized,
		Sections:          run.Results.Texts(),
		Failed:            failureReasons(run.Results),
		SimilarDeviations: ids,
		MissingDeviations: missing,
		Waves:             run.Waves,
		ElapsedMS:         time.Since(start).Milliseconds(),
	}, nil
}

func (s *BrainstormService) graph(summary, history string) (*pipeline.Graph, error) {
	active := s.catalog.ActiveBrainstorm()
	tasks := make([]pipeline.Task, 0, len(active))
	for _, p := range active {
		instructions, err := s.catalog.BrainstormInstructions(p, summary, history)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, pipeline.Task{
			Key:              p.Key,
			DependsOn:        p.DependsOn,
			Instructions:     instructions,
			DependencyFormat: p.DependencyFormat,
			Produce:          completeTask(s.llm),
		})
	}
	graph, err := pipeline.NewGraph(tasks...)
	if err != nil {
		return nil, fmt.Errorf("build brainstorm graph: %w", err)
	}
	return graph, nil
}
