package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/arturoeanton/go-deviation-rag/internal/prompts"
)

const (
	summaryKeyPrefix = "summary:"
	sectionContext   = "\n\nCONTEXT (PAST KNOWLEDGE):\n{text}\n"
)

// GenerationResult holds a drafted GMP deviation document.
type GenerationResult struct {
	Sections  map[string]string `json:"sections"`
	Summaries map[string]string `json:"summaries"`
	Failed    map[string]string `json:"failed,omitempty"`
	Skipped   []string          `json:"skipped,omitempty"`
	Waves     [][]string        `json:"waves"`
	ElapsedMS int64             `json:"elapsed_ms"`
}

// GenerationService writes document subsections from per-section summaries.
type GenerationService struct {
	llm       port.Completer
	catalog   *prompts.Catalog
	scheduler *pipeline.Scheduler
}

// NewGenerationService creates a document generation service.
func NewGenerationService(llm port.Completer, catalog *prompts.Catalog, scheduler *pipeline.Scheduler) *GenerationService {
	return &GenerationService{llm: llm, catalog: catalog, scheduler: scheduler}
}

// Generate summarizes every input section, then writes each active subsection
// from the summary of its section. Subsections whose section has no input are skipped.
func (s *GenerationService) Generate(ctx context.Context, input map[string]string, observers ...pipeline.Observer) (*GenerationResult, error) {
	start := time.Now()

	var tasks []pipeline.Task
	for _, section := range slices.Sorted(maps.Keys(input)) {
		if strings.TrimSpace(input[section]) == "" {
			continue
		}
		prompt, err := s.catalog.Summary(input[section])
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, pipeline.Task{
			Key:          summaryKeyPrefix + section,
			Instructions: prompt,
			Produce:      completeTask(s.llm),
		})
	}
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: at least one document section", port.ErrMissingField)
	}

	var skipped []string
	for _, p := range s.catalog.ActiveGeneration() {
		if strings.TrimSpace(input[p.Section]) == "" {
			skipped = append(skipped, p.Subsection)
			continue
		}
		instructions, err := s.catalog.GenerationInstructions(p)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, pipeline.Task{
			Key:              p.Subsection,
			DependsOn:        []string{summaryKeyPrefix + p.Section},
			Instructions:     instructions,
			DependencyFormat: sectionContext,
			Produce:          completeTask(s.llm),
		})
	}
	if len(skipped) > 0 {
		slog.Info("generation prompts skipped", "subsections", skipped)
	}

	graph, err := pipeline.NewGraph(tasks...)
	if err != nil {
		return nil, fmt.Errorf("build generation graph: %w", err)
	}
	run := s.scheduler.Run(ctx, graph, observers...)

	result := &GenerationResult{
		Sections:  map[string]string{},
		Summaries: map[string]string{},
		Failed:    failureReasons(run.Results),
		Skipped:   skipped,
		Waves:     run.Waves,
		ElapsedMS: time.Since(start).Milliseconds(),
	}
	for key, text := range run.Results.Texts() {
		if section, ok := strings.CutPrefix(key, summaryKeyPrefix); ok {
			result.Summaries[section] = text
		} else {
			result.Sections[key] = text
		}
	}
	return result, nil
}
