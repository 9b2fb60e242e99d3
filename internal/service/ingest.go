package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/arturoeanton/go-deviation-rag/internal/prompts"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
)

// IngestResult describes a stored deviation.
type IngestResult struct {
	ID      string   `json:"id"`
	Answers []string `json:"answers"`
}

// IngestService stores historical deviations: the record for context
// hydration, and one indexed answer per catalog question for retrieval.
type IngestService struct {
	llm       port.Completer
	index     retrieval.Searcher
	records   port.RecordStore
	catalog   *prompts.Catalog
	scheduler *pipeline.Scheduler
	now       func() time.Time
}

// NewIngestService creates an ingestion service.
func NewIngestService(llm port.Completer, index retrieval.Searcher, records port.RecordStore, catalog *prompts.Catalog, scheduler *pipeline.Scheduler) *IngestService {
	return &IngestService{
		llm:       llm,
		index:     index,
		records:   records,
		catalog:   catalog,
		scheduler: scheduler,
		now:       time.Now,
	}
}

// Ingest answers every catalog question about the deviation, then stores the
// record and indexes the answers as {id}_{n}. Any failed answer aborts ingestion.
func (s *IngestService) Ingest(ctx context.Context, in domain.DeviationInput) (*IngestResult, error) {
	if strings.TrimSpace(in.Description) == "" {
		return nil, fmt.Errorf("%w: %q", port.ErrMissingField, "Description")
	}
	id := "DEV-" + uuid.NewString()
	slog.Info("ingesting deviation", "deviation_id", id, "questions", len(s.catalog.Questions))

	answers, err := s.answer(ctx, id, in.Description)
	if err != nil {
		return nil, err
	}

	// The record goes first so every indexed answer can be hydrated.
	record := &domain.DeviationRecord{
		ID:                 id,
		ProblemDescription: in.Description,
		RootCause:          in.RootCause,
		CreatedAt:          s.now().UTC(),
	}
	if err := s.records.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("store deviation record: %w", err)
	}

	docs := make([]retrieval.Document, len(answers))
	for i, answer := range answers {
		n := strconv.Itoa(i + 1)
		docs[i] = retrieval.Document{
			ID:   id + "_" + n,
			Text: answer,
			Metadata: map[string]string{
				domain.MetaSummaryID:     id,
				domain.MetaQuestion:      s.catalog.Questions[i].Question,
				domain.MetaQuestionIndex: n,
			},
		}
	}
	if err := s.index.Add(ctx, docs); err != nil {
		return nil, fmt.Errorf("index answers for %s: %w", id, err)
	}

	slog.Info("deviation ingested", "deviation_id", id, "answers", len(answers))
	return &IngestResult{ID: id, Answers: answers}, nil
}

// answer runs one independent task per question and returns answers in question order.
func (s *IngestService) answer(ctx context.Context, id, description string) ([]string, error) {
	tasks := make([]pipeline.Task, len(s.catalog.Questions))
	keys := make([]string, len(s.catalog.Questions))
	for i, q := range s.catalog.Questions {
		prompt, err := s.catalog.Answer(q, description)
		if err != nil {
			return nil, err
		}
		keys[i] = "question_" + strconv.Itoa(i+1)
		tasks[i] = pipeline.Task{Key: keys[i], Instructions: prompt, Produce: completeTask(s.llm)}
	}
	graph, err := pipeline.NewGraph(tasks...)
	if err != nil {
		return nil, fmt.Errorf("build ingest graph: %w", err)
	}

	run := s.scheduler.Run(ctx, graph)
	answers := make([]string, len(keys))
	for i, key := range keys {
		o, _ := run.Results.Get(key)
		if o.State == pipeline.StateFailed {
			return nil, fmt.Errorf("answer %q for %s: %w", s.catalog.Questions[i].Question, id, o.Err)
		}
		answers[i] = strings.TrimSpace(o.Text)
	}
	return answers, nil
}

// Get returns a stored deviation record.
func (s *IngestService) Get(ctx context.Context, id string) (*domain.DeviationRecord, error) {
	return s.records.Get(ctx, id)
}
