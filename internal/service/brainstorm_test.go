package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/pipeline"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
	"github.com/arturoeanton/go-deviation-rag/internal/retrieval"
	"github.com/arturoeanton/go-deviation-rag/internal/testutil"
)

const (
	markerRootCause = "Root Cause Brainstorming"
	markerCAPA      = "Recommended Corrective Action /Preventive Action"
	markerCAEff     = "Recommend Corrective Action Effectiveness Check"
	markerPAEff     = "Recommend Preventive Action Effectiveness Check"
	markerNormalize = "basic deviation content"
	markerSummary   = "Q/A pairs"
)

func brainstormCompleter() *testutil.RecordingCompleter {
	return &testutil.RecordingCompleter{
		Order: []string{markerRootCause, markerCAPA, markerCAEff, markerPAEff, markerNormalize, markerSummary},
		Answers: map[string]string{
			markerSummary:   "Cold room summary",
			markerNormalize: "temperature excursion",
			markerRootCause: "RC: door gasket",
			markerCAPA:      "CAPA: replace gasket",
			markerCAEff:     "CE: weekly checks",
			markerPAEff:     "PE: quarterly audit",
		},
	}
}

func seededFixture(t *testing.T) *fixture {
	f := newFixture(t)
	f.seed(t,
		map[string]string{
			"DEV-A": "temperature excursion",
			"DEV-B": "supplier material defect",
			"DEV-C": "temperature sensor failure",
		},
		domain.DeviationRecord{ID: "DEV-A", ProblemDescription: "Cold room excursion", RootCause: "door seal worn"},
		domain.DeviationRecord{ID: "DEV-B", ProblemDescription: "Wrong excipient grade", RootCause: "supplier mislabel"},
	)
	return f
}

func TestBrainstormRunsFullFlow(t *testing.T) {
	f := seededFixture(t)
	llm := brainstormCompleter()

	res, err := f.brainstorm(llm).Brainstorm(context.Background(), map[string]string{
		domain.ProblemDescriptionField: "Cold room reached 12C for 3 hours",
	})
	require.NoError(t, err)

	assert.Equal(t, "Cold room summary", res.Summary)
	assert.Equal(t, "temperature excursion", res.Normalized)
	assert.Equal(t, []string{"DEV-A", "DEV-C", "DEV-B"}, res.SimilarDeviations)
	assert.Equal(t, []string{"DEV-C"}, res.MissingDeviations)
	assert.Empty(t, res.Failed)
	assert.Equal(t, map[string]string{
		domain.SectionRootCause:         "RC: door gasket",
		domain.SectionCAPA:              "CAPA: replace gasket",
		domain.SectionCAPAEffectiveness: "CE: weekly checks",
		domain.SectionPAEffectiveness:   "PE: quarterly audit",
	}, res.Sections)
	assert.Equal(t, [][]string{
		{"root_cause"}, {"capa"}, {"capa_effectiveness", "pa_effectiveness"},
	}, res.Waves)

	rootCause := llm.PromptsContaining(markerRootCause)
	require.Len(t, rootCause, 1)
	assert.Contains(t, rootCause[0], retrieval.RootCauseHeader)
	assert.Contains(t, rootCause[0], "door seal worn")
	assert.Contains(t, rootCause[0], "supplier mislabel")
	assert.Contains(t, rootCause[0], "Cold room summary")

	capa := llm.PromptsContaining(markerCAPA)
	require.Len(t, capa, 1)
	assert.Contains(t, capa[0], "RC: door gasket")
	assert.NotContains(t, capa[0], "door seal worn", "history is only given to the root cause task")

	for _, marker := range []string{markerCAEff, markerPAEff} {
		p := llm.PromptsContaining(marker)
		require.Len(t, p, 1)
		assert.Contains(t, p[0], "CAPA: replace gasket")
	}
}

func TestBrainstormIsolatesSectionFailure(t *testing.T) {
	f := seededFixture(t)
	llm := brainstormCompleter()
	llm.Failures = map[string]error{markerCAPA: errors.New("rate limited")}

	var (
		mu     sync.Mutex
		events []pipeline.Event
	)
	observe := func(e pipeline.Event) {
		if e.State == pipeline.StateFailed {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		}
	}
	f.sched = pipeline.NewScheduler(1, 0)

	res, err := f.brainstorm(llm).Brainstorm(context.Background(), map[string]string{
		domain.ProblemDescriptionField: "Cold room reached 12C",
	}, observe)
	require.NoError(t, err)

	assert.Equal(t, "RC: door gasket", res.Sections[domain.SectionRootCause])
	assert.True(t, pipeline.IsFailureText(res.Sections[domain.SectionCAPA]))
	assert.True(t, pipeline.IsFailureText(res.Sections[domain.SectionPAEffectiveness]))
	assert.Len(t, res.Failed, 3)
	assert.Contains(t, res.Failed[domain.SectionCAPA], "rate limited")
	assert.Contains(t, res.Failed[domain.SectionCAPAEffectiveness], "dependency capa failed")
	assert.Len(t, events, 3)
	assert.Empty(t, llm.PromptsContaining(markerCAEff))
}

func TestBrainstormRequiresProblemDescription(t *testing.T) {
	f := newFixture(t)
	llm := brainstormCompleter()

	_, err := f.brainstorm(llm).Brainstorm(context.Background(), map[string]string{"Other": "x"})
	assert.ErrorIs(t, err, port.ErrMissingField)
	assert.Empty(t, llm.Prompts())
}

func TestBrainstormSummaryFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	llm := brainstormCompleter()
	llm.Failures = map[string]error{markerSummary: errors.New("connection refused")}

	_, err := f.brainstorm(llm).Brainstorm(context.Background(), map[string]string{
		domain.ProblemDescriptionField: "x",
	})
	assert.ErrorIs(t, err, port.ErrProvider)
}

func TestBrainstormEmptyIndex(t *testing.T) {
	f := newFixture(t)
	llm := brainstormCompleter()

	res, err := f.brainstorm(llm).Brainstorm(context.Background(), map[string]string{
		domain.ProblemDescriptionField: "Cold room reached 12C",
	})
	require.NoError(t, err)
	assert.Empty(t, res.SimilarDeviations)
	assert.NotNil(t, res.SimilarDeviations)
	assert.Len(t, res.Sections, 4)
}
