package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/metrics"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// RootCauseHeader opens the historical context blob.
const RootCauseHeader = "Previous similar root causes for brainstorming:\n"

// ContextAssembler turns similar record ids into prompt context.
type ContextAssembler struct {
	records port.RecordStore
}

// NewContextAssembler creates an assembler reading from records.
func NewContextAssembler(records port.RecordStore) *ContextAssembler {
	return &ContextAssembler{records: records}
}

// Hydrate loads each id in order. Ids absent from the store are skipped and
// returned in missing; the index and the record store are allowed to drift.
func (a *ContextAssembler) Hydrate(ctx context.Context, ids []string) (found []domain.DeviationRecord, missing []string, err error) {
	for _, id := range ids {
		rec, err := a.records.Get(ctx, id)
		if errors.Is(err, port.ErrRecordNotFound) {
			slog.Warn("similar deviation missing from record store", "deviation_id", id)
			metrics.RetrievalMisses.Inc()
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("hydrate %s: %w", id, err)
		}
		found = append(found, *rec)
	}
	return found, missing, nil
}

// RootCauseContext formats records as the historical root-cause blob.
func RootCauseContext(records []domain.DeviationRecord) string {
	var b strings.Builder
	b.WriteString(RootCauseHeader)
	for _, r := range records {
		fmt.Fprintf(&b, "Problem description: %s\nRoot cause: %s\n########################\n",
			r.ProblemDescription, r.RootCause)
	}
	return b.String()
}
