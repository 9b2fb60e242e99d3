package retrieval

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/arturoeanton/go-deviation-rag/internal/domain"
	"github.com/arturoeanton/go-deviation-rag/internal/port"
)

// DefaultTopK is the number of matches returned per query when none is given.
const DefaultTopK = 3

// SimilarityService fans a batch of queries out to the index.
type SimilarityService struct {
	index   Searcher
	workers int
}

// NewSimilarityService creates a service issuing at most workers concurrent queries (<= 0 = unbounded).
func NewSimilarityService(index Searcher, workers int) *SimilarityService {
	return &SimilarityService{index: index, workers: workers}
}

// FindSimilar returns one entry per query, in input order. Matches are not
// deduplicated across queries; see UnionRecordIDs.
func (s *SimilarityService) FindSimilar(ctx context.Context, queries []string, topK int) ([]domain.QueryMatches, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", port.ErrInvalidTopK, topK)
	}

	results := make([]domain.QueryMatches, len(queries))
	eg, egCtx := errgroup.WithContext(ctx)
	if s.workers > 0 {
		eg.SetLimit(s.workers)
	}
	for i, q := range queries {
		eg.Go(func() error {
			matches, err := s.index.Query(egCtx, q, topK)
			if err != nil {
				return fmt.Errorf("query %d: %w", i, err)
			}
			results[i] = domain.QueryMatches{Query: q, Matches: matches}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// UnionRecordIDs collects source identifiers across all matches in first-seen order.
// The identifier is the metadata value under key, or the record id when key is
// empty or absent.
func UnionRecordIDs(results []domain.QueryMatches, key string) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, r := range results {
		for _, m := range r.Matches {
			id := m.RecordID
			if key != "" {
				if v, ok := m.Metadata[key]; ok && v != "" {
					id = v
				}
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids
}
