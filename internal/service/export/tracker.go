package export

import (
	"context"
	"fmt"

	"github.com/heartmarshall/gloss-export/internal/domain"
)

// TrackChanges keeps the completed pairs that have at least one pending gloss
// event. The result is always a subset of completed.
func (s *Service) TrackChanges(ctx context.Context, completed []domain.BookKey) ([]domain.BookKey, error) {
	if len(completed) == 0 {
		return []domain.BookKey{}, nil
	}

	changed, err := s.repo.BooksWithPendingEvents(ctx, completed)
	if err != nil {
		return nil, fmt.Errorf("track changes: %w", err)
	}

	candidates := make(map[domain.BookKey]bool, len(completed))
	for _, k := range completed {
		candidates[k] = true
	}

	out := make([]domain.BookKey, 0, len(changed))
	for _, k := range changed {
		if candidates[k] {
			out = append(out, k)
		}
	}
	return domain.SortBookKeys(out), nil
}
