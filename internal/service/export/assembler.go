package export

import (
	"context"
	"fmt"

	"github.com/heartmarshall/gloss-export/internal/domain"
)

// Assemble collects the phrase glosses of one selected book. The pending
// event IDs are read first, so every event later settled was raised before
// the glosses it stands for were read.
func (s *Service) Assemble(ctx context.Context, key domain.BookKey) (domain.BookExport, error) {
	eventIDs, err := s.repo.PendingEventIDs(ctx, key)
	if err != nil {
		return domain.BookExport{}, fmt.Errorf("assemble book %d: %w", key.BookID, err)
	}

	records, err := s.repo.PhraseGlosses(ctx, key)
	if err != nil {
		return domain.BookExport{}, fmt.Errorf("assemble book %d: %w", key.BookID, err)
	}

	return domain.BookExport{Key: key, Records: records, EventIDs: eventIDs}, nil
}
