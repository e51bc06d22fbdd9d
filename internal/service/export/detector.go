package export

import (
	"context"
	"fmt"

	"github.com/heartmarshall/gloss-export/internal/domain"
)

// DetectCompleted returns every (language, book) pair in which each word of
// the book is covered by an approved gloss of the language. Books without
// words are never complete.
func (s *Service) DetectCompleted(ctx context.Context) ([]domain.BookKey, error) {
	keys, err := s.repo.CompletedBooks(ctx)
	if err != nil {
		return nil, fmt.Errorf("detect completed books: %w", err)
	}
	return domain.SortBookKeys(keys), nil
}
