package export

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/heartmarshall/gloss-export/internal/domain"
)

// BuildBook nests the phrase glosses of a book into its verse/word layout.
// Verses follow (chapter, number) and words keep their layout order. Every
// word must be covered by exactly one record and every record may only
// reference words of the book; anything else is a *domain.IntegrityError.
// BuildBook is deterministic: equal input gives an equal book.
func BuildBook(layout domain.BookLayout, records []domain.PhraseGloss) (domain.DocBook, error) {
	inBook := make(map[string]bool, layout.WordCount())
	for _, v := range layout.Verses {
		for _, w := range v.WordIDs {
			inBook[w] = true
		}
	}

	sorted := slices.Clone(records)
	slices.SortStableFunc(sorted, func(a, b domain.PhraseGloss) int { return cmp.Compare(a.PhraseID, b.PhraseID) })

	coveredBy := make(map[string]*domain.PhraseGloss, len(inBook))
	for i := range sorted {
		rec := &sorted[i]
		for _, w := range rec.WordIDs {
			if !inBook[w] {
				return domain.DocBook{}, &domain.IntegrityError{
					BookID: layout.ID, WordID: w, PhraseID: rec.PhraseID,
					Message: "word is not part of the book",
				}
			}
			if prev, ok := coveredBy[w]; ok {
				return domain.DocBook{}, &domain.IntegrityError{
					BookID: layout.ID, WordID: w, PhraseID: rec.PhraseID,
					Message: fmt.Sprintf("word is also covered by phrase %d", prev.PhraseID),
				}
			}
			coveredBy[w] = rec
		}
	}

	verses := slices.Clone(layout.Verses)
	slices.SortStableFunc(verses, func(a, b domain.VerseLayout) int {
		if c := cmp.Compare(a.Chapter, b.Chapter); c != 0 {
			return c
		}
		return cmp.Compare(a.Number, b.Number)
	})

	book := domain.DocBook{
		ID:     layout.ID,
		Name:   layout.Name,
		Verses: make([]domain.DocVerse, 0, len(verses)),
	}
	for _, v := range verses {
		verse := domain.DocVerse{
			ID:      v.ID,
			Chapter: v.Chapter,
			Number:  v.Number,
			Words:   make([]domain.DocWord, 0, len(v.WordIDs)),
		}
		for _, w := range v.WordIDs {
			rec, ok := coveredBy[w]
			if !ok {
				return domain.DocBook{}, &domain.IntegrityError{
					BookID: layout.ID, WordID: w,
					Message: "word has no approved gloss",
				}
			}
			verse.Words = append(verse.Words, newDocWord(w, rec))
		}
		book.Verses = append(book.Verses, verse)
	}

	return book, nil
}

func newDocWord(id string, rec *domain.PhraseGloss) domain.DocWord {
	word := domain.DocWord{ID: id, Gloss: rec.Gloss}
	if rec.Footnote != nil {
		word.Footnote = *rec.Footnote
	}
	for _, other := range rec.WordIDs {
		if other != id {
			word.LinkedWords = append(word.LinkedWords, other)
		}
	}
	return word
}
