package domain

import (
	"cmp"
	"slices"

	"github.com/google/uuid"
)

// Language is a glossing language. Code is the namespace of its exported
// document in the content store.
type Language struct {
	ID   uuid.UUID
	Code string
}

// BookKey identifies one book as glossed in one language.
type BookKey struct {
	LanguageID uuid.UUID
	BookID     int
}

// Compare orders keys by language, then book.
func (k BookKey) Compare(other BookKey) int {
	if c := cmp.Compare(k.LanguageID.String(), other.LanguageID.String()); c != 0 {
		return c
	}
	return cmp.Compare(k.BookID, other.BookID)
}

// SortBookKeys sorts keys in place and drops duplicates.
func SortBookKeys(keys []BookKey) []BookKey {
	slices.SortFunc(keys, BookKey.Compare)
	return slices.Compact(keys)
}

// GroupByLanguage splits keys into per-language book ID lists, each sorted.
func GroupByLanguage(keys []BookKey) map[uuid.UUID][]int {
	out := make(map[uuid.UUID][]int)
	for _, k := range keys {
		out[k.LanguageID] = append(out[k.LanguageID], k.BookID)
	}
	for id, books := range out {
		slices.Sort(books)
		out[id] = slices.Compact(books)
	}
	return out
}

// PhraseGloss is one phrase of a book with the text of its first approved gloss.
// WordIDs follow the order in which words were attached to the phrase.
type PhraseGloss struct {
	PhraseID int64
	WordIDs  []string
	Gloss    string
	Footnote *string
}

// BookExport is everything assembled for one (language, book) pair.
// EventIDs are the pending gloss events observed before the glosses were read.
type BookExport struct {
	Key      BookKey
	Records  []PhraseGloss
	EventIDs []int64
}

// BookLayout is the structural shape of a book: verses ordered by chapter and
// number, each with word IDs ordered by position.
type BookLayout struct {
	ID     int
	Name   string
	Verses []VerseLayout
}

// VerseLayout is one verse of a BookLayout.
type VerseLayout struct {
	ID      string
	Chapter int
	Number  int
	WordIDs []string
}

// WordCount returns the number of words across all verses.
func (b BookLayout) WordCount() int {
	n := 0
	for _, v := range b.Verses {
		n += len(v.WordIDs)
	}
	return n
}
