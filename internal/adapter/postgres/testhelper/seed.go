package testhelper

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartmarshall/gloss-export/internal/domain"
)

// bookSeq hands out book IDs; the container is shared by every test of the
// process, so books must never collide.
var bookSeq atomic.Int64

// uniqueSuffix returns a short unique string for generating non-conflicting test data.
func uniqueSuffix() string {
	return uuid.New().String()[:8]
}

// SeedLanguage creates a language with a unique code.
func SeedLanguage(t *testing.T, pool *pgxpool.Pool) domain.Language {
	t.Helper()

	lang := domain.Language{ID: uuid.New(), Code: "l" + uniqueSuffix()}
	_, err := pool.Exec(context.Background(),
		`INSERT INTO languages (id, code, name) VALUES ($1, $2, $3)`,
		lang.ID, lang.Code, "Language "+lang.Code,
	)
	if err != nil {
		t.Fatalf("testhelper: SeedLanguage: %v", err)
	}
	return lang
}

// SeedBook creates a book with one chapter. wordsPerVerse[i] is the number of
// words in verse i+1. Returns the layout as the repository reads it back.
func SeedBook(t *testing.T, pool *pgxpool.Pool, wordsPerVerse ...int) domain.BookLayout {
	t.Helper()
	ctx := context.Background()

	id := int(bookSeq.Add(1))
	layout := domain.BookLayout{ID: id, Name: fmt.Sprintf("Book %d", id)}

	if _, err := pool.Exec(ctx, `INSERT INTO books (id, name) VALUES ($1, $2)`, id, layout.Name); err != nil {
		t.Fatalf("testhelper: SeedBook insert book: %v", err)
	}

	for i, n := range wordsPerVerse {
		verse := domain.VerseLayout{
			ID:      fmt.Sprintf("%03d%03d%03d", id, 1, i+1),
			Chapter: 1,
			Number:  i + 1,
		}
		if _, err := pool.Exec(ctx,
			`INSERT INTO verses (id, book_id, chapter, number) VALUES ($1, $2, $3, $4)`,
			verse.ID, id, verse.Chapter, verse.Number,
		); err != nil {
			t.Fatalf("testhelper: SeedBook insert verse: %v", err)
		}

		for pos := 1; pos <= n; pos++ {
			wordID := fmt.Sprintf("%s%02d", verse.ID, pos)
			if _, err := pool.Exec(ctx,
				`INSERT INTO words (id, verse_id, position) VALUES ($1, $2, $3)`,
				wordID, verse.ID, pos,
			); err != nil {
				t.Fatalf("testhelper: SeedBook insert word: %v", err)
			}
			verse.WordIDs = append(verse.WordIDs, wordID)
		}
		layout.Verses = append(layout.Verses, verse)
	}

	return layout
}

// SeedPhrase creates a phrase of the language spanning the given words, in
// the given order.
func SeedPhrase(t *testing.T, pool *pgxpool.Pool, languageID uuid.UUID, wordIDs ...string) int64 {
	t.Helper()
	ctx := context.Background()

	var id int64
	if err := pool.QueryRow(ctx,
		`INSERT INTO phrases (language_id) VALUES ($1) RETURNING id`, languageID,
	).Scan(&id); err != nil {
		t.Fatalf("testhelper: SeedPhrase insert phrase: %v", err)
	}

	for pos, wordID := range wordIDs {
		if _, err := pool.Exec(ctx,
			`INSERT INTO phrase_words (phrase_id, word_id, position) VALUES ($1, $2, $3)`,
			id, wordID, pos,
		); err != nil {
			t.Fatalf("testhelper: SeedPhrase insert phrase_word: %v", err)
		}
	}
	return id
}

// SeedGloss adds a gloss to a phrase. Glosses seeded later sort later.
func SeedGloss(t *testing.T, pool *pgxpool.Pool, phraseID int64, text string, approved bool) int64 {
	t.Helper()

	state := "UNAPPROVED"
	if approved {
		state = "APPROVED"
	}

	var id int64
	if err := pool.QueryRow(context.Background(),
		`INSERT INTO glosses (phrase_id, gloss, state, created_at)
		 VALUES ($1, $2, $3::gloss_state, clock_timestamp()) RETURNING id`,
		phraseID, text, state,
	).Scan(&id); err != nil {
		t.Fatalf("testhelper: SeedGloss: %v", err)
	}
	return id
}

// SeedFootnote attaches a footnote to a phrase.
func SeedFootnote(t *testing.T, pool *pgxpool.Pool, phraseID int64, content string) {
	t.Helper()

	if _, err := pool.Exec(context.Background(),
		`INSERT INTO footnotes (phrase_id, content) VALUES ($1, $2)`, phraseID, content,
	); err != nil {
		t.Fatalf("testhelper: SeedFootnote: %v", err)
	}
}

// SeedEvent records a pending gloss event on a phrase.
func SeedEvent(t *testing.T, pool *pgxpool.Pool, phraseID int64) int64 {
	t.Helper()

	var id int64
	if err := pool.QueryRow(context.Background(),
		`INSERT INTO gloss_events (phrase_id) VALUES ($1) RETURNING id`, phraseID,
	).Scan(&id); err != nil {
		t.Fatalf("testhelper: SeedEvent: %v", err)
	}
	return id
}

// DeletePhrase soft-deletes a phrase.
func DeletePhrase(t *testing.T, pool *pgxpool.Pool, phraseID int64) {
	t.Helper()

	if _, err := pool.Exec(context.Background(),
		`UPDATE phrases SET deleted_at = now() WHERE id = $1`, phraseID,
	); err != nil {
		t.Fatalf("testhelper: DeletePhrase: %v", err)
	}
}

// EventState returns the sync state of a gloss event.
func EventState(t *testing.T, pool *pgxpool.Pool, eventID int64) string {
	t.Helper()

	var state string
	if err := pool.QueryRow(context.Background(),
		`SELECT sync_state::text FROM gloss_events WHERE id = $1`, eventID,
	).Scan(&state); err != nil {
		t.Fatalf("testhelper: EventState: %v", err)
	}
	return state
}

// GlossWholeBook covers every word of the layout with one approved
// single-word phrase of the language. Returns the phrase IDs in word order.
func GlossWholeBook(t *testing.T, pool *pgxpool.Pool, languageID uuid.UUID, layout domain.BookLayout) []int64 {
	t.Helper()

	var ids []int64
	for _, v := range layout.Verses {
		for _, w := range v.WordIDs {
			id := SeedPhrase(t, pool, languageID, w)
			SeedGloss(t, pool, id, "g-"+w, true)
			ids = append(ids, id)
		}
	}
	return ids
}
