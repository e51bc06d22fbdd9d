// Package gloss implements the read and settlement queries of the export
// pipeline over the glossing schema: completion, pending changes, phrase
// glosses, book layouts and gloss event settlement.
package gloss

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"

	postgres "github.com/heartmarshall/gloss-export/internal/adapter/postgres"
	"github.com/heartmarshall/gloss-export/internal/domain"
)

// psql builds statements with PostgreSQL placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Repo runs the export queries. Every method uses the transaction stored in
// the context when there is one.
type Repo struct {
	db postgres.Querier
}

// New creates a new gloss repository. db is normally a *pgxpool.Pool.
func New(db postgres.Querier) *Repo {
	return &Repo{db: db}
}

func (r *Repo) q(ctx context.Context) postgres.Querier {
	return postgres.QuerierFromCtx(ctx, r.db)
}

// ---------------------------------------------------------------------------
// Raw SQL for the aggregate read queries
// ---------------------------------------------------------------------------

// completedBooksSQL pairs every language with every word and keeps the
// (language, book) groups in which each word is covered by an approved gloss
// on a live phrase of that language. Books without words yield no group.
const completedBooksSQL = `
WITH coverage AS (
    SELECT
        l.id AS language_id,
        v.book_id,
        EXISTS (
            SELECT 1
            FROM phrase_words pw
            JOIN phrases p ON p.id = pw.phrase_id
            JOIN glosses g ON g.phrase_id = p.id
            WHERE pw.word_id = w.id
              AND p.language_id = l.id
              AND p.deleted_at IS NULL
              AND g.state = 'APPROVED'
        ) AS covered
    FROM languages l
    CROSS JOIN words w
    JOIN verses v ON v.id = w.verse_id
)
SELECT language_id, book_id
FROM coverage
GROUP BY language_id, book_id
HAVING bool_and(covered)
ORDER BY language_id, book_id`

// booksWithPendingEventsSQL keeps the candidates that have a pending event on
// any phrase of the language touching the book. Deleted phrases count.
const booksWithPendingEventsSQL = `
SELECT DISTINCT c.language_id, c.book_id
FROM unnest($1::uuid[], $2::int[]) AS c(language_id, book_id)
WHERE EXISTS (
    SELECT 1
    FROM gloss_events e
    JOIN phrases p ON p.id = e.phrase_id
    JOIN phrase_words pw ON pw.phrase_id = p.id
    JOIN words w ON w.id = pw.word_id
    JOIN verses v ON v.id = w.verse_id
    WHERE e.sync_state = 'PENDING'
      AND p.language_id = c.language_id
      AND v.book_id = c.book_id
)
ORDER BY c.language_id, c.book_id`

const pendingEventIDsSQL = `
SELECT DISTINCT e.id
FROM gloss_events e
JOIN phrases p ON p.id = e.phrase_id
JOIN phrase_words pw ON pw.phrase_id = p.id
JOIN words w ON w.id = pw.word_id
JOIN verses v ON v.id = w.verse_id
WHERE e.sync_state = 'PENDING'
  AND p.language_id = $1
  AND v.book_id = $2
ORDER BY e.id`

// phraseGlossesSQL returns the live phrases of the language touching the
// book, with their in-book words in phrase order and the text of the oldest
// approved gloss. Phrases without an approved gloss are left out.
const phraseGlossesSQL = `
SELECT
    p.id AS phrase_id,
    array_agg(pw.word_id ORDER BY pw.position, pw.word_id) AS word_ids,
    g.gloss,
    f.content AS footnote
FROM phrases p
JOIN phrase_words pw ON pw.phrase_id = p.id
JOIN words w ON w.id = pw.word_id
JOIN verses v ON v.id = w.verse_id AND v.book_id = $2
JOIN LATERAL (
    SELECT gl.gloss
    FROM glosses gl
    WHERE gl.phrase_id = p.id AND gl.state = 'APPROVED'
    ORDER BY gl.created_at, gl.id
    LIMIT 1
) g ON true
LEFT JOIN footnotes f ON f.phrase_id = p.id
WHERE p.language_id = $1
  AND p.deleted_at IS NULL
GROUP BY p.id, g.gloss, f.content
ORDER BY p.id`

// ---------------------------------------------------------------------------
// Row types
// ---------------------------------------------------------------------------

type languageRow struct {
	ID   uuid.UUID `db:"id"`
	Code string    `db:"code"`
}

type bookKeyRow struct {
	LanguageID uuid.UUID `db:"language_id"`
	BookID     int       `db:"book_id"`
}

type phraseGlossRow struct {
	PhraseID int64    `db:"phrase_id"`
	WordIDs  []string `db:"word_ids"`
	Gloss    string   `db:"gloss"`
	Footnote *string  `db:"footnote"`
}

type layoutRow struct {
	BookID   int     `db:"book_id"`
	BookName string  `db:"book_name"`
	VerseID  *string `db:"verse_id"`
	Chapter  *int    `db:"chapter"`
	Number   *int    `db:"number"`
	WordID   *string `db:"word_id"`
}

// ---------------------------------------------------------------------------
// Read operations
// ---------------------------------------------------------------------------

// Languages returns all languages ordered by code.
func (r *Repo) Languages(ctx context.Context) ([]domain.Language, error) {
	query, args, err := psql.Select("id", "code").From("languages").OrderBy("code").ToSql()
	if err != nil {
		return nil, postgres.MapError(err, "build languages query")
	}

	var rows []languageRow
	if err := pgxscan.Select(ctx, r.q(ctx), &rows, query, args...); err != nil {
		return nil, postgres.MapError(err, "languages")
	}

	out := make([]domain.Language, len(rows))
	for i, row := range rows {
		out[i] = domain.Language{ID: row.ID, Code: row.Code}
	}
	return out, nil
}

// CompletedBooks returns every (language, book) pair whose words are all
// covered by an approved gloss of that language.
func (r *Repo) CompletedBooks(ctx context.Context) ([]domain.BookKey, error) {
	var rows []bookKeyRow
	if err := pgxscan.Select(ctx, r.q(ctx), &rows, completedBooksSQL); err != nil {
		return nil, postgres.MapError(err, "completed books")
	}
	return toBookKeys(rows), nil
}

// BooksWithPendingEvents narrows candidates to the pairs with at least one
// pending gloss event. Returns an empty slice without querying when there are
// no candidates.
func (r *Repo) BooksWithPendingEvents(ctx context.Context, candidates []domain.BookKey) ([]domain.BookKey, error) {
	if len(candidates) == 0 {
		return []domain.BookKey{}, nil
	}

	languageIDs := make([]uuid.UUID, len(candidates))
	bookIDs := make([]int32, len(candidates))
	for i, c := range candidates {
		languageIDs[i] = c.LanguageID
		bookIDs[i] = int32(c.BookID)
	}

	var rows []bookKeyRow
	if err := pgxscan.Select(ctx, r.q(ctx), &rows, booksWithPendingEventsSQL, languageIDs, bookIDs); err != nil {
		return nil, postgres.MapError(err, "books with pending events")
	}
	return toBookKeys(rows), nil
}

// PendingEventIDs returns the IDs of the pending events touching the book in
// the language, ascending.
func (r *Repo) PendingEventIDs(ctx context.Context, key domain.BookKey) ([]int64, error) {
	var ids []int64
	if err := pgxscan.Select(ctx, r.q(ctx), &ids, pendingEventIDsSQL, key.LanguageID, key.BookID); err != nil {
		return nil, postgres.MapError(err, "pending events")
	}
	if ids == nil {
		ids = []int64{}
	}
	return ids, nil
}

// PhraseGlosses returns one record per live, approved phrase of the language
// touching the book, ordered by phrase ID.
func (r *Repo) PhraseGlosses(ctx context.Context, key domain.BookKey) ([]domain.PhraseGloss, error) {
	var rows []phraseGlossRow
	if err := pgxscan.Select(ctx, r.q(ctx), &rows, phraseGlossesSQL, key.LanguageID, key.BookID); err != nil {
		return nil, postgres.MapError(err, "phrase glosses")
	}

	out := make([]domain.PhraseGloss, len(rows))
	for i, row := range rows {
		out[i] = domain.PhraseGloss{
			PhraseID: row.PhraseID,
			WordIDs:  row.WordIDs,
			Gloss:    row.Gloss,
			Footnote: row.Footnote,
		}
	}
	return out, nil
}

// BookLayouts returns the verse/word structure of the given books, ordered by
// book ID. Unknown IDs are ignored.
func (r *Repo) BookLayouts(ctx context.Context, bookIDs []int) ([]domain.BookLayout, error) {
	if len(bookIDs) == 0 {
		return []domain.BookLayout{}, nil
	}

	query, args, err := psql.
		Select(
			"b.id AS book_id",
			"b.name AS book_name",
			"v.id AS verse_id",
			"v.chapter",
			"v.number",
			"w.id AS word_id",
		).
		From("books b").
		LeftJoin("verses v ON v.book_id = b.id").
		LeftJoin("words w ON w.verse_id = v.id").
		Where(sq.Eq{"b.id": bookIDs}).
		OrderBy("b.id", "v.chapter", "v.number", "w.position").
		ToSql()
	if err != nil {
		return nil, postgres.MapError(err, "build book layouts query")
	}

	var rows []layoutRow
	if err := pgxscan.Select(ctx, r.q(ctx), &rows, query, args...); err != nil {
		return nil, postgres.MapError(err, "book layouts")
	}
	return foldLayouts(rows), nil
}

// ---------------------------------------------------------------------------
// Write operations
// ---------------------------------------------------------------------------

// SettleEvents marks the given events as synced. Events that are no longer
// pending are left alone. Returns the number of rows updated.
func (r *Repo) SettleEvents(ctx context.Context, eventIDs []int64) (int64, error) {
	if len(eventIDs) == 0 {
		return 0, nil
	}

	query, args, err := psql.
		Update("gloss_events").
		Set("sync_state", sq.Expr("'SYNCED'")).
		Set("synced_at", sq.Expr("now()")).
		Where(sq.Eq{"id": eventIDs}).
		Where("sync_state = 'PENDING'").
		ToSql()
	if err != nil {
		return 0, postgres.MapError(err, "build settle events query")
	}

	tag, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, postgres.MapError(err, "settle events")
	}
	return tag.RowsAffected(), nil
}

// PruneSyncedEvents physically removes events synced before the threshold.
// Pending events are never removed.
func (r *Repo) PruneSyncedEvents(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := psql.
		Delete("gloss_events").
		Where("sync_state = 'SYNCED'").
		Where(sq.Lt{"synced_at": before}).
		ToSql()
	if err != nil {
		return 0, postgres.MapError(err, "build prune events query")
	}

	tag, err := r.q(ctx).Exec(ctx, query, args...)
	if err != nil {
		return 0, postgres.MapError(err, "prune events")
	}
	return tag.RowsAffected(), nil
}

// ---------------------------------------------------------------------------
// Mapping helpers
// ---------------------------------------------------------------------------

func toBookKeys(rows []bookKeyRow) []domain.BookKey {
	keys := make([]domain.BookKey, len(rows))
	for i, row := range rows {
		keys[i] = domain.BookKey{LanguageID: row.LanguageID, BookID: row.BookID}
	}
	return domain.SortBookKeys(keys)
}

// foldLayouts turns the ordered book/verse/word rows into nested layouts.
func foldLayouts(rows []layoutRow) []domain.BookLayout {
	layouts := []domain.BookLayout{}

	for _, row := range rows {
		if n := len(layouts); n == 0 || layouts[n-1].ID != row.BookID {
			layouts = append(layouts, domain.BookLayout{ID: row.BookID, Name: row.BookName})
		}
		book := &layouts[len(layouts)-1]

		if row.VerseID == nil {
			continue
		}
		if n := len(book.Verses); n == 0 || book.Verses[n-1].ID != *row.VerseID {
			verse := domain.VerseLayout{ID: *row.VerseID}
			if row.Chapter != nil {
				verse.Chapter = *row.Chapter
			}
			if row.Number != nil {
				verse.Number = *row.Number
			}
			book.Verses = append(book.Verses, verse)
		}

		if row.WordID != nil {
			verse := &book.Verses[len(book.Verses)-1]
			verse.WordIDs = append(verse.WordIDs, *row.WordID)
		}
	}

	return layouts
}
