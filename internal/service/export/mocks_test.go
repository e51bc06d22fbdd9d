package export

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/heartmarshall/gloss-export/internal/config"
	"github.com/heartmarshall/gloss-export/internal/domain"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.ExportConfig {
	return config.ExportConfig{
		Workers:            2,
		MaxConflictRetries: 3,
		ConflictBackoff:    0,
		SettleEvents:       true,
	}
}

// ---------------------------------------------------------------------------
// glossRepo
// ---------------------------------------------------------------------------

type mockRepo struct {
	languagesFn              func(ctx context.Context) ([]domain.Language, error)
	completedBooksFn         func(ctx context.Context) ([]domain.BookKey, error)
	booksWithPendingEventsFn func(ctx context.Context, candidates []domain.BookKey) ([]domain.BookKey, error)
	pendingEventIDsFn        func(ctx context.Context, key domain.BookKey) ([]int64, error)
	phraseGlossesFn          func(ctx context.Context, key domain.BookKey) ([]domain.PhraseGloss, error)
	bookLayoutsFn            func(ctx context.Context, bookIDs []int) ([]domain.BookLayout, error)
	settleEventsFn           func(ctx context.Context, eventIDs []int64) (int64, error)
}

func (m *mockRepo) Languages(ctx context.Context) ([]domain.Language, error) {
	return m.languagesFn(ctx)
}
func (m *mockRepo) CompletedBooks(ctx context.Context) ([]domain.BookKey, error) {
	return m.completedBooksFn(ctx)
}
func (m *mockRepo) BooksWithPendingEvents(ctx context.Context, candidates []domain.BookKey) ([]domain.BookKey, error) {
	return m.booksWithPendingEventsFn(ctx, candidates)
}
func (m *mockRepo) PendingEventIDs(ctx context.Context, key domain.BookKey) ([]int64, error) {
	return m.pendingEventIDsFn(ctx, key)
}
func (m *mockRepo) PhraseGlosses(ctx context.Context, key domain.BookKey) ([]domain.PhraseGloss, error) {
	return m.phraseGlossesFn(ctx, key)
}
func (m *mockRepo) BookLayouts(ctx context.Context, bookIDs []int) ([]domain.BookLayout, error) {
	return m.bookLayoutsFn(ctx, bookIDs)
}
func (m *mockRepo) SettleEvents(ctx context.Context, eventIDs []int64) (int64, error) {
	return m.settleEventsFn(ctx, eventIDs)
}

// fixture is a small in-memory glossing database. It answers the repository
// calls the way the SQL does, so orchestrator tests can change data between
// runs.
type fixture struct {
	mu        sync.Mutex
	languages []domain.Language
	layouts   map[int]domain.BookLayout
	// records and pending events are keyed by (language, book).
	records map[domain.BookKey][]domain.PhraseGloss
	events  map[domain.BookKey][]int64
	settled []int64
}

func newFixture() *fixture {
	return &fixture{
		layouts: map[int]domain.BookLayout{},
		records: map[domain.BookKey][]domain.PhraseGloss{},
		events:  map[domain.BookKey][]int64{},
	}
}

func (f *fixture) complete(key domain.BookKey) bool {
	layout, ok := f.layouts[key.BookID]
	if !ok || layout.WordCount() == 0 {
		return false
	}
	covered := map[string]bool{}
	for _, r := range f.records[key] {
		for _, w := range r.WordIDs {
			covered[w] = true
		}
	}
	for _, v := range layout.Verses {
		for _, w := range v.WordIDs {
			if !covered[w] {
				return false
			}
		}
	}
	return true
}

func (f *fixture) repo() *mockRepo {
	return &mockRepo{
		languagesFn: func(context.Context) ([]domain.Language, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return append([]domain.Language(nil), f.languages...), nil
		},
		completedBooksFn: func(context.Context) ([]domain.BookKey, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var keys []domain.BookKey
			for _, lang := range f.languages {
				for id := range f.layouts {
					key := domain.BookKey{LanguageID: lang.ID, BookID: id}
					if f.complete(key) {
						keys = append(keys, key)
					}
				}
			}
			return keys, nil
		},
		booksWithPendingEventsFn: func(_ context.Context, candidates []domain.BookKey) ([]domain.BookKey, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var keys []domain.BookKey
			for _, k := range candidates {
				if len(f.events[k]) > 0 {
					keys = append(keys, k)
				}
			}
			return keys, nil
		},
		pendingEventIDsFn: func(_ context.Context, key domain.BookKey) ([]int64, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return append([]int64{}, f.events[key]...), nil
		},
		phraseGlossesFn: func(_ context.Context, key domain.BookKey) ([]domain.PhraseGloss, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return append([]domain.PhraseGloss(nil), f.records[key]...), nil
		},
		bookLayoutsFn: func(_ context.Context, bookIDs []int) ([]domain.BookLayout, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			var out []domain.BookLayout
			for _, id := range bookIDs {
				if l, ok := f.layouts[id]; ok {
					out = append(out, l)
				}
			}
			return out, nil
		},
		settleEventsFn: func(_ context.Context, ids []int64) (int64, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			settle := map[int64]bool{}
			for _, id := range ids {
				settle[id] = true
			}
			var n int64
			for key, events := range f.events {
				kept := events[:0]
				for _, id := range events {
					if settle[id] {
						n++
						f.settled = append(f.settled, id)
						continue
					}
					kept = append(kept, id)
				}
				f.events[key] = kept
			}
			return n, nil
		},
	}
}

// ---------------------------------------------------------------------------
// txManager
// ---------------------------------------------------------------------------

type mockTx struct {
	err   error
	calls int
	mu    sync.Mutex
}

func (m *mockTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	return fn(ctx)
}

// ---------------------------------------------------------------------------
// contentStore
// ---------------------------------------------------------------------------

// memStore keeps documents in memory with a counter per language as
// revision, and rejects writes whose expected revision is stale.
type memStore struct {
	mu       sync.Mutex
	docs     map[string][]byte
	revs     map[string]int
	reads    map[string]int
	writes   map[string]int
	messages []string

	listErr  error
	readErr  map[string]error
	writeErr map[string]error
	// beforeWrite runs before each write is checked; tests use it to play
	// a concurrent writer.
	beforeWrite func(code string, attempt int)
}

func newMemStore() *memStore {
	return &memStore{
		docs:     map[string][]byte{},
		revs:     map[string]int{},
		reads:    map[string]int{},
		writes:   map[string]int{},
		readErr:  map[string]error{},
		writeErr: map[string]error{},
	}
}

func revisionOf(n int) domain.Revision {
	if n == 0 {
		return ""
	}
	return domain.Revision(fmt.Sprintf("rev-%d", n))
}

// put stores doc as another writer would.
func (s *memStore) put(doc domain.Document) {
	data, err := domain.EncodeDocument(doc)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[doc.Language] = data
	s.revs[doc.Language]++
}

func (s *memStore) doc(code string) (domain.Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[code]
	if !ok {
		return domain.Document{}, false
	}
	doc, err := domain.DecodeDocument(data, code)
	if err != nil {
		panic(err)
	}
	return doc, true
}

func (s *memStore) totalWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.writes {
		n += w
	}
	return n
}

func (s *memStore) List(context.Context) ([]domain.DocumentRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	refs := make([]domain.DocumentRef, 0, len(s.docs))
	for code := range s.docs {
		refs = append(refs, domain.DocumentRef{Language: code, Path: code + "/glosses.json"})
	}
	return refs, nil
}

func (s *memStore) Read(ctx context.Context, code string) (domain.Document, domain.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads[code]++
	if err := ctx.Err(); err != nil {
		return domain.Document{}, "", err
	}
	if err := s.readErr[code]; err != nil {
		return domain.Document{}, "", err
	}
	data, ok := s.docs[code]
	if !ok {
		return domain.NewDocument(code), "", nil
	}
	doc, err := domain.DecodeDocument(data, code)
	if err != nil {
		return domain.Document{}, "", err
	}
	return doc, revisionOf(s.revs[code]), nil
}

func (s *memStore) Write(ctx context.Context, code string, doc domain.Document, expected domain.Revision, message string) (domain.Revision, error) {
	if s.beforeWrite != nil {
		s.mu.Lock()
		attempt := s.writes[code] + 1
		s.mu.Unlock()
		s.beforeWrite(code, attempt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes[code]++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.writeErr[code]; err != nil {
		return "", err
	}
	if current := revisionOf(s.revs[code]); current != expected {
		return "", &domain.ConflictError{Language: code, Expected: expected}
	}

	data, err := domain.EncodeDocument(doc)
	if err != nil {
		return "", err
	}
	s.docs[code] = data
	s.revs[code]++
	s.messages = append(s.messages, message)
	return revisionOf(s.revs[code]), nil
}
