package domain

import (
	"testing"

	"github.com/google/uuid"
)

func TestSortBookKeys_SortsAndDedups(t *testing.T) {
	t.Parallel()

	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")

	got := SortBookKeys([]BookKey{
		{LanguageID: b, BookID: 1},
		{LanguageID: a, BookID: 2},
		{LanguageID: a, BookID: 1},
		{LanguageID: a, BookID: 2},
	})

	want := []BookKey{{a, 1}, {a, 2}, {b, 1}}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGroupByLanguage(t *testing.T) {
	t.Parallel()

	a, b := uuid.New(), uuid.New()
	groups := GroupByLanguage([]BookKey{{a, 3}, {b, 1}, {a, 1}, {a, 3}})

	if len(groups) != 2 {
		t.Fatalf("len(groups) = %d, want 2", len(groups))
	}
	if got := groups[a]; len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Errorf("groups[a] = %v, want [1 3]", got)
	}
	if got := groups[b]; len(got) != 1 || got[0] != 1 {
		t.Errorf("groups[b] = %v, want [1]", got)
	}
}

func TestBookLayout_WordCount(t *testing.T) {
	t.Parallel()

	layout := BookLayout{Verses: []VerseLayout{
		{WordIDs: []string{"a", "b"}},
		{WordIDs: []string{"c"}},
		{},
	}}
	if got := layout.WordCount(); got != 3 {
		t.Errorf("WordCount() = %d, want 3", got)
	}
}
