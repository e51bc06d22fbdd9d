package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
)

// Revision is the opaque concurrency token the content store attaches to a
// document. The empty revision means the document does not exist yet.
type Revision string

// DocumentRef names a stored document without its content.
type DocumentRef struct {
	Language string
	Path     string
}

// Document is the exported gloss document of one language.
type Document struct {
	Language string    `json:"language"`
	Books    []DocBook `json:"books"`
}

// DocBook is a book subtree of a Document.
type DocBook struct {
	ID     int        `json:"id"`
	Name   string     `json:"name"`
	Verses []DocVerse `json:"verses"`
}

// DocVerse is a verse with its words in positional order.
type DocVerse struct {
	ID      string    `json:"id"`
	Chapter int       `json:"chapter"`
	Number  int       `json:"number"`
	Words   []DocWord `json:"words"`
}

// DocWord carries the gloss of a single word. LinkedWords lists the other
// words sharing the same phrase.
type DocWord struct {
	ID          string   `json:"id"`
	Gloss       string   `json:"gloss"`
	Footnote    string   `json:"footnote,omitempty"`
	LinkedWords []string `json:"linkedWords,omitempty"`
}

// NewDocument returns an empty document for the language code.
func NewDocument(code string) Document {
	return Document{Language: code, Books: []DocBook{}}
}

// Book returns the subtree with the given ID.
func (d Document) Book(id int) (DocBook, bool) {
	i := slices.IndexFunc(d.Books, func(b DocBook) bool { return b.ID == id })
	if i < 0 {
		return DocBook{}, false
	}
	return d.Books[i], true
}

// MergeBooks returns a copy of d in which every given book replaces the
// subtree with the same ID (or is added). Other books are kept as they are.
// Books in the result are ordered by ID.
func (d Document) MergeBooks(books ...DocBook) Document {
	out := Document{
		Language: d.Language,
		Books:    make([]DocBook, 0, len(d.Books)+len(books)),
	}

	replaced := make(map[int]DocBook, len(books))
	for _, b := range books {
		replaced[b.ID] = b
	}

	for _, b := range d.Books {
		if _, ok := replaced[b.ID]; ok {
			continue
		}
		out.Books = append(out.Books, b)
	}
	for _, b := range replaced {
		out.Books = append(out.Books, b)
	}

	slices.SortFunc(out.Books, func(a, b DocBook) int { return a.ID - b.ID })
	return out
}

// EncodeDocument renders the document as indented JSON with a trailing
// newline. Equal documents always encode to identical bytes.
func EncodeDocument(d Document) ([]byte, error) {
	if d.Books == nil {
		d.Books = []DocBook{}
	}
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode document %s: %w", d.Language, err)
	}
	return append(data, '\n'), nil
}

// DecodeDocument parses a stored document and checks that it belongs to the
// expected language. Unknown fields, trailing data and missing identifiers are
// reported as ErrDecode.
func DecodeDocument(data []byte, code string) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var d Document
	if err := dec.Decode(&d); err != nil {
		return Document{}, fmt.Errorf("document %s: %w: %v", code, ErrDecode, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return Document{}, fmt.Errorf("document %s: %w: trailing data", code, ErrDecode)
	}

	if d.Language != code {
		return Document{}, fmt.Errorf("document %s: %w: language is %q", code, ErrDecode, d.Language)
	}
	if d.Books == nil {
		d.Books = []DocBook{}
	}

	seen := make(map[int]bool, len(d.Books))
	for _, b := range d.Books {
		if b.ID <= 0 {
			return Document{}, fmt.Errorf("document %s: %w: book without id", code, ErrDecode)
		}
		if seen[b.ID] {
			return Document{}, fmt.Errorf("document %s: %w: duplicate book %d", code, ErrDecode, b.ID)
		}
		seen[b.ID] = true
		for _, v := range b.Verses {
			if v.ID == "" {
				return Document{}, fmt.Errorf("document %s: %w: book %d has a verse without id", code, ErrDecode, b.ID)
			}
			for _, w := range v.Words {
				if w.ID == "" {
					return Document{}, fmt.Errorf("document %s: %w: verse %s has a word without id", code, ErrDecode, v.ID)
				}
			}
		}
	}

	return d, nil
}
