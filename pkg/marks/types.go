// Package marks keeps the authoritative table of named marks and persists it
// across sessions.
//
// Marks share one namespace of single-character identifiers. Upper-case
// identifiers are global: one location for the whole session. Every other
// identifier is scoped: each document keeps its own location under the same
// identifier.
package marks

import (
	"strconv"
	"unicode"
	"unicode/utf8"
)

// MarkID identifies a mark. Its case decides the scope.
type MarkID rune

// ParseMarkID converts a one-character string into a MarkID.
func ParseMarkID(s string) (MarkID, bool) {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || size != len(s) {
		return 0, false
	}
	id := MarkID(r)
	return id, id.Valid()
}

// Valid reports whether the identifier is a single printable, non-space character.
func (m MarkID) Valid() bool {
	r := rune(m)
	return r != utf8.RuneError && unicode.IsPrint(r) && !unicode.IsSpace(r)
}

// Global reports whether the mark has one session-wide location.
func (m MarkID) Global() bool {
	return unicode.IsUpper(rune(m))
}

// String returns the mark character.
func (m MarkID) String() string {
	return string(rune(m))
}

// DocumentID identifies a document known to the host.
type DocumentID int

// String returns the decimal encoding used in the persisted file.
func (d DocumentID) String() string {
	return strconv.Itoa(int(d))
}

// Handle identifies the visual annotation placed for one (mark, document) pair.
// The zero Handle means none is allocated.
type Handle int

// Location is where a mark points.
type Location struct {
	Document DocumentID
	Line     int // 1-based
	Column   int // 0-based byte offset
	Handle   Handle

	// Seq orders updates; higher is more recent.
	Seq uint64
}

// Entry is one row of the store listing.
type Entry struct {
	Mark     MarkID
	Document DocumentID
	Line     int
	Column   int
	Handle   Handle
}

// Annotator receives placement and removal callbacks for annotation handles.
// Place is called again with the same handle when a mark moves.
type Annotator interface {
	Place(h Handle, mark MarkID, doc DocumentID, line int)
	Clear(h Handle, doc DocumentID)
}

type nopAnnotator struct{}

func (nopAnnotator) Place(Handle, MarkID, DocumentID, int) {}
func (nopAnnotator) Clear(Handle, DocumentID)              {}
