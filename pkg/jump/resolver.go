// Package jump resolves a mark to its best current location and moves the
// cursor there.
package jump

import (
	"errors"
	"fmt"
	"strings"

	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/logging"
	"github.com/entrhq/marker/pkg/marks"
)

var (
	// ErrNotFound means neither the host nor the store knows the mark.
	ErrNotFound = errors.New("mark not set")

	// ErrUnresolvable means the mark's document is not shown in any view.
	ErrUnresolvable = errors.New("mark document not open")
)

// UnresolvableError names the document a mark points into.
type UnresolvableError struct {
	Mark     marks.MarkID
	Document marks.DocumentID
	Name     string
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("mark %s: %s is not open in any view", e.Mark, e.Name)
}

// Is matches ErrUnresolvable.
func (e *UnresolvableError) Is(target error) bool {
	return target == ErrUnresolvable
}

// Source tells where a resolved position came from.
type Source string

const (
	SourceHost  Source = "host"
	SourceStore Source = "store"
)

// Target is a resolved mark location.
type Target struct {
	Mark     marks.MarkID
	Document marks.DocumentID
	Line     int
	Column   int
	Source   Source
	// Recovered is true when the stored column was replaced by the glyph search.
	Recovered bool
}

// Host is the part of the editor the resolver needs.
type Host interface {
	editor.Documents
	editor.Views
	editor.MarkTable
}

// Resolver picks the location to jump to for a mark.
type Resolver struct {
	store  *marks.Store
	host   Host
	logger *logging.Logger
}

// NewResolver creates a resolver.
func NewResolver(store *marks.Store, host Host, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{store: store, host: host, logger: logger}
}

// Resolve computes where mark currently points.
//
// A live host mark with a non-zero line wins, since it tracks edits the
// store never saw. Otherwise the store is used: for scoped marks the entry
// of the current document, else the most recently updated entry whose
// document is loaded. The document must be shown in at least one view.
func (r *Resolver) Resolve(mark marks.MarkID) (Target, error) {
	if !mark.Valid() {
		return Target{}, fmt.Errorf("mark %q: %w", rune(mark), ErrNotFound)
	}
	current := r.host.CurrentDocument()

	t, ok := r.live(mark, current)
	if !ok {
		t, ok = r.stored(mark, current)
	}
	if !ok {
		return Target{}, fmt.Errorf("mark %s: %w", mark, ErrNotFound)
	}

	if len(r.host.ViewsFor(t.Document)) == 0 {
		return Target{}, &UnresolvableError{
			Mark:     mark,
			Document: t.Document,
			Name:     r.host.DocumentName(t.Document),
		}
	}

	r.recover(&t)
	return t, nil
}

func (r *Resolver) live(mark marks.MarkID, doc marks.DocumentID) (Target, bool) {
	nm, ok := r.host.NativeMark(mark, doc)
	if !ok || nm.Line <= 0 {
		return Target{}, false
	}
	return Target{Mark: mark, Document: nm.Document, Line: nm.Line, Column: nm.Column, Source: SourceHost}, true
}

func (r *Resolver) stored(mark marks.MarkID, current marks.DocumentID) (Target, bool) {
	var loc marks.Location
	found := false

	if mark.Global() {
		loc, found = r.store.Global(mark)
	} else if l, ok := r.store.Scoped(mark, current); ok {
		loc, found = l, true
	} else {
		var first *marks.Location
		for _, c := range r.store.Candidates(mark) {
			if first == nil {
				first = &c
			}
			if r.host.Loaded(c.Document) {
				loc, found = c, true
				break
			}
		}
		// No candidate is resident: report the most recent one so the
		// caller learns which document to open.
		if !found && first != nil {
			loc, found = *first, true
		}
	}
	if !found {
		return Target{}, false
	}

	// The host may still track this document's mark even when it is not current.
	if !mark.Global() && loc.Document != current {
		if t, ok := r.live(mark, loc.Document); ok {
			return t, true
		}
	}
	return Target{Mark: mark, Document: loc.Document, Line: loc.Line, Column: loc.Column, Source: SourceStore}, true
}

// recover clamps the line to the document and repairs the column.
func (r *Resolver) recover(t *Target) {
	if n := r.host.LineCount(t.Document); n > 0 && t.Line > n {
		r.logger.Debugf("mark %s line %d beyond end of %s, clamping to %d", t.Mark, t.Line, r.host.DocumentName(t.Document), n)
		t.Line = n
	}
	text, ok := r.host.Line(t.Document, t.Line)
	if !ok {
		return
	}
	col, recovered := RecoverColumn(text, t.Column, t.Mark.String())
	if recovered {
		r.logger.Debugf("mark %s column %d out of range on line %d, recovered %d", t.Mark, t.Column, t.Line, col)
	}
	t.Column = col
	t.Recovered = recovered
}

// RecoverColumn returns column if it lies inside line. Otherwise it picks the
// occurrence of glyph nearest to column, preferring the one at or before it
// on a tie, and falls back to the line length.
//
// The glyph search is a heuristic: the glyph is the only signal left once
// edits have invalidated the stored column.
func RecoverColumn(line string, column int, glyph string) (int, bool) {
	if column >= 0 && column < len(line) {
		return column, false
	}

	best := -1
	if glyph != "" {
		for off := 0; off <= len(line)-len(glyph); {
			i := strings.Index(line[off:], glyph)
			if i < 0 {
				break
			}
			pos := off + i
			if best < 0 || closer(pos, best, column) {
				best = pos
			}
			off = pos + 1
		}
	}
	if best >= 0 {
		return best, true
	}
	return min(max(column, 0), len(line)), true
}

// closer reports whether a beats b as the occurrence nearest to target.
func closer(a, b, target int) bool {
	da, db := abs(a-target), abs(b-target)
	if da != db {
		return da < db
	}
	// Tie: prefer the occurrence at or before target.
	return a <= target && b > target
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Jump resolves mark and moves the cursor there, focusing a view that shows
// the document. The current view is kept when it already shows it. No view
// is ever opened.
func (r *Resolver) Jump(mark marks.MarkID) (Target, error) {
	t, err := r.Resolve(mark)
	if err != nil {
		return Target{}, err
	}

	view := r.host.CurrentView()
	if r.host.CurrentDocument() != t.Document {
		view = r.host.ViewsFor(t.Document)[0]
		if err := r.host.Focus(view); err != nil {
			return Target{}, fmt.Errorf("jump to mark %s: %w", mark, err)
		}
	}
	if err := r.host.SetCursor(view, editor.Position{Line: t.Line, Column: t.Column}); err != nil {
		return Target{}, fmt.Errorf("jump to mark %s: %w", mark, err)
	}
	return t, nil
}
