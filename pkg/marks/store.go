package marks

import (
	"sort"

	"github.com/entrhq/marker/pkg/logging"
)

// Store is the in-memory table of marks.
//
// A Store is owned by the host's event thread: every call is expected to come
// from the same sequential dispatch loop, so it carries no locks. Store
// operations never fail; invalid input is logged and ignored.
type Store struct {
	globals map[MarkID]*Location
	scoped  map[MarkID]map[DocumentID]*Location

	annotator  Annotator
	logger     *logging.Logger
	nextHandle Handle
	seq        uint64
}

// Option configures a Store.
type Option func(*Store)

// WithAnnotator sets the callback target for annotation placement.
func WithAnnotator(a Annotator) Option {
	return func(s *Store) {
		if a != nil {
			s.annotator = a
		}
	}
}

// WithLogger sets the store logger.
func WithLogger(l *logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		globals:    make(map[MarkID]*Location),
		scoped:     make(map[MarkID]map[DocumentID]*Location),
		annotator:  nopAnnotator{},
		logger:     logging.Nop(),
		nextHandle: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) allocHandle() Handle {
	h := s.nextHandle
	s.nextHandle++
	return h
}

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

// Register records the location of mark in doc. A line of zero or less
// removes the entry instead.
func (s *Store) Register(mark MarkID, doc DocumentID, line, column int) {
	if !mark.Valid() {
		s.logger.Debugf("ignoring register for invalid mark %q", rune(mark))
		return
	}
	if line <= 0 {
		s.Remove(mark, doc)
		return
	}
	if column < 0 {
		column = 0
	}

	var loc *Location
	if mark.Global() {
		loc = s.globals[mark]
		if loc != nil && loc.Document != doc {
			// The old pair is gone; its annotation goes with it.
			s.annotator.Clear(loc.Handle, loc.Document)
			loc = nil
		}
		if loc == nil {
			loc = &Location{Document: doc, Handle: s.allocHandle()}
			s.globals[mark] = loc
		}
	} else {
		docs := s.scoped[mark]
		if docs == nil {
			docs = make(map[DocumentID]*Location)
			s.scoped[mark] = docs
		}
		loc = docs[doc]
		if loc == nil {
			loc = &Location{Document: doc, Handle: s.allocHandle()}
			docs[doc] = loc
		}
	}

	loc.Line = line
	loc.Column = column
	loc.Seq = s.nextSeq()
	s.annotator.Place(loc.Handle, mark, doc, line)
}

// Remove deletes mark. For scoped marks only the entry of doc is removed;
// global marks are removed regardless of doc. Absent entries are a no-op.
func (s *Store) Remove(mark MarkID, doc DocumentID) {
	if mark.Global() {
		loc, ok := s.globals[mark]
		if !ok {
			return
		}
		delete(s.globals, mark)
		s.annotator.Clear(loc.Handle, loc.Document)
		return
	}

	docs := s.scoped[mark]
	loc, ok := docs[doc]
	if !ok {
		return
	}
	delete(docs, doc)
	if len(docs) == 0 {
		delete(s.scoped, mark)
	}
	s.annotator.Clear(loc.Handle, doc)
}

// Prune deletes every entry that references doc.
func (s *Store) Prune(doc DocumentID) {
	for mark, loc := range s.globals {
		if loc.Document == doc {
			delete(s.globals, mark)
			s.annotator.Clear(loc.Handle, doc)
		}
	}
	for mark, docs := range s.scoped {
		loc, ok := docs[doc]
		if !ok {
			continue
		}
		delete(docs, doc)
		if len(docs) == 0 {
			delete(s.scoped, mark)
		}
		s.annotator.Clear(loc.Handle, doc)
	}
}

// Global returns the location of an upper-case mark.
func (s *Store) Global(mark MarkID) (Location, bool) {
	loc, ok := s.globals[mark]
	if !ok {
		return Location{}, false
	}
	return *loc, true
}

// Scoped returns the location of a scoped mark in doc.
func (s *Store) Scoped(mark MarkID, doc DocumentID) (Location, bool) {
	loc, ok := s.scoped[mark][doc]
	if !ok {
		return Location{}, false
	}
	return *loc, true
}

// Candidates returns every location recorded for a scoped mark, most
// recently updated first. Ties fall back to the lower document id.
func (s *Store) Candidates(mark MarkID) []Location {
	docs := s.scoped[mark]
	out := make([]Location, 0, len(docs))
	for _, loc := range docs {
		out = append(out, *loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Seq != out[j].Seq {
			return out[i].Seq > out[j].Seq
		}
		return out[i].Document < out[j].Document
	})
	return out
}

// Lookup returns the location of mark for doc, using the global entry for
// upper-case marks.
func (s *Store) Lookup(mark MarkID, doc DocumentID) (Location, bool) {
	if mark.Global() {
		return s.Global(mark)
	}
	return s.Scoped(mark, doc)
}

// Reannotate re-issues placement for every entry of doc. Annotations are
// local to a loaded document and must be redrawn when it comes back.
func (s *Store) Reannotate(doc DocumentID) int {
	placed := 0
	for _, e := range s.ForDocument(doc) {
		s.annotator.Place(e.Handle, e.Mark, e.Document, e.Line)
		placed++
	}
	return placed
}

// ForDocument lists the entries referencing doc, sorted by mark.
func (s *Store) ForDocument(doc DocumentID) []Entry {
	var out []Entry
	for _, e := range s.entries() {
		if e.Document == doc {
			out = append(out, e)
		}
	}
	return out
}

// List returns every entry sorted by mark, document and line.
func (s *Store) List() []Entry {
	return s.entries()
}

// Len returns the number of entries.
func (s *Store) Len() int {
	n := len(s.globals)
	for _, docs := range s.scoped {
		n += len(docs)
	}
	return n
}

func (s *Store) entries() []Entry {
	out := make([]Entry, 0, s.Len())
	for mark, loc := range s.globals {
		out = append(out, entryOf(mark, loc))
	}
	for mark, docs := range s.scoped {
		for _, loc := range docs {
			out = append(out, entryOf(mark, loc))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Mark != b.Mark {
			return a.Mark < b.Mark
		}
		if a.Document != b.Document {
			return a.Document < b.Document
		}
		return a.Line < b.Line
	})
	return out
}

func entryOf(mark MarkID, loc *Location) Entry {
	return Entry{
		Mark:     mark,
		Document: loc.Document,
		Line:     loc.Line,
		Column:   loc.Column,
		Handle:   loc.Handle,
	}
}

// Snapshot returns a copy of the table for persistence.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{
		Global: make(map[MarkID]Location, len(s.globals)),
		Scoped: make(map[MarkID]map[DocumentID]Location, len(s.scoped)),
	}
	for mark, loc := range s.globals {
		snap.Global[mark] = *loc
	}
	for mark, docs := range s.scoped {
		m := make(map[DocumentID]Location, len(docs))
		for doc, loc := range docs {
			m[doc] = *loc
		}
		snap.Scoped[mark] = m
	}
	return snap
}

// Restore replaces the table with snap. Handles are kept when they are
// positive and unique; the rest are renumbered. No annotation callbacks are
// issued: documents are not loaded yet and get annotated when they open.
func (s *Store) Restore(snap Snapshot) {
	s.globals = make(map[MarkID]*Location)
	s.scoped = make(map[MarkID]map[DocumentID]*Location)
	s.nextHandle = 1
	s.seq = 0

	// Walk in listing order so renumbering and sequence numbers are stable.
	var pending []*Location
	used := make(map[Handle]bool)
	for _, e := range snap.entries() {
		if !e.Mark.Valid() || e.Line <= 0 {
			s.logger.Debugf("dropping restored mark %q in document %d: invalid", rune(e.Mark), e.Document)
			continue
		}
		loc := &Location{
			Document: e.Document,
			Line:     e.Line,
			Column:   max(e.Column, 0),
			Handle:   e.Handle,
			Seq:      s.nextSeq(),
		}
		if e.Mark.Global() {
			if _, dup := s.globals[e.Mark]; dup {
				continue
			}
			s.globals[e.Mark] = loc
		} else {
			docs := s.scoped[e.Mark]
			if docs == nil {
				docs = make(map[DocumentID]*Location)
				s.scoped[e.Mark] = docs
			}
			docs[e.Document] = loc
		}
		if loc.Handle <= 0 || used[loc.Handle] {
			pending = append(pending, loc)
			continue
		}
		used[loc.Handle] = true
		if loc.Handle >= s.nextHandle {
			s.nextHandle = loc.Handle + 1
		}
	}
	for _, loc := range pending {
		loc.Handle = s.allocHandle()
	}
}
