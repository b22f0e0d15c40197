// Package lifecycle keeps the mark store and its annotations in step with
// documents as they open, become visible, unload and close.
package lifecycle

import (
	"fmt"

	"github.com/gobwas/glob"

	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/logging"
	"github.com/entrhq/marker/pkg/marks"
)

// Synchronizer reacts to host events.
//
// Per (mark, document) the only transitions are Unset -> Set on the first
// registration, Set -> Set on later ones (handle unchanged) and Set -> Unset
// on removal, a host-reported clear or the document going away.
type Synchronizer struct {
	store   *marks.Store
	docs    editor.Documents
	exclude []glob.Glob
	logger  *logging.Logger
}

// NewSynchronizer creates a synchronizer. Mark notifications for documents
// whose name matches one of the exclude patterns are ignored.
func NewSynchronizer(store *marks.Store, docs editor.Documents, exclude []string, logger *logging.Logger) (*Synchronizer, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	s := &Synchronizer{store: store, docs: docs, logger: logger}
	for _, pattern := range exclude {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern '%s': %w", pattern, err)
		}
		s.exclude = append(s.exclude, g)
	}
	return s, nil
}

// Events lists the document events Attach subscribes to.
var Events = []editor.EventType{
	editor.EventDocumentOpened,
	editor.EventDocumentVisible,
	editor.EventDocumentUnloaded,
	editor.EventDocumentClosed,
	editor.EventDocumentWiped,
}

// Attach subscribes the synchronizer to the document events of src.
// Mark notifications are wired separately, by the capability negotiation.
func (s *Synchronizer) Attach(src editor.EventSource) error {
	for _, t := range Events {
		if err := src.Subscribe(t, s.Handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", t, err)
		}
	}
	return nil
}

// Handle applies one event.
func (s *Synchronizer) Handle(e editor.Event) {
	switch e.Type {
	case editor.EventDocumentOpened, editor.EventDocumentVisible:
		if n := s.store.Reannotate(e.Document); n > 0 {
			s.logger.Debugf("%s: re-annotated %d marks in %s", e.Type, n, s.docs.DocumentName(e.Document))
		}
	case editor.EventDocumentUnloaded:
		// The records stay; the annotations come back when the document does.
		s.logger.Debugf("document %d unloaded", e.Document)
	case editor.EventDocumentClosed, editor.EventDocumentWiped:
		s.store.Prune(e.Document)
		s.logger.Debugf("%s: pruned marks of document %d", e.Type, e.Document)
	case editor.EventMarkChanged:
		s.MarkChanged(e)
	default:
		if e.Type == editor.LegacyEventType(editor.LegacyMarkSet) {
			s.MarkChanged(e)
		}
	}
}

// MarkChanged records a native mark notification. Line 0 means the host
// cleared the mark.
func (s *Synchronizer) MarkChanged(e editor.Event) {
	if !e.Mark.Valid() {
		return
	}
	if e.Line > 0 && s.excluded(e.Document) {
		s.logger.Debugf("ignoring mark %s in excluded document %s", e.Mark, s.docs.DocumentName(e.Document))
		return
	}
	s.store.Register(e.Mark, e.Document, e.Line, e.Column)
}

func (s *Synchronizer) excluded(doc marks.DocumentID) bool {
	if len(s.exclude) == 0 {
		return false
	}
	name := s.docs.DocumentName(doc)
	for _, g := range s.exclude {
		if g.Match(name) {
			return true
		}
	}
	return false
}
