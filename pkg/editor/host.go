// Package editor describes the host editor the mark registry runs inside and
// provides an in-memory implementation of it.
//
// The host owns documents, views, cursors and the native mark table. Native
// marks are ephemeral: they disappear with their document. The registry in
// package marks is the durable copy.
package editor

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/marker/pkg/marks"
)

// ErrUnsupported is returned for capabilities the host cannot serve.
var ErrUnsupported = errors.New("editor: not supported by host")

// Host errors
var (
	ErrNoDocument = errors.New("editor: document not loaded")
	ErrNoView     = errors.New("editor: view not found")
	ErrBadMark    = errors.New("editor: invalid mark")
	ErrKeyBound   = errors.New("editor: key already bound")
)

// ViewID identifies a view pane.
type ViewID int

// Position is a cursor or mark position inside a document.
type Position struct {
	Line   int // 1-based
	Column int // 0-based byte offset
}

// NativeMark is an entry of the host's own mark table.
type NativeMark struct {
	Document marks.DocumentID
	Position
}

// Documents gives read access to loaded documents.
type Documents interface {
	DocumentName(doc marks.DocumentID) string
	Loaded(doc marks.DocumentID) bool
	LineCount(doc marks.DocumentID) int
	Line(doc marks.DocumentID, line int) (string, bool)
}

// Views manages view panes and their cursors.
type Views interface {
	CurrentView() ViewID
	CurrentDocument() marks.DocumentID
	ViewsFor(doc marks.DocumentID) []ViewID
	Cursor(view ViewID) (Position, error)
	Focus(view ViewID) error
	SetCursor(view ViewID, pos Position) error
}

// MarkTable is the host's native, ephemeral mark storage. For global marks
// the document argument of NativeMark is ignored.
type MarkTable interface {
	NativeMark(mark marks.MarkID, doc marks.DocumentID) (NativeMark, bool)
	SetNativeMark(mark marks.MarkID, doc marks.DocumentID, pos Position) error
	ClearNativeMark(mark marks.MarkID, doc marks.DocumentID) error
}

// EventSource lets callers subscribe to host notifications. Both methods
// return ErrUnsupported when the host lacks the capability.
type EventSource interface {
	Subscribe(t EventType, h Handler) error
	SubscribeLegacy(command string, h Handler) error
}

// KeyHandler handles one key. A non-nil return value receives the next key,
// which is how multi-key sequences such as a mark name argument are read.
type KeyHandler func(msg tea.KeyMsg) KeyHandler

// Binding associates a key with its owner and handler.
type Binding struct {
	Owner   string
	Handler KeyHandler
}

// Keymap is the host's key binding table.
type Keymap interface {
	Lookup(key string) (Binding, bool)
	Bind(key string, b Binding) error
	Unbind(key, owner string) error
}

// DefaultMarkKey is the conventional key of a host's mark-set command.
const DefaultMarkKey = "m"

// Host is the full editor surface used by the mark registry.
type Host interface {
	Documents
	Views
	MarkTable
	EventSource
	Keymap() Keymap
	// MarkKey returns the key the host's own mark-set command is bound to.
	MarkKey() string
	Notify(msg string)
}
