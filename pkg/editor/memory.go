package editor

import (
	"fmt"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/marker/pkg/marks"
)

// Capabilities selects which notification APIs a Memory host exposes.
type Capabilities struct {
	// MarkEvents enables the structured EventMarkChanged subscription.
	MarkEvents bool
	// LegacyCommands enables scripted-command hooks such as "MarkSet".
	LegacyCommands bool
}

// LegacyMarkSet is the scripted-command hook fired after a native mark set.
const LegacyMarkSet = "MarkSet"

// Annotation is a gutter indicator placed in a loaded document.
type Annotation struct {
	Handle marks.Handle
	Mark   marks.MarkID
	Line   int
}

type document struct {
	id          marks.DocumentID
	name        string
	lines       []string
	loaded      bool
	marks       map[marks.MarkID]Position
	annotations map[marks.Handle]Annotation
}

type view struct {
	id     ViewID
	doc    marks.DocumentID
	cursor Position
}

// Memory is an in-process Host. Like a real editor it is single-threaded:
// every method must be called from the same goroutine.
type Memory struct {
	caps       Capabilities
	dispatcher *Dispatcher

	docs    map[marks.DocumentID]*document
	nextDoc marks.DocumentID

	views    map[ViewID]*view
	nextView ViewID
	current  ViewID

	globals map[marks.MarkID]NativeMark

	bindings map[string]Binding
	pending  KeyHandler
	markKey  string

	messages []string
}

// NewMemory creates an empty host.
func NewMemory(caps Capabilities) *Memory {
	return &Memory{
		caps:       caps,
		dispatcher: NewDispatcher(),
		docs:       make(map[marks.DocumentID]*document),
		nextDoc:    1,
		views:      make(map[ViewID]*view),
		nextView:   1,
		globals:    make(map[marks.MarkID]NativeMark),
		bindings:   make(map[string]Binding),
		markKey:    DefaultMarkKey,
	}
}

// MarkKey returns the key of the built-in mark-set command.
func (m *Memory) MarkKey() string {
	return m.markKey
}

// SetMarkKey moves the built-in mark-set command to k. The key's previous
// default action, if any, is shadowed.
func (m *Memory) SetMarkKey(k string) {
	if k != "" {
		m.markKey = k
	}
}

// Capabilities returns the current API surface.
func (m *Memory) Capabilities() Capabilities {
	return m.caps
}

// SetCapabilities changes the API surface and emits EventCapabilitiesChanged.
func (m *Memory) SetCapabilities(caps Capabilities) {
	m.caps = caps
	m.dispatcher.Emit(Event{Type: EventCapabilitiesChanged})
}

// Subscribe registers h for t. EventMarkChanged requires MarkEvents.
func (m *Memory) Subscribe(t EventType, h Handler) error {
	if t == EventMarkChanged && !m.caps.MarkEvents {
		return fmt.Errorf("subscribe %s: %w", t, ErrUnsupported)
	}
	m.dispatcher.On(t, h)
	return nil
}

// SubscribeLegacy registers h for a scripted-command hook.
func (m *Memory) SubscribeLegacy(command string, h Handler) error {
	if !m.caps.LegacyCommands || command != LegacyMarkSet {
		return fmt.Errorf("legacy hook %s: %w", command, ErrUnsupported)
	}
	m.dispatcher.On(LegacyEventType(command), h)
	return nil
}

// Shutdown emits EventShutdown.
func (m *Memory) Shutdown() {
	m.dispatcher.Emit(Event{Type: EventShutdown})
}

// OpenDocument loads a new document from text and returns its id.
func (m *Memory) OpenDocument(name, text string) marks.DocumentID {
	id := m.nextDoc
	m.nextDoc++
	m.docs[id] = &document{
		id:          id,
		name:        name,
		lines:       splitLines(text),
		loaded:      true,
		marks:       make(map[marks.MarkID]Position),
		annotations: make(map[marks.Handle]Annotation),
	}
	m.dispatcher.Emit(Event{Type: EventDocumentOpened, Document: id})
	return id
}

func splitLines(text string) []string {
	text = strings.TrimSuffix(text, "\n")
	return strings.Split(text, "\n")
}

// Text returns the document contents.
func (m *Memory) Text(doc marks.DocumentID) string {
	d, ok := m.docs[doc]
	if !ok {
		return ""
	}
	return strings.Join(d.lines, "\n")
}

// OpenView shows doc in a new view and focuses it.
func (m *Memory) OpenView(doc marks.DocumentID) (ViewID, error) {
	d, ok := m.docs[doc]
	if !ok {
		return 0, fmt.Errorf("open view on %d: %w", doc, ErrNoDocument)
	}
	if !d.loaded {
		d.loaded = true
		m.dispatcher.Emit(Event{Type: EventDocumentOpened, Document: doc})
	}
	id := m.nextView
	m.nextView++
	m.views[id] = &view{id: id, doc: doc, cursor: Position{Line: 1}}
	m.current = id
	m.dispatcher.Emit(Event{Type: EventDocumentVisible, Document: doc})
	return id, nil
}

// CloseView removes a view. The document stays loaded.
func (m *Memory) CloseView(id ViewID) {
	if _, ok := m.views[id]; !ok {
		return
	}
	delete(m.views, id)
	if m.current == id {
		m.current = 0
		if ids := m.viewIDs(); len(ids) > 0 {
			m.current = ids[0]
		}
	}
}

// UnloadDocument drops a document from memory but keeps it listed. Its
// views close and its annotations are lost; native marks survive.
func (m *Memory) UnloadDocument(doc marks.DocumentID) {
	d, ok := m.docs[doc]
	if !ok || !d.loaded {
		return
	}
	m.closeViewsOf(doc)
	d.loaded = false
	d.annotations = make(map[marks.Handle]Annotation)
	m.dispatcher.Emit(Event{Type: EventDocumentUnloaded, Document: doc})
}

// CloseDocument deletes a document. Native marks inside it are gone.
func (m *Memory) CloseDocument(doc marks.DocumentID) {
	m.removeDocument(doc, EventDocumentClosed)
}

// WipeDocument deletes a document entirely.
func (m *Memory) WipeDocument(doc marks.DocumentID) {
	m.removeDocument(doc, EventDocumentWiped)
}

func (m *Memory) removeDocument(doc marks.DocumentID, t EventType) {
	if _, ok := m.docs[doc]; !ok {
		return
	}
	m.closeViewsOf(doc)
	delete(m.docs, doc)
	for mark, nm := range m.globals {
		if nm.Document == doc {
			delete(m.globals, mark)
		}
	}
	m.dispatcher.Emit(Event{Type: t, Document: doc})
}

func (m *Memory) closeViewsOf(doc marks.DocumentID) {
	for _, id := range m.viewIDs() {
		if m.views[id].doc == doc {
			m.CloseView(id)
		}
	}
}

func (m *Memory) viewIDs() []ViewID {
	ids := make([]ViewID, 0, len(m.views))
	for id := range m.views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Views returns every view id in creation order.
func (m *Memory) Views() []ViewID {
	return m.viewIDs()
}

// ViewDocument returns the document shown in a view.
func (m *Memory) ViewDocument(id ViewID) (marks.DocumentID, bool) {
	v, ok := m.views[id]
	if !ok {
		return 0, false
	}
	return v.doc, true
}

// Documents returns the ids of loaded documents in ascending order.
func (m *Memory) Documents() []marks.DocumentID {
	var ids []marks.DocumentID
	for id, d := range m.docs {
		if d.loaded {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// DocumentName returns the name a document was opened with.
func (m *Memory) DocumentName(doc marks.DocumentID) string {
	if d, ok := m.docs[doc]; ok {
		return d.name
	}
	return fmt.Sprintf("document %d", doc)
}

// Loaded reports whether doc is in memory.
func (m *Memory) Loaded(doc marks.DocumentID) bool {
	d, ok := m.docs[doc]
	return ok && d.loaded
}

// LineCount returns the number of lines of a loaded document.
func (m *Memory) LineCount(doc marks.DocumentID) int {
	d, ok := m.docs[doc]
	if !ok || !d.loaded {
		return 0
	}
	return len(d.lines)
}

// Line returns the text of a 1-based line.
func (m *Memory) Line(doc marks.DocumentID, line int) (string, bool) {
	d, ok := m.docs[doc]
	if !ok || !d.loaded || line < 1 || line > len(d.lines) {
		return "", false
	}
	return d.lines[line-1], true
}

// SetLine replaces the text of a line without moving marks.
func (m *Memory) SetLine(doc marks.DocumentID, line int, text string) error {
	d, ok := m.docs[doc]
	if !ok || !d.loaded {
		return fmt.Errorf("set line in %d: %w", doc, ErrNoDocument)
	}
	if line < 1 || line > len(d.lines) {
		return fmt.Errorf("set line %d: out of range", line)
	}
	d.lines[line-1] = text
	return nil
}

// InsertLines inserts text before line at. Native marks at or below it
// shift down; the registry does not hear about the shift.
func (m *Memory) InsertLines(doc marks.DocumentID, at int, lines ...string) error {
	d, ok := m.docs[doc]
	if !ok || !d.loaded {
		return fmt.Errorf("insert in %d: %w", doc, ErrNoDocument)
	}
	at = clamp(at, 1, len(d.lines)+1)
	n := len(lines)
	d.lines = append(d.lines[:at-1], append(append([]string{}, lines...), d.lines[at-1:]...)...)

	for mark, pos := range d.marks {
		if pos.Line >= at {
			pos.Line += n
			d.marks[mark] = pos
		}
	}
	for mark, nm := range m.globals {
		if nm.Document == doc && nm.Line >= at {
			nm.Line += n
			m.globals[mark] = nm
		}
	}
	return nil
}

// DeleteLines removes n lines starting at line at. Native marks inside the
// range are cleared and reported with Line 0; marks below shift up.
func (m *Memory) DeleteLines(doc marks.DocumentID, at, n int) error {
	d, ok := m.docs[doc]
	if !ok || !d.loaded {
		return fmt.Errorf("delete in %d: %w", doc, ErrNoDocument)
	}
	if at < 1 || at > len(d.lines) || n <= 0 {
		return fmt.Errorf("delete lines %d+%d: out of range", at, n)
	}
	end := min(at+n, len(d.lines)+1)
	n = end - at
	d.lines = append(d.lines[:at-1], d.lines[end-1:]...)
	if len(d.lines) == 0 {
		d.lines = []string{""}
	}

	var cleared []marks.MarkID
	for mark, pos := range d.marks {
		switch {
		case pos.Line >= end:
			pos.Line -= n
			d.marks[mark] = pos
		case pos.Line >= at:
			delete(d.marks, mark)
			cleared = append(cleared, mark)
		}
	}
	for mark, nm := range m.globals {
		if nm.Document != doc {
			continue
		}
		switch {
		case nm.Line >= end:
			nm.Line -= n
			m.globals[mark] = nm
		case nm.Line >= at:
			delete(m.globals, mark)
			cleared = append(cleared, mark)
		}
	}
	sort.Slice(cleared, func(i, j int) bool { return cleared[i] < cleared[j] })
	for _, mark := range cleared {
		m.notifyMark(mark, doc, Position{})
	}
	return nil
}

// CurrentView returns the focused view, zero when none.
func (m *Memory) CurrentView() ViewID {
	return m.current
}

// CurrentDocument returns the document of the focused view, zero when none.
func (m *Memory) CurrentDocument() marks.DocumentID {
	if v, ok := m.views[m.current]; ok {
		return v.doc
	}
	return 0
}

// ViewsFor returns the views showing doc in ascending order.
func (m *Memory) ViewsFor(doc marks.DocumentID) []ViewID {
	var out []ViewID
	for _, id := range m.viewIDs() {
		if m.views[id].doc == doc {
			out = append(out, id)
		}
	}
	return out
}

// Cursor returns the cursor of a view.
func (m *Memory) Cursor(id ViewID) (Position, error) {
	v, ok := m.views[id]
	if !ok {
		return Position{}, fmt.Errorf("cursor of view %d: %w", id, ErrNoView)
	}
	return v.cursor, nil
}

// Focus makes a view current.
func (m *Memory) Focus(id ViewID) error {
	if _, ok := m.views[id]; !ok {
		return fmt.Errorf("focus view %d: %w", id, ErrNoView)
	}
	m.current = id
	return nil
}

// SetCursor moves the cursor of a view, clamping to the document.
func (m *Memory) SetCursor(id ViewID, pos Position) error {
	v, ok := m.views[id]
	if !ok {
		return fmt.Errorf("set cursor of view %d: %w", id, ErrNoView)
	}
	d := m.docs[v.doc]
	pos.Line = clamp(pos.Line, 1, len(d.lines))
	pos.Column = clamp(pos.Column, 0, len(d.lines[pos.Line-1]))
	v.cursor = pos
	return nil
}

// NativeMark looks up the host's own mark table.
func (m *Memory) NativeMark(mark marks.MarkID, doc marks.DocumentID) (NativeMark, bool) {
	if mark.Global() {
		nm, ok := m.globals[mark]
		return nm, ok
	}
	d, ok := m.docs[doc]
	if !ok {
		return NativeMark{}, false
	}
	pos, ok := d.marks[mark]
	if !ok {
		return NativeMark{}, false
	}
	return NativeMark{Document: doc, Position: pos}, true
}

// SetNativeMark is the host's built-in mark-set operation. It fires the
// notifications enabled by the current capabilities.
func (m *Memory) SetNativeMark(mark marks.MarkID, doc marks.DocumentID, pos Position) error {
	if !mark.Valid() {
		return fmt.Errorf("set mark %q: %w", rune(mark), ErrBadMark)
	}
	d, ok := m.docs[doc]
	if !ok || !d.loaded {
		return fmt.Errorf("set mark %s in %d: %w", mark, doc, ErrNoDocument)
	}
	pos.Line = clamp(pos.Line, 1, len(d.lines))
	pos.Column = max(pos.Column, 0)
	if mark.Global() {
		m.globals[mark] = NativeMark{Document: doc, Position: pos}
	} else {
		d.marks[mark] = pos
	}
	m.notifyMark(mark, doc, pos)
	return nil
}

// ClearNativeMark deletes a native mark and reports it with Line 0.
// Clearing an unset mark is a no-op.
func (m *Memory) ClearNativeMark(mark marks.MarkID, doc marks.DocumentID) error {
	if !mark.Valid() {
		return fmt.Errorf("clear mark %q: %w", rune(mark), ErrBadMark)
	}
	if mark.Global() {
		nm, ok := m.globals[mark]
		if !ok {
			return nil
		}
		delete(m.globals, mark)
		m.notifyMark(mark, nm.Document, Position{})
		return nil
	}
	d, ok := m.docs[doc]
	if !ok {
		return nil
	}
	if _, ok := d.marks[mark]; !ok {
		return nil
	}
	delete(d.marks, mark)
	m.notifyMark(mark, doc, Position{})
	return nil
}

func (m *Memory) notifyMark(mark marks.MarkID, doc marks.DocumentID, pos Position) {
	e := Event{Type: EventMarkChanged, Document: doc, Mark: mark, Line: pos.Line, Column: pos.Column}
	if m.caps.MarkEvents {
		m.dispatcher.Emit(e)
	}
	if m.caps.LegacyCommands {
		e.Type = LegacyEventType(LegacyMarkSet)
		m.dispatcher.Emit(e)
	}
}

// Place implements marks.Annotator. Placement on an unloaded document is dropped.
func (m *Memory) Place(h marks.Handle, mark marks.MarkID, doc marks.DocumentID, line int) {
	d, ok := m.docs[doc]
	if !ok || !d.loaded {
		return
	}
	d.annotations[h] = Annotation{Handle: h, Mark: mark, Line: line}
}

// Clear implements marks.Annotator.
func (m *Memory) Clear(h marks.Handle, doc marks.DocumentID) {
	if d, ok := m.docs[doc]; ok {
		delete(d.annotations, h)
	}
}

// Annotations returns the annotations of doc ordered by line then mark.
func (m *Memory) Annotations(doc marks.DocumentID) []Annotation {
	d, ok := m.docs[doc]
	if !ok {
		return nil
	}
	out := make([]Annotation, 0, len(d.annotations))
	for _, a := range d.annotations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Line != out[j].Line {
			return out[i].Line < out[j].Line
		}
		return out[i].Mark < out[j].Mark
	})
	return out
}

// Notify records a user-visible message.
func (m *Memory) Notify(msg string) {
	m.messages = append(m.messages, msg)
}

// Messages returns every message passed to Notify.
func (m *Memory) Messages() []string {
	return m.messages
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

// ensure Memory satisfies the interfaces it is used through.
var (
	_ Host            = (*Memory)(nil)
	_ marks.Annotator = (*Memory)(nil)
)

// Keymap returns the host key binding table.
func (m *Memory) Keymap() Keymap {
	return memoryKeymap{m}
}

type memoryKeymap struct{ m *Memory }

func (k memoryKeymap) Lookup(key string) (Binding, bool) {
	b, ok := k.m.bindings[key]
	return b, ok
}

func (k memoryKeymap) Bind(key string, b Binding) error {
	if existing, ok := k.m.bindings[key]; ok && existing.Owner != b.Owner {
		return fmt.Errorf("bind %q for %s (owned by %s): %w", key, b.Owner, existing.Owner, ErrKeyBound)
	}
	k.m.bindings[key] = b
	return nil
}

func (k memoryKeymap) Unbind(key, owner string) error {
	existing, ok := k.m.bindings[key]
	if !ok {
		return nil
	}
	if existing.Owner != owner {
		return fmt.Errorf("unbind %q for %s (owned by %s): %w", key, owner, existing.Owner, ErrKeyBound)
	}
	delete(k.m.bindings, key)
	return nil
}

// Feed processes one key press: a pending sequence first, then user
// bindings, then the built-in defaults.
func (m *Memory) Feed(msg tea.KeyMsg) {
	if p := m.pending; p != nil {
		m.pending = nil
		m.pending = p(msg)
		return
	}
	if b, ok := m.bindings[msg.String()]; ok {
		m.pending = b.Handler(msg)
		return
	}
	m.pending = m.defaultKey(msg)
}

// Pending reports whether a multi-key sequence is waiting for input.
func (m *Memory) Pending() bool {
	return m.pending != nil
}

func (m *Memory) defaultKey(msg tea.KeyMsg) KeyHandler {
	v, ok := m.views[m.current]
	if !ok {
		return nil
	}
	if msg.String() == m.markKey {
		return m.defaultMarkSet
	}
	pos := v.cursor
	switch msg.String() {
	case "j", "down":
		pos.Line++
	case "k", "up":
		pos.Line--
	case "h", "left":
		pos.Column--
	case "l", "right":
		pos.Column++
	case "0":
		pos.Column = 0
	case "$":
		line, _ := m.Line(v.doc, pos.Line)
		pos.Column = max(len(line)-1, 0)
	default:
		return nil
	}
	_ = m.SetCursor(v.id, pos)
	return nil
}

func (m *Memory) defaultMarkSet(msg tea.KeyMsg) KeyHandler {
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return nil
	}
	v, ok := m.views[m.current]
	if !ok {
		return nil
	}
	_ = m.SetNativeMark(marks.MarkID(msg.Runes[0]), v.doc, v.cursor)
	return nil
}
