package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/marks"
	"github.com/entrhq/marker/pkg/session"
)

// keyMap holds the viewer's own bindings. Everything else is fed to the host.
type keyMap struct {
	Quit     key.Binding
	NextView key.Binding
	Jump     key.Binding
	Delete   key.Binding
	List     key.Binding
	Close    key.Binding
}

func newKeyMap(jumpKey string) keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		NextView: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next view"),
		),
		Jump: key.NewBinding(
			key.WithKeys(jumpKey),
			key.WithHelp(jumpKey+"{c}", "jump"),
		),
		Delete: key.NewBinding(
			key.WithKeys("d"),
			key.WithHelp("d{c}", "delete mark"),
		),
		List: key.NewBinding(
			key.WithKeys("L"),
			key.WithHelp("L", "list marks"),
		),
		Close: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "close document"),
		),
	}
}

type pendingOp int

const (
	pendingNone pendingOp = iota
	pendingJump
	pendingDelete
)

// viewer is the bubbletea model. It drives an in-memory host with the mark
// registry attached, the way a real editor would.
type viewer struct {
	host *editor.Memory
	sess *session.Session
	keys keyMap

	pending  pendingOp
	listing  bool
	status   string
	seenMsgs int

	width  int
	height int
}

func newViewer(host *editor.Memory, sess *session.Session, jumpKey string) *viewer {
	return &viewer{
		host: host,
		sess: sess,
		keys: newKeyMap(jumpKey),
	}
}

func (v *viewer) Init() tea.Cmd {
	return nil
}

func (v *viewer) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
		return v, nil
	case tea.KeyMsg:
		cmd := v.handleKey(msg)
		v.collectMessages()
		return v, cmd
	}
	return v, nil
}

func (v *viewer) handleKey(msg tea.KeyMsg) tea.Cmd {
	if v.pending != pendingNone {
		op := v.pending
		v.pending = pendingNone
		v.applyPending(op, msg)
		return nil
	}

	// A host sequence such as the mark name after the mark key comes first.
	if v.host.Pending() {
		v.host.Feed(msg)
		return nil
	}

	switch {
	case key.Matches(msg, v.keys.Quit):
		v.host.Shutdown()
		return tea.Quit
	case key.Matches(msg, v.keys.NextView):
		v.cycleView()
	case key.Matches(msg, v.keys.Jump):
		v.pending = pendingJump
	case key.Matches(msg, v.keys.Delete):
		v.pending = pendingDelete
	case key.Matches(msg, v.keys.List):
		v.listing = !v.listing
	case key.Matches(msg, v.keys.Close):
		if doc := v.host.CurrentDocument(); doc != 0 {
			name := v.host.DocumentName(doc)
			v.host.CloseDocument(doc)
			v.status = fmt.Sprintf("closed %s", name)
		}
	default:
		v.host.Feed(msg)
	}
	return nil
}

func (v *viewer) applyPending(op pendingOp, msg tea.KeyMsg) {
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return
	}
	mark := marks.MarkID(msg.Runes[0])
	switch op {
	case pendingJump:
		// Failures are reported through host.Notify.
		if t, err := v.sess.Jump(mark); err == nil {
			v.status = fmt.Sprintf("mark %s: %s:%d:%d", mark, v.host.DocumentName(t.Document), t.Line, t.Column)
		}
	case pendingDelete:
		if err := v.sess.Delete(mark); err != nil {
			v.status = err.Error()
			return
		}
		v.status = fmt.Sprintf("deleted mark %s", mark)
	}
}

func (v *viewer) cycleView() {
	views := v.host.Views()
	if len(views) < 2 {
		return
	}
	current := v.host.CurrentView()
	next := views[0]
	for i, id := range views {
		if id == current && i+1 < len(views) {
			next = views[i+1]
		}
	}
	if err := v.host.Focus(next); err != nil {
		v.status = err.Error()
	}
}

// collectMessages shows the newest host notification in the status bar.
func (v *viewer) collectMessages() {
	msgs := v.host.Messages()
	if len(msgs) > v.seenMsgs {
		v.status = msgs[len(msgs)-1]
		v.seenMsgs = len(msgs)
	}
}

func (v *viewer) View() string {
	var b strings.Builder
	b.WriteString(v.buildHeader())
	b.WriteString("\n")
	if v.listing {
		b.WriteString(v.buildList())
	} else {
		b.WriteString(v.buildDocument())
	}
	b.WriteString("\n")
	b.WriteString(v.buildStatus())
	b.WriteString("\n")
	b.WriteString(v.buildHelp())
	return b.String()
}

func (v *viewer) buildHeader() string {
	doc := v.host.CurrentDocument()
	if doc == 0 {
		return headerStyle.Render("marker: no open views")
	}
	views := v.host.Views()
	index := 0
	for i, id := range views {
		if id == v.host.CurrentView() {
			index = i + 1
		}
	}
	return headerStyle.Render(fmt.Sprintf("%s  [view %d/%d]", v.host.DocumentName(doc), index, len(views)))
}

func (v *viewer) buildDocument() string {
	doc := v.host.CurrentDocument()
	if doc == 0 {
		return ""
	}
	cursor, err := v.host.Cursor(v.host.CurrentView())
	if err != nil {
		return ""
	}

	gutter := make(map[int][]string)
	for _, a := range v.host.Annotations(doc) {
		gutter[a.Line] = append(gutter[a.Line], a.Mark.String())
	}

	first, last := v.visibleRange(cursor.Line, v.host.LineCount(doc))
	var rows []string
	for n := first; n <= last; n++ {
		text, _ := v.host.Line(doc, n)
		if n == cursor.Line {
			text = renderCursor(text, cursor.Column)
		} else {
			text = textStyle.Render(text)
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top,
			gutterStyle.Render(strings.Join(gutter[n], "")),
			lineNumberStyle.Render(fmt.Sprintf("%d", n)),
			text,
		))
	}
	return strings.Join(rows, "\n")
}

// visibleRange keeps the cursor line on screen.
func (v *viewer) visibleRange(cursor, count int) (int, int) {
	rows := v.height - 4
	if rows <= 0 || count <= rows {
		return 1, count
	}
	first := max(cursor-rows/2, 1)
	last := first + rows - 1
	if last > count {
		last = count
		first = count - rows + 1
	}
	return first, last
}

// renderCursor highlights the character at byte column col. A column inside
// a multi-byte character highlights the whole character.
func renderCursor(text string, col int) string {
	if col >= len(text) {
		return textStyle.Render(text) + cursorStyle.Render(" ")
	}
	for col > 0 && !utf8.RuneStart(text[col]) {
		col--
	}
	_, size := utf8.DecodeRuneInString(text[col:])
	return textStyle.Render(text[:col]) + cursorStyle.Render(text[col:col+size]) + textStyle.Render(text[col+size:])
}

func (v *viewer) buildList() string {
	entries := v.sess.List()
	if len(entries) == 0 {
		return listBoxStyle.Render("no marks")
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s  %-20s %4d:%-3d", e.Mark, v.host.DocumentName(e.Document), e.Line, e.Column))
	}
	return listBoxStyle.Render(strings.Join(lines, "\n"))
}

func (v *viewer) buildStatus() string {
	status := fmt.Sprintf("strategy: %s", v.sess.Strategy().Kind)
	switch v.pending {
	case pendingJump:
		status += "  jump to mark..."
	case pendingDelete:
		status += "  delete mark..."
	}
	if v.status != "" {
		status += "  " + messageStyle.Render(v.status)
	}
	return statusBarStyle.Render(status)
}

func (v *viewer) buildHelp() string {
	bindings := []key.Binding{v.keys.NextView, v.keys.Jump, v.keys.Delete, v.keys.List, v.keys.Close, v.keys.Quit}
	parts := []string{}
	if help := v.sess.Negotiator().Help(); help.Key != "" {
		parts = append(parts, help.Key+" "+help.Desc)
	}
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return helpStyle.Render("  " + strings.Join(parts, " • "))
}
