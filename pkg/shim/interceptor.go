package shim

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/logging"
	"github.com/entrhq/marker/pkg/marks"
)

func triggerBinding(k string) key.Binding {
	return key.NewBinding(
		key.WithKeys(k),
		key.WithHelp(k+"{a-zA-Z}", "set mark"),
	)
}

// Interceptor owns the mark-creation key when the host cannot report mark
// changes. It reads the mark name that follows the key, performs the
// host's native mark set and forwards the resulting position.
type Interceptor struct {
	host      editor.Host
	handler   editor.Handler
	binding   key.Binding
	key       string
	logger    *logging.Logger
	installed bool
}

func newInterceptor(host editor.Host, handler editor.Handler, k string, logger *logging.Logger) *Interceptor {
	return &Interceptor{
		host:    host,
		handler: handler,
		binding: triggerBinding(k),
		key:     k,
		logger:  logger,
	}
}

// Installed reports whether the key is currently bound.
func (i *Interceptor) Installed() bool {
	return i.installed
}

func (i *Interceptor) trigger(msg tea.KeyMsg) editor.KeyHandler {
	if !key.Matches(msg, i.binding) {
		return nil
	}
	return i.argument
}

// argument handles the key after the trigger. Anything other than a single
// character cancels, as the default binding does.
func (i *Interceptor) argument(msg tea.KeyMsg) editor.KeyHandler {
	if msg.Type != tea.KeyRunes || len(msg.Runes) != 1 {
		return nil
	}
	mark := marks.MarkID(msg.Runes[0])

	view := i.host.CurrentView()
	doc := i.host.CurrentDocument()
	pos, err := i.host.Cursor(view)
	if err != nil {
		i.logger.Debugf("mark %s: no cursor: %v", mark, err)
		return nil
	}
	if err := i.host.SetNativeMark(mark, doc, pos); err != nil {
		i.logger.Debugf("mark %s: native set failed: %v", mark, err)
		return nil
	}

	nm, ok := i.host.NativeMark(mark, doc)
	if !ok {
		return nil
	}
	i.handler(editor.Event{
		Type:     editor.EventMarkChanged,
		Document: nm.Document,
		Mark:     mark,
		Line:     nm.Line,
		Column:   nm.Column,
	})
	return nil
}

// Uninstall removes the key binding, leaving the keymap as it was before
// installation.
func (i *Interceptor) Uninstall() error {
	if !i.installed {
		return ErrNotInstalled
	}
	if err := i.host.Keymap().Unbind(i.key, Owner); err != nil {
		return err
	}
	i.installed = false
	return nil
}
