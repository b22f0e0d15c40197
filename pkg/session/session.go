// Package session wires the mark store, lifecycle synchronizer, jump
// resolver and capability shim to one host editor.
package session

import (
	"errors"
	"fmt"

	"github.com/entrhq/marker/pkg/config"
	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/jump"
	"github.com/entrhq/marker/pkg/lifecycle"
	"github.com/entrhq/marker/pkg/logging"
	"github.com/entrhq/marker/pkg/marks"
	"github.com/entrhq/marker/pkg/shim"
)

// ErrMarkKeyMismatch is returned by Open when the configured mark key is not
// the key the host sets marks with.
var ErrMarkKeyMismatch = errors.New("configured mark key differs from the host's")

// Session is the mark registry attached to a running host.
type Session struct {
	host       editor.Host
	store      *marks.Store
	file       *marks.File
	sync       *lifecycle.Synchronizer
	resolver   *jump.Resolver
	negotiator *shim.Negotiator
	logger     *logging.Logger

	closed bool
}

// Open attaches a registry to host. When persistence is enabled the marks
// file is loaded first; a damaged file is logged and the session starts
// empty. If host implements marks.Annotator it receives gutter annotations.
func Open(host editor.Host, cfg *config.Config, logger *logging.Logger) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	if hostKey := host.MarkKey(); cfg.MarkKey != hostKey {
		return nil, fmt.Errorf("mark_key %q, host marks with %q: %w", cfg.MarkKey, hostKey, ErrMarkKeyMismatch)
	}

	opts := []marks.Option{marks.WithLogger(logger.With("store"))}
	if a, ok := host.(marks.Annotator); ok {
		opts = append(opts, marks.WithAnnotator(a))
	}
	s := &Session{
		host:   host,
		store:  marks.NewStore(opts...),
		logger: logger,
	}

	if cfg.PersistEnabled() {
		path, err := cfg.ResolvedDataPath()
		if err != nil {
			return nil, err
		}
		if s.file, err = marks.NewFile(path); err != nil {
			return nil, err
		}
		if err := s.file.Load(s.store); err != nil {
			var perr *marks.PersistenceError
			if !errors.As(err, &perr) {
				return nil, err
			}
			logger.Warnf("starting with no marks: %v", err)
		} else {
			logger.Infof("loaded %d marks from %s", s.store.Len(), s.file.Path())
		}
	}

	var err error
	s.sync, err = lifecycle.NewSynchronizer(s.store, host, cfg.Exclude, logger.With("lifecycle"))
	if err != nil {
		return nil, err
	}
	if err := s.sync.Attach(host); err != nil {
		return nil, err
	}
	s.resolver = jump.NewResolver(s.store, host, logger.With("jump"))
	s.negotiator = shim.Negotiate(host, s.sync.Handle, shim.Options{Logger: logger.With("shim")})

	if err := host.Subscribe(editor.EventCapabilitiesChanged, func(editor.Event) { s.negotiator.Retry() }); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", editor.EventCapabilitiesChanged, err)
	}
	if err := host.Subscribe(editor.EventShutdown, func(editor.Event) {
		if err := s.Close(); err != nil {
			logger.Errorf("shutdown: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", editor.EventShutdown, err)
	}

	// Documents loaded before the session started never sent an open event.
	seen := make(map[marks.DocumentID]bool)
	for _, e := range s.store.List() {
		if !seen[e.Document] && host.Loaded(e.Document) {
			seen[e.Document] = true
			s.store.Reannotate(e.Document)
		}
	}
	return s, nil
}

// Store returns the underlying mark store.
func (s *Session) Store() *marks.Store {
	return s.store
}

// Strategy returns the negotiated mark-change strategy.
func (s *Session) Strategy() shim.Strategy {
	return s.negotiator.Strategy()
}

// Negotiator returns the capability negotiator.
func (s *Session) Negotiator() *shim.Negotiator {
	return s.negotiator
}

// List returns every stored mark.
func (s *Session) List() []marks.Entry {
	return s.store.List()
}

// Jump moves the cursor to mark. Failures are also reported to the user
// through the host.
func (s *Session) Jump(mark marks.MarkID) (jump.Target, error) {
	t, err := s.resolver.Jump(mark)
	if err != nil {
		var unresolvable *jump.UnresolvableError
		switch {
		case errors.As(err, &unresolvable):
			s.host.Notify(unresolvable.Error())
		case errors.Is(err, jump.ErrNotFound):
			s.host.Notify(fmt.Sprintf("mark %s not set", mark))
		default:
			s.host.Notify(err.Error())
		}
		return jump.Target{}, err
	}
	return t, nil
}

// Delete removes mark. Scoped marks are removed from the current document
// only; global marks wherever they are.
func (s *Session) Delete(mark marks.MarkID) error {
	return s.DeleteIn(mark, s.host.CurrentDocument())
}

// DeleteIn removes mark from doc, both from the host's native table and
// from the store.
func (s *Session) DeleteIn(mark marks.MarkID, doc marks.DocumentID) error {
	if !mark.Valid() {
		return fmt.Errorf("delete mark %q: %w", rune(mark), editor.ErrBadMark)
	}
	if err := s.host.ClearNativeMark(mark, doc); err != nil {
		return fmt.Errorf("delete mark %s: %w", mark, err)
	}
	// Without a mark-change strategy the store hears nothing from the host.
	s.store.Remove(mark, doc)
	return nil
}

// ClearOpen deletes every mark whose document is currently loaded and
// returns how many were removed.
func (s *Session) ClearOpen() (int, error) {
	n := 0
	for _, e := range s.store.List() {
		if !s.host.Loaded(e.Document) {
			continue
		}
		if err := s.DeleteIn(e.Mark, e.Document); err != nil {
			return n, err
		}
		n++
	}
	s.logger.Infof("cleared %d marks in open documents", n)
	return n, nil
}

// Save writes the store to the marks file. It is a no-op when persistence
// is disabled.
func (s *Session) Save() error {
	if s.file == nil {
		return nil
	}
	if err := s.file.Save(s.store); err != nil {
		s.logger.Errorf("%v", err)
		return err
	}
	return nil
}

// Close saves the store and removes the interceptor. Later calls do nothing.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	saveErr := s.Save()
	if err := s.negotiator.Close(); err != nil {
		s.logger.Warnf("uninstall interceptor: %v", err)
	}
	return saveErr
}
