// Package shim selects how mark changes reach the registry.
//
// At startup the host is tried once, in order, for a structured "mark
// changed" event, then for a scripted-command hook. When neither exists an
// Interceptor takes over the mark-creation key: it performs the native mark
// set exactly as the default binding would and then reports the result.
package shim

import (
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/key"

	"github.com/entrhq/marker/pkg/editor"
	"github.com/entrhq/marker/pkg/logging"
)

// Owner is the keymap owner name used by the interceptor.
const Owner = "marker-shim"

// Kind tags the negotiated strategy.
type Kind int

const (
	// KindNone means nothing delivers mark changes: the key was taken by the user.
	KindNone Kind = iota
	KindNativeEvent
	KindLegacyCommand
	KindInterceptor
)

func (k Kind) String() string {
	switch k {
	case KindNativeEvent:
		return "native-event"
	case KindLegacyCommand:
		return "legacy-command"
	case KindInterceptor:
		return "interceptor"
	default:
		return "none"
	}
}

// Strategy is the outcome of negotiation. Interceptor is set only for
// KindInterceptor.
type Strategy struct {
	Kind        Kind
	Interceptor *Interceptor
}

// ConflictError reports that the mark-creation key is bound by someone else.
type ConflictError struct {
	Key   string
	Owner string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("key %q is already bound by %s; marks set with it will not be tracked", e.Key, e.Owner)
}

// Options configures Negotiate.
type Options struct {
	Logger *logging.Logger
}

// Negotiator owns the strategy chosen for the lifetime of a session.
type Negotiator struct {
	host    editor.Host
	handler editor.Handler
	key     string
	logger  *logging.Logger

	strategy      Strategy
	conflict      *ConflictError
	uninstallOnce sync.Once
}

// Negotiate tries host and installs the first strategy that works. handler
// receives every mark change, whichever strategy delivers it. Failed attempts
// only steer the fallback; they are never returned.
//
// The interceptor watches the host's own mark-set key, so the keys the
// user already knows keep their meaning.
func Negotiate(host editor.Host, handler editor.Handler, opts Options) *Negotiator {
	n := &Negotiator{
		host:    host,
		handler: handler,
		key:     host.MarkKey(),
		logger:  opts.Logger,
	}
	if n.key == "" {
		n.key = editor.DefaultMarkKey
	}
	if n.logger == nil {
		n.logger = logging.Nop()
	}

	switch {
	case n.tryNative():
		n.strategy = Strategy{Kind: KindNativeEvent}
	case n.tryLegacy():
		n.strategy = Strategy{Kind: KindLegacyCommand}
	default:
		n.strategy = n.install()
	}
	n.logger.Infof("mark change strategy: %s", n.strategy.Kind)
	return n
}

func (n *Negotiator) tryNative() bool {
	err := n.host.Subscribe(editor.EventMarkChanged, n.handler)
	if err != nil {
		n.logger.Debugf("native mark event unavailable: %v", err)
		return false
	}
	return true
}

func (n *Negotiator) tryLegacy() bool {
	err := n.host.SubscribeLegacy(editor.LegacyMarkSet, n.handler)
	if err != nil {
		n.logger.Debugf("legacy mark hook unavailable: %v", err)
		return false
	}
	return true
}

func (n *Negotiator) install() Strategy {
	km := n.host.Keymap()
	if b, bound := km.Lookup(n.key); bound && b.Owner != Owner {
		n.conflict = &ConflictError{Key: n.key, Owner: b.Owner}
		n.logger.Warnf("%v", n.conflict)
		n.host.Notify(n.conflict.Error())
		return Strategy{Kind: KindNone}
	}

	i := newInterceptor(n.host, n.handler, n.key, n.logger)
	if err := km.Bind(n.key, editor.Binding{Owner: Owner, Handler: i.trigger}); err != nil {
		// Lost a race with another binder between Lookup and Bind.
		var owner string
		if b, ok := km.Lookup(n.key); ok {
			owner = b.Owner
		}
		n.conflict = &ConflictError{Key: n.key, Owner: owner}
		n.logger.Warnf("install interceptor: %v", err)
		n.host.Notify(n.conflict.Error())
		return Strategy{Kind: KindNone}
	}
	i.installed = true
	return Strategy{Kind: KindInterceptor, Interceptor: i}
}

// Strategy returns the active strategy.
func (n *Negotiator) Strategy() Strategy {
	return n.strategy
}

// Conflict returns the install conflict, if any.
func (n *Negotiator) Conflict() *ConflictError {
	return n.conflict
}

// Retry tries the native event again. When it now succeeds, an installed
// interceptor removes itself, exactly once. A legacy hook is kept: it
// already delivers every change.
func (n *Negotiator) Retry() Strategy {
	switch n.strategy.Kind {
	case KindNativeEvent, KindLegacyCommand:
		return n.strategy
	}
	if !n.tryNative() {
		return n.strategy
	}

	if i := n.strategy.Interceptor; i != nil {
		n.uninstallOnce.Do(func() {
			if err := i.Uninstall(); err != nil {
				n.logger.Warnf("uninstall interceptor: %v", err)
			}
		})
	}
	n.strategy = Strategy{Kind: KindNativeEvent}
	n.logger.Infof("mark change strategy upgraded: %s", n.strategy.Kind)
	return n.strategy
}

// Close removes an installed interceptor.
func (n *Negotiator) Close() error {
	var err error
	if i := n.strategy.Interceptor; i != nil {
		n.uninstallOnce.Do(func() {
			err = i.Uninstall()
		})
	}
	return err
}

// Help returns the key binding help for the interceptor key.
func (n *Negotiator) Help() key.Help {
	return triggerBinding(n.key).Help()
}

// ErrNotInstalled is returned by Uninstall on an interceptor that is not bound.
var ErrNotInstalled = errors.New("shim: interceptor not installed")
