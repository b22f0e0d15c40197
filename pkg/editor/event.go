package editor

import "github.com/entrhq/marker/pkg/marks"

// EventType defines the kind of notification emitted by the host.
type EventType string

const (
	EventDocumentOpened      EventType = "document_opened"      // EventDocumentOpened indicates a document was loaded into memory.
	EventDocumentVisible     EventType = "document_visible"     // EventDocumentVisible indicates a document became visible in a view.
	EventDocumentUnloaded    EventType = "document_unloaded"    // EventDocumentUnloaded indicates a document left memory but may come back.
	EventDocumentClosed      EventType = "document_closed"      // EventDocumentClosed indicates a document was deleted from the document list.
	EventDocumentWiped       EventType = "document_wiped"       // EventDocumentWiped indicates a document was wiped entirely.
	EventMarkChanged         EventType = "mark_changed"         // EventMarkChanged indicates a native mark was set or cleared (Line 0).
	EventCapabilitiesChanged EventType = "capabilities_changed" // EventCapabilitiesChanged indicates the host API surface changed.
	EventShutdown            EventType = "shutdown"             // EventShutdown indicates the host is exiting.
)

// legacyPrefix namespaces events delivered through scripted-command hooks.
const legacyPrefix = "legacy:"

// LegacyEventType returns the event type a scripted-command hook is delivered under.
func LegacyEventType(command string) EventType {
	return EventType(legacyPrefix + command)
}

// Event is a host notification.
type Event struct {
	Type     EventType
	Document marks.DocumentID

	// Mark, Line and Column are set for mark events.
	Mark   marks.MarkID
	Line   int
	Column int
}

// Handler processes one event.
type Handler func(Event)

// Dispatcher delivers events to handlers one at a time, in arrival order.
// Events emitted while a handler runs are queued behind the current one
// instead of being delivered re-entrantly.
type Dispatcher struct {
	handlers map[EventType][]Handler
	queue    []Event
	draining bool
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[EventType][]Handler)}
}

// On registers a handler for an event type.
func (d *Dispatcher) On(t EventType, h Handler) {
	d.handlers[t] = append(d.handlers[t], h)
}

// Has reports whether any handler is registered for t.
func (d *Dispatcher) Has(t EventType) bool {
	return len(d.handlers[t]) > 0
}

// Emit queues e and, unless a drain is already running, processes the queue.
func (d *Dispatcher) Emit(e Event) {
	d.queue = append(d.queue, e)
	if d.draining {
		return
	}
	d.draining = true
	defer func() { d.draining = false }()

	for len(d.queue) > 0 {
		next := d.queue[0]
		d.queue = d.queue[1:]
		for _, h := range d.handlers[next.Type] {
			h(next)
		}
	}
}
