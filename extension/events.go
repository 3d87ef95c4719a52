package extension

import (
	"sync"

	"github.com/google/uuid"
)

// Event names exposed by the registry.
type Event string

const (
	EventDomainRegistered      Event = "domainRegistered"
	EventDomainUnregistered    Event = "domainUnregistered"
	EventExtensionRegistered   Event = "extensionRegistered"
	EventExtensionUnregistered Event = "extensionUnregistered"
	EventExtensionLoaded       Event = "extensionLoaded"
	EventExtensionMounted      Event = "extensionMounted"
	EventExtensionUnmounted    Event = "extensionUnmounted"
)

// EventData identifies the entity an event concerns.
type EventData struct {
	DomainID    string
	ExtensionID string
	EntryID     string
}

// EventListener receives registry events it subscribed to.
type EventListener func(data EventData)

// Emitter is the in-process event registry. Listeners are keyed by a
// subscription token so callers can unsubscribe the exact listener they
// added.
type Emitter struct {
	mu        sync.RWMutex
	listeners map[Event]map[string]EventListener
}

// NewEmitter creates an empty emitter
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[Event]map[string]EventListener)}
}

// Subscribe registers a listener for the named event and returns its
// subscription token.
func (e *Emitter) Subscribe(event Event, fn EventListener) string {
	id := uuid.NewString()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listeners[event] == nil {
		e.listeners[event] = make(map[string]EventListener)
	}
	e.listeners[event][id] = fn
	return id
}

// Unsubscribe removes the listener registered under the token. Unknown
// tokens are a no-op.
func (e *Emitter) Unsubscribe(event Event, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if subs := e.listeners[event]; subs != nil {
		delete(subs, id)
		if len(subs) == 0 {
			delete(e.listeners, event)
		}
	}
}

// Emit delivers the event to every listener synchronously. Listener
// order is unspecified.
func (e *Emitter) Emit(event Event, data EventData) {
	e.mu.RLock()
	snapshot := make([]EventListener, 0, len(e.listeners[event]))
	for _, fn := range e.listeners[event] {
		snapshot = append(snapshot, fn)
	}
	e.mu.RUnlock()

	for _, fn := range snapshot {
		fn(data)
	}
}

// Clear drops every listener. Used on registry disposal.
func (e *Emitter) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[Event]map[string]EventListener)
}
