// Package run implements the audit run orchestrator: discovery composition,
// bounded audit scheduling, observable state and on-disk persistence.
package run

import (
	"sort"
	"sync"
)

// EventKind selects one of the four run event streams.
type EventKind string

// Event kinds emitted by a Runner. completed and error are mutually
// exclusive and fire at most once per run.
const (
	EventStatus    EventKind = "status"
	EventProgress  EventKind = "progress"
	EventCompleted EventKind = "completed"
	EventError     EventKind = "error"
)

// Handler receives an event payload: audit.RunStatus for status events, an
// audit.RunMeta snapshot for progress, an audit.RunSummary for completed,
// and an error for error events. Payloads are defensive copies; handlers
// may retain them.
type Handler func(payload any)

// Events is an explicit observer set with per-kind subscriber lists.
// It is safe for concurrent use. Handlers run synchronously on the
// emitting goroutine, in subscription order, without the internal lock
// held, so a handler may call Off from inside itself.
type Events struct {
	mu     sync.Mutex
	nextID int
	subs   map[EventKind]map[int]Handler
}

// NewEvents builds an empty observer set.
func NewEvents() *Events {
	return &Events{subs: make(map[EventKind]map[int]Handler)}
}

// On registers h for kind and returns a subscription id for Off.
func (e *Events) On(kind EventKind, h Handler) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	if e.subs[kind] == nil {
		e.subs[kind] = make(map[int]Handler)
	}
	e.subs[kind][e.nextID] = h
	return e.nextID
}

// Off removes a subscription. Unknown ids are ignored.
func (e *Events) Off(kind EventKind, id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.subs[kind], id)
}

// emit calls every handler registered for kind.
func (e *Events) emit(kind EventKind, payload any) {
	e.mu.Lock()
	ids := make([]int, 0, len(e.subs[kind]))
	for id := range e.subs[kind] {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, e.subs[kind][id])
	}
	e.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}
