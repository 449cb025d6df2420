// Package eventhub is the notification surface the surrounding application
// pushes internal events through. Condition observers subscribe by event
// kind, optionally scoped to one source object, and are delivered events
// synchronously on the publisher's goroutine. In the bridge that goroutine
// is always the session's owning loop, so subscribers need no locking of
// their own state.
package eventhub

import (
	"errors"
	"sync"
)

// ErrClosed is returned when subscribing on a closed hub.
var ErrClosed = errors.New("event hub closed")

// Kind names a class of internal event.
type Kind string

const (
	// Navigation lifecycle.
	KindLoadStart         Kind = "load.start"
	KindLoadStop          Kind = "load.stop"
	KindNavEntryCommitted Kind = "nav.entry_committed"
	KindAuthNeeded        Kind = "auth.needed"
	KindAuthSupplied      Kind = "auth.supplied"

	// Tab strip changes. TabClosing fires when close begins, TabClosed once
	// the tab is gone.
	KindTabParented Kind = "tab.parented"
	KindTabClosing  Kind = "tab.closing"
	KindTabClosed   Kind = "tab.closed"

	// Top-level browser lifecycle.
	KindBrowserOpened Kind = "browser.opened"
	KindBrowserClosed Kind = "browser.closed"

	// Modal dialogs.
	KindDialogShown Kind = "dialog.shown"

	// Asynchronous command progress.
	KindFindResult Kind = "find.result"
	KindPrintJob   Kind = "print.job"
)

// Event is one delivered notification. Source identifies the emitting
// object (a tab, browser, or nil for process-wide events); Payload shape is
// kind-specific.
type Event struct {
	Kind    Kind
	Source  any
	Payload any
}

// Token identifies one subscription for Unsubscribe.
type Token uint64

// Handler receives matching events.
type Handler func(Event)

type subscription struct {
	kind    Kind
	source  any // nil matches all sources
	handler Handler
}

// Hub fans events out to subscribers. Delivery is synchronous and in
// subscription order; a handler that unsubscribes other tokens during
// delivery suppresses their pending invocations, which is what lets a
// completed observer drop its remaining subscriptions without seeing a
// second event.
type Hub struct {
	mu     sync.Mutex
	next   Token
	subs   map[Token]*subscription
	order  []Token
	taps   []Handler
	closed bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[Token]*subscription)}
}

// Subscribe registers a handler for events of the given kind. A nil source
// matches events from any source; otherwise only events whose Source is
// identical to source are delivered.
func (h *Hub) Subscribe(kind Kind, source any, handler Handler) Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0
	}
	h.next++
	tok := h.next
	h.subs[tok] = &subscription{kind: kind, source: source, handler: handler}
	h.order = append(h.order, tok)
	return tok
}

// Unsubscribe removes a subscription. Unknown tokens are ignored.
func (h *Hub) Unsubscribe(tok Token) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[tok]; !ok {
		return
	}
	delete(h.subs, tok)
	for i, t := range h.order {
		if t == tok {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}

// Tap registers a handler that observes every published event regardless of
// kind or source. Used by relay adapters that mirror the event stream.
func (h *Hub) Tap(handler Handler) {
	h.mu.Lock()
	h.taps = append(h.taps, handler)
	h.mu.Unlock()
}

// Publish delivers ev synchronously to every matching subscriber. Tokens
// unsubscribed by earlier handlers in the same delivery are skipped.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	pending := make([]Token, len(h.order))
	copy(pending, h.order)
	taps := h.taps
	h.mu.Unlock()

	for _, tap := range taps {
		tap(ev)
	}

	for _, tok := range pending {
		h.mu.Lock()
		sub, ok := h.subs[tok]
		h.mu.Unlock()
		if !ok {
			continue
		}
		if sub.kind != ev.Kind {
			continue
		}
		if sub.source != nil && sub.source != ev.Source {
			continue
		}
		sub.handler(ev)
	}
}

// Close drops all subscriptions. Further subscribes return token 0 and
// publishes are discarded.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.subs = make(map[Token]*subscription)
	h.order = nil
	h.taps = nil
}

// Len returns the live subscription count (diagnostics and leak tests).
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
