// Package handle maps opaque integer handles to borrowed application
// resources and back. Handles are stable for a resource's lifetime, never
// reused while the resource is registered, and kind-tagged so a handle for
// one resource kind can never resolve as another.
package handle

import "sync"

// Handle identifies a resource to the remote driver. Zero always means
// "invalid/none" and is never returned by Add.
type Handle int32

// None is the invalid handle value.
const None Handle = 0

// Kind tags the resource namespace a handle belongs to.
type Kind uint8

const (
	KindBrowser Kind = iota + 1
	KindTab
	KindWindow
	KindControl
)

// String returns the kind name for logging.
func (k Kind) String() string {
	switch k {
	case KindBrowser:
		return "browser"
	case KindTab:
		return "tab"
	case KindWindow:
		return "window"
	case KindControl:
		return "control"
	default:
		return "unknown"
	}
}

type entry struct {
	kind     Kind
	resource any
}

// Tracker is the bidirectional handle registry. It never owns the resources
// it tracks; removal only invalidates the mapping. The tracker is owned by
// the dispatcher's goroutine but keeps its own lock so diagnostic surfaces
// can read counts safely.
type Tracker struct {
	mu      sync.Mutex
	next    Handle
	entries map[Handle]entry
	reverse map[any]Handle
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[Handle]entry),
		reverse: make(map[any]Handle),
	}
}

// Add registers a resource under the given kind and returns its handle.
// Registration is idempotent: adding a live resource again returns the
// handle it already has.
func (t *Tracker) Add(kind Kind, resource any) Handle {
	if resource == nil {
		return None
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.reverse[resource]; ok {
		return h
	}
	t.next++
	h := t.next
	t.entries[h] = entry{kind: kind, resource: resource}
	t.reverse[resource] = h
	return h
}

// Resolve returns the resource for a handle of the given kind. Unknown or
// stale handles, and handles registered under a different kind, return
// (nil, false).
func (t *Tracker) Resolve(kind Kind, h Handle) (any, bool) {
	if h == None {
		return nil, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok || e.kind != kind {
		return nil, false
	}
	return e.resource, true
}

// Contains reports whether h is live under the given kind.
func (t *Tracker) Contains(kind Kind, h Handle) bool {
	_, ok := t.Resolve(kind, h)
	return ok
}

// HandleFor returns the live handle for a resource, or None.
func (t *Tracker) HandleFor(resource any) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reverse[resource]
}

// Remove invalidates the mapping for a handle in both directions.
func (t *Tracker) Remove(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[h]
	if !ok {
		return
	}
	delete(t.entries, h)
	delete(t.reverse, e.resource)
}

// RemoveResource invalidates the mapping for a resource in both directions.
// Called when the application tears the resource down so later lookups fail
// cleanly instead of touching a dangling reference.
func (t *Tracker) RemoveResource(resource any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.reverse[resource]
	if !ok {
		return
	}
	delete(t.entries, h)
	delete(t.reverse, resource)
}

// Len returns the number of live handles.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
