// Package observer implements the event-driven state machines that complete
// delayed automation commands. Each observer holds one pending reply,
// subscribes to the event hub, and resolves the reply the moment its
// terminal condition is reached; if its owner is torn down first, the reply
// is resolved with an abandonment status instead. Either way the reply is
// sent exactly once.
//
// Observers are owned by the Registry, never by themselves: completion
// removes-and-drops rather than self-deleting, so a stray second event can
// never reach a completed observer.
package observer

import (
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/reply"
)

// Outcome reports whether an event completed the observer.
type Outcome int

const (
	Pending Outcome = iota
	Completed
)

// Observer is one condition state machine.
type Observer interface {
	// OnEvent applies one hub event. Called only on the owning goroutine.
	OnEvent(ev eventhub.Event) Outcome

	// OnOwnerTornDown resolves the pending reply with an error status if it
	// has not been sent, then releases subscriptions. Called when the
	// session or the correlated resource is being destroyed.
	OnOwnerTornDown()
}

// Registry is the outstanding-call set. It exists for teardown draining;
// steady-state completion never consults it.
type Registry struct {
	set    map[Observer]struct{}
	onSize func(n int)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{set: make(map[Observer]struct{})}
}

// SetSizeListener installs a callback invoked with the registry size after
// every add/remove. Used for the pending-observers gauge.
func (r *Registry) SetSizeListener(fn func(n int)) {
	r.onSize = fn
}

// Len returns the number of outstanding observers.
func (r *Registry) Len() int {
	return len(r.set)
}

// DrainAll forces every outstanding observer through OnOwnerTornDown.
// After it returns no pending reply is left unsent.
func (r *Registry) DrainAll() {
	pending := make([]Observer, 0, len(r.set))
	for o := range r.set {
		pending = append(pending, o)
	}
	for _, o := range pending {
		o.OnOwnerTornDown()
	}
}

func (r *Registry) track(o Observer) {
	r.set[o] = struct{}{}
	if r.onSize != nil {
		r.onSize(len(r.set))
	}
}

func (r *Registry) untrack(o Observer) {
	delete(r.set, o)
	if r.onSize != nil {
		r.onSize(len(r.set))
	}
}

// base carries the plumbing shared by all observer variants: the pending
// reply, the hub subscriptions, and registry membership.
type base struct {
	hub     *eventhub.Hub
	reg     *Registry
	pending *reply.Pending
	tokens  []eventhub.Token
	self    Observer
}

func (b *base) init(hub *eventhub.Hub, reg *Registry, pending *reply.Pending, self Observer) {
	b.hub = hub
	b.reg = reg
	b.pending = pending
	b.self = self
	reg.track(self)
}

func (b *base) subscribe(kind eventhub.Kind, source any) {
	tok := b.hub.Subscribe(kind, source, func(ev eventhub.Event) {
		b.self.OnEvent(ev)
	})
	b.tokens = append(b.tokens, tok)
}

// complete resolves the reply and retires the observer.
func (b *base) complete(status reply.Status, payload any) {
	if !b.pending.Resolved() {
		b.pending.Resolve(status, payload)
	}
	b.release()
}

// handoff retires the observer without resolving, returning the pending
// reply so a successor observer can carry it. Used when one condition
// chains into another (e.g. tab appended, then its first navigation).
func (b *base) handoff() *reply.Pending {
	p := b.pending
	b.pending = nil
	b.release()
	return p
}

// Abort resolves the reply with the given status and retires the observer.
// For registrants whose triggering action failed after registration.
func (b *base) Abort(status reply.Status, payload any) {
	b.complete(status, payload)
}

func (b *base) release() {
	for _, tok := range b.tokens {
		b.hub.Unsubscribe(tok)
	}
	b.tokens = nil
	b.reg.untrack(b.self)
}

// tornDown is the shared OnOwnerTornDown path.
func (b *base) tornDown() {
	if !b.pending.Resolved() {
		b.pending.Resolve(reply.StatusAsyncAbandoned, nil)
	}
	b.release()
}
