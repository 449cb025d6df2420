package observer

import (
	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/reply"
)

// NavigationResult is the payload for countdown completions.
type NavigationResult struct {
	Result string `json:"result"`
}

// CountdownHooks let the dispatcher maintain its login-handler side table
// while a countdown is in flight. Either hook may be nil.
type CountdownHooks struct {
	// AuthNeeded is called with the prompt's login handler when a navigation
	// stops at an authentication prompt, so a later SetAuth command can find
	// it.
	AuthNeeded func(handler app.LoginHandler)

	// AuthSupplied is called when credentials were supplied and the handler
	// for this tab is no longer valid.
	AuthSupplied func()
}

// Countdown completes after a requested number of start→stop navigation
// pairs on one tab. Per navigation it moves awaiting-start → awaiting-stop
// on a load-start or entry-committed event, and back on a load-stop that
// decrements the remaining count; an authentication prompt while awaiting
// the stop short-circuits the whole countdown with an auth-needed status.
type Countdown struct {
	base
	tab       app.Tab
	remaining int
	started   bool
	hooks     CountdownHooks
}

// NewCountdown registers a countdown for the given navigation count.
// remaining must be positive.
func NewCountdown(hub *eventhub.Hub, reg *Registry, tab app.Tab, remaining int, pending *reply.Pending, hooks CountdownHooks) *Countdown {
	c := &Countdown{tab: tab, remaining: remaining, hooks: hooks}
	c.init(hub, reg, pending, c)
	// Both start signals are needed: a navigation requiring authentication
	// never commits an entry until after the credentials round-trip, and a
	// wait attached mid-navigation can arrive after the start but before
	// the commit.
	c.subscribe(eventhub.KindNavEntryCommitted, tab)
	c.subscribe(eventhub.KindLoadStart, tab)
	c.subscribe(eventhub.KindLoadStop, tab)
	c.subscribe(eventhub.KindAuthNeeded, tab)
	c.subscribe(eventhub.KindAuthSupplied, tab)
	return c
}

func (c *Countdown) OnEvent(ev eventhub.Event) Outcome {
	switch ev.Kind {
	case eventhub.KindNavEntryCommitted, eventhub.KindLoadStart:
		c.started = true

	case eventhub.KindLoadStop:
		if c.started {
			c.started = false
			c.remaining--
			if c.remaining == 0 {
				c.complete(reply.StatusSuccess, NavigationResult{Result: "success"})
				return Completed
			}
		}

	case eventhub.KindAuthSupplied:
		// The login handler for this tab is no longer valid. Load start/stop
		// do not fire while authentication is ongoing, so treat this as the
		// navigation starting again rather than as progress.
		if c.hooks.AuthSupplied != nil {
			c.hooks.AuthSupplied()
		}
		c.started = true

	case eventhub.KindAuthNeeded:
		if c.started {
			if details, ok := ev.Payload.(app.AuthNeededDetails); ok && c.hooks.AuthNeeded != nil {
				c.hooks.AuthNeeded(details.Handler)
			}
			c.started = false
			c.complete(reply.StatusAuthNeeded, NavigationResult{Result: "auth_needed"})
			return Completed
		}
	}
	return Pending
}

func (c *Countdown) OnOwnerTornDown() {
	c.tornDown()
}
