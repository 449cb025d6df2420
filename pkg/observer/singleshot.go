package observer

import (
	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/reply"
)

// SingleShot completes on the first event matching its filter. match may be
// nil to accept every event of the subscribed kind; result produces the
// reply status and payload from the completing event.
type SingleShot struct {
	base
	match  func(ev eventhub.Event) bool
	result func(ev eventhub.Event) (reply.Status, any)
}

// NewSingleShot registers a single-shot wait for one event kind, optionally
// scoped to source.
func NewSingleShot(hub *eventhub.Hub, reg *Registry, kind eventhub.Kind, source any, match func(ev eventhub.Event) bool, result func(ev eventhub.Event) (reply.Status, any), pending *reply.Pending) *SingleShot {
	s := &SingleShot{match: match, result: result}
	s.init(hub, reg, pending, s)
	s.subscribe(kind, source)
	return s
}

func (s *SingleShot) OnEvent(ev eventhub.Event) Outcome {
	if s.match != nil && !s.match(ev) {
		return Pending
	}
	status, payload := reply.StatusSuccess, any(nil)
	if s.result != nil {
		status, payload = s.result(ev)
	}
	s.complete(status, payload)
	return Completed
}

func (s *SingleShot) OnOwnerTornDown() {
	s.tornDown()
}

// TabAppended waits for a tab to be parented to one specific browser. The
// parenting event source is global, so events for other browsers' tabs are
// filtered out by parent identity. On match the pending reply is handed to
// next, which typically chains into a navigation countdown for the new
// tab's initial load.
type TabAppended struct {
	base
	parent app.Browser
	next   func(tab app.Tab, pending *reply.Pending)
}

// NewTabAppended registers a wait for the next tab parented to parent.
func NewTabAppended(hub *eventhub.Hub, reg *Registry, parent app.Browser, pending *reply.Pending, next func(tab app.Tab, pending *reply.Pending)) *TabAppended {
	t := &TabAppended{parent: parent, next: next}
	t.init(hub, reg, pending, t)
	t.subscribe(eventhub.KindTabParented, nil)
	return t
}

func (t *TabAppended) OnEvent(ev eventhub.Event) Outcome {
	tab, ok := ev.Source.(app.Tab)
	if !ok {
		return Pending
	}
	if t.parent.IndexOfTab(tab) < 0 {
		// Belongs to some other browser.
		return Pending
	}
	pending := t.handoff()
	t.next(tab, pending)
	return Completed
}

func (t *TabAppended) OnOwnerTornDown() {
	t.tornDown()
}

// PrintResult is the payload for print-job completions.
type PrintResult struct {
	Success bool `json:"success"`
}

// PrintJob completes when a print job reaches a terminal state; page-level
// progress events are ignored.
type PrintJob struct {
	base
}

// NewPrintJob registers a wait for the tab's print job to finish.
func NewPrintJob(hub *eventhub.Hub, reg *Registry, tab app.Tab, pending *reply.Pending) *PrintJob {
	p := &PrintJob{}
	p.init(hub, reg, pending, p)
	p.subscribe(eventhub.KindPrintJob, tab)
	return p
}

func (p *PrintJob) OnEvent(ev eventhub.Event) Outcome {
	details, ok := ev.Payload.(app.PrintJobDetails)
	if !ok {
		return Pending
	}
	switch details.Status {
	case app.PrintJobDone:
		p.complete(reply.StatusSuccess, PrintResult{Success: true})
		return Completed
	case app.PrintJobFailed, app.PrintJobCanceled:
		p.complete(reply.StatusSuccess, PrintResult{Success: false})
		return Completed
	}
	return Pending
}

func (p *PrintJob) OnOwnerTornDown() {
	p.tornDown()
}

// TabRestored completes once a session-restored tab has finished loading:
// no reload needed, no pending entry, not loading. The condition is
// re-evaluated on every load-stop for the tab.
type TabRestored struct {
	base
	tab app.Tab
}

// NewTabRestored registers a wait for the tab's restore to settle. Callers
// should check the condition first and reply immediately when it already
// holds.
func NewTabRestored(hub *eventhub.Hub, reg *Registry, tab app.Tab, pending *reply.Pending) *TabRestored {
	t := &TabRestored{tab: tab}
	t.init(hub, reg, pending, t)
	t.subscribe(eventhub.KindLoadStop, tab)
	return t
}

// RestoreSettled reports whether tab has finished restoring.
func RestoreSettled(tab app.Tab) bool {
	return !tab.NeedsReload() && !tab.HasPendingEntry() && !tab.IsLoading()
}

func (t *TabRestored) OnEvent(ev eventhub.Event) Outcome {
	if !RestoreSettled(t.tab) {
		return Pending
	}
	t.complete(reply.StatusSuccess, nil)
	return Completed
}

func (t *TabRestored) OnOwnerTornDown() {
	t.tornDown()
}
