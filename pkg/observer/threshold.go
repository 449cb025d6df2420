package observer

import (
	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/reply"
)

// WindowCountResult is the payload for threshold completions.
type WindowCountResult struct {
	Count int `json:"count"`
}

// WindowCountThreshold completes when the live top-level browser count
// reaches a target. The count is recomputed from the shell on every open or
// close event rather than tracked incrementally.
type WindowCountThreshold struct {
	base
	shell  app.Shell
	target int
}

// NewWindowCountThreshold registers a threshold wait for target browsers.
func NewWindowCountThreshold(hub *eventhub.Hub, reg *Registry, shell app.Shell, target int, pending *reply.Pending) *WindowCountThreshold {
	w := &WindowCountThreshold{shell: shell, target: target}
	w.init(hub, reg, pending, w)
	w.subscribe(eventhub.KindBrowserOpened, nil)
	w.subscribe(eventhub.KindBrowserClosed, nil)
	return w
}

func (w *WindowCountThreshold) OnEvent(ev eventhub.Event) Outcome {
	count := w.shell.BrowserCount()
	if ev.Kind == eventhub.KindBrowserClosed {
		// The closed event is delivered before the browser leaves the live
		// set, so the real count is one less than the shell reports.
		count--
	}
	if count == w.target {
		w.complete(reply.StatusSuccess, WindowCountResult{Count: count})
		return Completed
	}
	return Pending
}

func (w *WindowCountThreshold) OnOwnerTornDown() {
	w.tornDown()
}
