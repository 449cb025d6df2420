package observer

import (
	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/reply"
)

// FindResult is the payload for find-in-page completions.
type FindResult struct {
	ActiveMatchOrdinal int `json:"active_match_ordinal"`
	Matches            int `json:"matches"`
}

// FindInPage accumulates partial find results for one request id and
// resolves only on the update flagged final. The active match ordinal
// usually arrives on a partial update before the final one, so the
// last-seen value is kept and used when the final update omits it.
type FindInPage struct {
	base
	requestID   int
	lastOrdinal int
}

// NewFindInPage registers an accumulator for find results on tab.
func NewFindInPage(hub *eventhub.Hub, reg *Registry, tab app.Tab, requestID int, pending *reply.Pending) *FindInPage {
	f := &FindInPage{requestID: requestID, lastOrdinal: -1}
	f.init(hub, reg, pending, f)
	f.subscribe(eventhub.KindFindResult, tab)
	return f
}

func (f *FindInPage) OnEvent(ev eventhub.Event) Outcome {
	details, ok := ev.Payload.(app.FindResultDetails)
	if !ok || details.RequestID != f.requestID {
		return Pending
	}
	if details.ActiveMatchOrdinal > -1 {
		f.lastOrdinal = details.ActiveMatchOrdinal
	}
	if !details.Final {
		return Pending
	}
	f.complete(reply.StatusSuccess, FindResult{
		ActiveMatchOrdinal: f.lastOrdinal,
		Matches:            details.Matches,
	})
	return Completed
}

func (f *FindInPage) OnOwnerTornDown() {
	f.tornDown()
}
