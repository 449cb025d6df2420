package app

import (
	"testing"

	"github.com/odvcencio/autobridge/pkg/eventhub"
)

func record(hub *eventhub.Hub) *[]eventhub.Event {
	var events []eventhub.Event
	hub.Tap(func(ev eventhub.Event) { events = append(events, ev) })
	return &events
}

func kinds(events []eventhub.Event) []eventhub.Kind {
	out := make([]eventhub.Kind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

func TestNavigationEventSequence(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)
	shell.AutoFinishLoads = true
	tab := shell.BrowserAt(0).TabAt(0).(*SimTab)
	events := record(hub)

	tab.OpenURL("http://page.example/")

	want := []eventhub.Kind{eventhub.KindLoadStart, eventhub.KindNavEntryCommitted, eventhub.KindLoadStop}
	got := kinds(*events)
	if len(got) != len(want) {
		t.Fatalf("event sequence = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d = %v, want %v", i, got[i], want[i])
		}
	}
	if tab.URL() != "http://page.example/" {
		t.Fatalf("url = %q", tab.URL())
	}
	if tab.Title() != "http://page.example/" {
		t.Fatalf("title = %q", tab.Title())
	}
}

func TestBrowserClosedFiresBeforeRemoval(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)
	shell.OpenBrowser(BrowserTypePopup)

	var countDuringEvent int
	hub.Subscribe(eventhub.KindBrowserClosed, nil, func(eventhub.Event) {
		countDuringEvent = shell.BrowserCount()
	})

	shell.BrowserAt(1).(*SimBrowser).Close()

	if countDuringEvent != 2 {
		t.Fatalf("count during closed event = %d, want 2 (browser still listed)", countDuringEvent)
	}
	if shell.BrowserCount() != 1 {
		t.Fatalf("count after close = %d, want 1", shell.BrowserCount())
	}
}

func TestTabCloseEventOrder(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)
	b := shell.BrowserAt(0).(*SimBrowser)
	tab := b.TabAt(0).(*SimTab)

	var closingCount, closedCount int
	hub.Subscribe(eventhub.KindTabClosing, nil, func(eventhub.Event) {
		closingCount = b.TabCount()
	})
	hub.Subscribe(eventhub.KindTabClosed, nil, func(eventhub.Event) {
		closedCount = b.TabCount()
	})

	tab.Close()

	if closingCount != 1 {
		t.Fatalf("tab count at closing = %d, want 1", closingCount)
	}
	if closedCount != 0 {
		t.Fatalf("tab count at closed = %d, want 0", closedCount)
	}
}

func TestRestoreTabReopensLastClosed(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)
	shell.AutoFinishLoads = true
	b := shell.BrowserAt(0).(*SimBrowser)

	b.AddTab("http://keep.example/")
	b.AddTab("http://closed.example/")
	b.TabAt(2).(*SimTab).Close()

	if !b.RestoreTab() {
		t.Fatal("restore failed with a closed tab on the stack")
	}
	restored := b.TabAt(b.TabCount() - 1)
	if restored.URL() != "http://closed.example/" {
		t.Fatalf("restored url = %q", restored.URL())
	}
	if b.RestoreTab() && b.RestoreTab() && b.RestoreTab() {
		t.Fatal("restore stack never empties")
	}
}

func TestBackForwardHistory(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)
	shell.AutoFinishLoads = true
	tab := shell.BrowserAt(0).TabAt(0).(*SimTab)

	tab.OpenURL("http://one.example/")
	tab.OpenURL("http://two.example/")

	if !tab.CanGoBack() || tab.CanGoForward() {
		t.Fatal("history flags wrong after two navigations")
	}
	tab.GoBack()
	if tab.URL() != "http://one.example/" {
		t.Fatalf("url after back = %q", tab.URL())
	}
	if !tab.CanGoForward() {
		t.Fatal("cannot go forward after going back")
	}
	tab.GoForward()
	if tab.URL() != "http://two.example/" {
		t.Fatalf("url after forward = %q", tab.URL())
	}

	// A fresh navigation truncates the forward history.
	tab.GoBack()
	tab.OpenURL("http://branch.example/")
	if tab.CanGoForward() {
		t.Fatal("forward history survived a branch navigation")
	}
}

func TestExecuteCommandMatrix(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)
	shell.AutoFinishLoads = true
	b := shell.BrowserAt(0).(*SimBrowser)

	if b.ExecuteCommand(CommandBack) {
		t.Fatal("back executed with no history")
	}
	if !b.ExecuteCommand(CommandNewTab) {
		t.Fatal("new-tab refused")
	}
	if b.TabCount() != 2 {
		t.Fatalf("tab count = %d after new-tab", b.TabCount())
	}
	if !b.ExecuteCommand(CommandNewWindow) {
		t.Fatal("new-window refused")
	}
	if shell.BrowserCount() != 2 {
		t.Fatalf("browser count = %d after new-window", shell.BrowserCount())
	}
	if b.ExecuteCommand(CommandRestoreTab) {
		t.Fatal("restore-tab executed with empty stack")
	}
}

func TestAuthPromptBlocksLoad(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)
	shell.AutoFinishLoads = true
	shell.AuthRealms["http://locked.example/"] = "vault"
	tab := shell.BrowserAt(0).TabAt(0).(*SimTab)

	var handler LoginHandler
	hub.Subscribe(eventhub.KindAuthNeeded, nil, func(ev eventhub.Event) {
		handler = ev.Payload.(AuthNeededDetails).Handler
	})

	tab.OpenURL("http://locked.example/")
	if !tab.IsLoading() {
		t.Fatal("load finished despite pending auth")
	}
	if handler == nil {
		t.Fatal("no login handler surfaced")
	}

	if !handler.SetAuth("user", "pw") {
		t.Fatal("set auth refused")
	}
	if tab.IsLoading() {
		t.Fatal("load still pending after credentials")
	}
	if handler.SetAuth("user", "pw") {
		t.Fatal("second set auth should fail, prompt is gone")
	}
}

func TestDialogButtons(t *testing.T) {
	hub := eventhub.NewHub()
	shell := NewSimShell(hub)

	d := shell.ShowDialog(DialogButtonOK)
	if d.Cancel() {
		t.Fatal("cancel accepted on an OK-only dialog")
	}
	if _, showing := shell.ActiveDialog(); !showing {
		t.Fatal("dialog dismissed by rejected click")
	}
	if !d.Accept() {
		t.Fatal("accept refused")
	}
	if _, showing := shell.ActiveDialog(); showing {
		t.Fatal("dialog still active after accept")
	}
	if d.Clicked() != DialogButtonOK {
		t.Fatalf("clicked = %d, want OK", d.Clicked())
	}
}
