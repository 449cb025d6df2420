package app

import (
	"time"

	"github.com/odvcencio/autobridge/pkg/eventhub"
)

// SimShell is an in-memory Shell implementation. It backs cmd/autobridge
// when no real application is embedded and drives the package tests. All
// methods must be called on the session's owning goroutine; events are
// published synchronously on the hub passed at construction.
type SimShell struct {
	hub        *eventhub.Hub
	browsers   []*SimBrowser
	lastActive *SimBrowser
	dialog     *SimDialog

	// AutoFinishLoads makes navigations emit their load-stop immediately
	// after commit. Tests that exercise countdown states leave it off and
	// call FinishLoad explicitly.
	AutoFinishLoads bool

	// AuthRealms maps URLs to a realm name; navigating to one stops at an
	// authentication prompt instead of finishing the load.
	AuthRealms map[string]string

	// FindMatches maps queries to their match count for Find runs.
	FindMatches map[string]int
}

// NewSimShell creates a shell with a single normal browser holding one tab.
func NewSimShell(hub *eventhub.Hub) *SimShell {
	s := &SimShell{
		hub:         hub,
		AuthRealms:  make(map[string]string),
		FindMatches: make(map[string]int),
	}
	b := s.newBrowser(BrowserTypeNormal)
	s.browsers = append(s.browsers, b)
	s.lastActive = b
	b.appendTab("about:blank", false)
	return s
}

func (s *SimShell) newBrowser(t BrowserType) *SimBrowser {
	return &SimBrowser{
		shell:  s,
		typ:    t,
		window: &SimWindow{title: "autobridge", bounds: Rect{Width: 1280, Height: 720}},
	}
}

func (s *SimShell) Browsers() []Browser {
	out := make([]Browser, len(s.browsers))
	for i, b := range s.browsers {
		out[i] = b
	}
	return out
}

func (s *SimShell) BrowserCount() int { return len(s.browsers) }

func (s *SimShell) NormalBrowserCount() int {
	n := 0
	for _, b := range s.browsers {
		if b.typ == BrowserTypeNormal {
			n++
		}
	}
	return n
}

func (s *SimShell) BrowserAt(i int) Browser {
	if i < 0 || i >= len(s.browsers) {
		return nil
	}
	return s.browsers[i]
}

func (s *SimShell) LastActive() Browser {
	if s.lastActive == nil {
		return nil
	}
	return s.lastActive
}

func (s *SimShell) FindBrowser(t BrowserType) Browser {
	for _, b := range s.browsers {
		if b.typ == t {
			return b
		}
	}
	return nil
}

func (s *SimShell) OpenBrowser(t BrowserType) {
	b := s.newBrowser(t)
	s.browsers = append(s.browsers, b)
	s.lastActive = b
	b.appendTab("about:blank", false)
	s.hub.Publish(eventhub.Event{Kind: eventhub.KindBrowserOpened, Source: b})
}

// removeBrowser emits the closed event before taking the browser out of the
// live list, matching the delivery order threshold observers compensate for.
func (s *SimShell) removeBrowser(b *SimBrowser) {
	closingApp := len(s.browsers) == 1
	s.hub.Publish(eventhub.Event{
		Kind:    eventhub.KindBrowserClosed,
		Source:  b,
		Payload: BrowserClosedDetails{ClosingApp: closingApp},
	})
	for i, cur := range s.browsers {
		if cur == b {
			s.browsers = append(s.browsers[:i], s.browsers[i+1:]...)
			break
		}
	}
	if s.lastActive == b {
		s.lastActive = nil
		if len(s.browsers) > 0 {
			s.lastActive = s.browsers[len(s.browsers)-1]
		}
	}
}

func (s *SimShell) ActiveDialog() (Dialog, bool) {
	if s.dialog == nil {
		return nil, false
	}
	return s.dialog, true
}

// ShowDialog raises an app-modal dialog and announces it on the hub.
func (s *SimShell) ShowDialog(buttons int) *SimDialog {
	d := &SimDialog{shell: s, buttons: buttons}
	s.dialog = d
	s.hub.Publish(eventhub.Event{Kind: eventhub.KindDialogShown, Source: d})
	return d
}

// SimBrowser implements Browser.
type SimBrowser struct {
	shell        *SimShell
	typ          BrowserType
	window       *SimWindow
	tabs         []*SimTab
	selected     int
	shelfVisible bool
	closedStack  []string // URLs of closed tabs, most recent last
	edit         SimControl
}

func (b *SimBrowser) Type() BrowserType { return b.typ }
func (b *SimBrowser) Window() Window    { return b.window }
func (b *SimBrowser) TabCount() int     { return len(b.tabs) }

func (b *SimBrowser) TabAt(i int) Tab {
	if i < 0 || i >= len(b.tabs) {
		return nil
	}
	return b.tabs[i]
}

func (b *SimBrowser) SelectedIndex() int {
	if len(b.tabs) == 0 {
		return -1
	}
	return b.selected
}

func (b *SimBrowser) IndexOfTab(t Tab) int {
	for i, tab := range b.tabs {
		if Tab(tab) == t {
			return i
		}
	}
	return -1
}

func (b *SimBrowser) ActivateTab(i int) bool {
	if i < 0 || i >= len(b.tabs) {
		return false
	}
	b.selected = i
	b.shell.lastActive = b
	return true
}

func (b *SimBrowser) AddTab(url string) Tab {
	return b.appendTab(url, true)
}

func (b *SimBrowser) appendTab(url string, navigate bool) *SimTab {
	t := &SimTab{browser: b, entries: []string{}, index: -1}
	b.tabs = append(b.tabs, t)
	b.selected = len(b.tabs) - 1
	b.shell.hub.Publish(eventhub.Event{Kind: eventhub.KindTabParented, Source: t})
	if navigate {
		t.OpenURL(url)
	} else {
		t.entries = append(t.entries, url)
		t.index = 0
	}
	return t
}

func (b *SimBrowser) Close() {
	for _, t := range b.tabs {
		b.shell.hub.Publish(eventhub.Event{Kind: eventhub.KindTabClosing, Source: t})
	}
	tabs := b.tabs
	b.tabs = nil
	for _, t := range tabs {
		b.shell.hub.Publish(eventhub.Event{Kind: eventhub.KindTabClosed, Source: t})
	}
	b.shell.removeBrowser(b)
}

func (b *SimBrowser) RestoreTab() bool {
	if len(b.closedStack) == 0 {
		return false
	}
	url := b.closedStack[len(b.closedStack)-1]
	b.closedStack = b.closedStack[:len(b.closedStack)-1]
	t := &SimTab{browser: b, entries: []string{}, index: -1, needsReload: true}
	b.tabs = append(b.tabs, t)
	b.selected = len(b.tabs) - 1
	b.shell.hub.Publish(eventhub.Event{Kind: eventhub.KindTabParented, Source: t})
	t.OpenURL(url)
	t.needsReload = false
	return true
}

func (b *SimBrowser) SupportsCommand(cmd int) bool {
	switch cmd {
	case CommandNewTab, CommandNewWindow, CommandCloseWindow, CommandCloseTab,
		CommandBack, CommandForward, CommandReload, CommandStop,
		CommandRestoreTab, CommandDuplicateTab:
		return true
	}
	return false
}

func (b *SimBrowser) IsCommandEnabled(cmd int) bool {
	if !b.SupportsCommand(cmd) {
		return false
	}
	sel := b.selectedTab()
	switch cmd {
	case CommandBack:
		return sel != nil && sel.CanGoBack()
	case CommandForward:
		return sel != nil && sel.CanGoForward()
	case CommandReload, CommandCloseTab, CommandStop, CommandDuplicateTab:
		return sel != nil
	case CommandRestoreTab:
		return len(b.closedStack) > 0
	}
	return true
}

func (b *SimBrowser) ExecuteCommand(cmd int) bool {
	if !b.IsCommandEnabled(cmd) {
		return false
	}
	switch cmd {
	case CommandNewTab:
		b.AddTab("about:blank")
	case CommandNewWindow:
		b.shell.OpenBrowser(BrowserTypeNormal)
	case CommandCloseWindow:
		b.Close()
	case CommandCloseTab:
		b.selectedTab().Close()
	case CommandBack:
		b.selectedTab().GoBack()
	case CommandForward:
		b.selectedTab().GoForward()
	case CommandReload:
		b.selectedTab().Reload()
	case CommandStop:
		b.selectedTab().Stop()
	case CommandRestoreTab:
		b.RestoreTab()
	case CommandDuplicateTab:
		b.AddTab(b.selectedTab().URL())
	default:
		return false
	}
	return true
}

func (b *SimBrowser) selectedTab() *SimTab {
	if len(b.tabs) == 0 {
		return nil
	}
	return b.tabs[b.selected]
}

func (b *SimBrowser) ShelfVisible() bool           { return b.shelfVisible }
func (b *SimBrowser) SetShelfVisible(visible bool) { b.shelfVisible = visible }
func (b *SimBrowser) Edit() Control                { return &b.edit }

func (b *SimBrowser) removeTab(t *SimTab) {
	for i, cur := range b.tabs {
		if cur == t {
			b.tabs = append(b.tabs[:i], b.tabs[i+1:]...)
			if b.selected >= len(b.tabs) {
				b.selected = len(b.tabs) - 1
			}
			b.closedStack = append(b.closedStack, t.URL())
			return
		}
	}
}

// SimTab implements Tab.
type SimTab struct {
	browser      *SimBrowser
	entries      []string
	index        int
	title        string
	loading      bool
	pendingEntry bool
	needsReload  bool
	lastNav      time.Time
	authPending  bool
}

func (t *SimTab) Browser() Browser { return t.browser }

func (t *SimTab) URL() string {
	if t.index < 0 || t.index >= len(t.entries) {
		return ""
	}
	return t.entries[t.index]
}

func (t *SimTab) Title() string { return t.title }

func (t *SimTab) CanGoBack() bool    { return t.index > 0 }
func (t *SimTab) CanGoForward() bool { return t.index+1 < len(t.entries) }

func (t *SimTab) OpenURL(url string) {
	t.entries = append(t.entries[:t.index+1], url)
	t.index = len(t.entries) - 1
	t.startNavigation(url)
}

func (t *SimTab) GoBack() {
	if !t.CanGoBack() {
		return
	}
	t.index--
	t.startNavigation(t.entries[t.index])
}

func (t *SimTab) GoForward() {
	if !t.CanGoForward() {
		return
	}
	t.index++
	t.startNavigation(t.entries[t.index])
}

func (t *SimTab) Reload() {
	t.needsReload = false
	t.startNavigation(t.URL())
}

func (t *SimTab) Stop() {
	if !t.loading {
		return
	}
	t.finishLoad()
}

func (t *SimTab) startNavigation(url string) {
	hub := t.browser.shell.hub
	t.loading = true
	t.pendingEntry = true
	t.lastNav = time.Now()
	hub.Publish(eventhub.Event{Kind: eventhub.KindLoadStart, Source: t})
	t.pendingEntry = false
	hub.Publish(eventhub.Event{Kind: eventhub.KindNavEntryCommitted, Source: t})

	if realm, ok := t.browser.shell.AuthRealms[url]; ok {
		t.authPending = true
		hub.Publish(eventhub.Event{
			Kind:    eventhub.KindAuthNeeded,
			Source:  t,
			Payload: AuthNeededDetails{Handler: &simLoginHandler{tab: t}, Realm: realm},
		})
		return
	}
	if t.browser.shell.AutoFinishLoads {
		t.finishLoad()
	}
}

// FinishLoad completes the in-flight navigation, emitting its load-stop.
// Tests drive this directly when AutoFinishLoads is off.
func (t *SimTab) FinishLoad() {
	if !t.loading {
		return
	}
	t.finishLoad()
}

func (t *SimTab) finishLoad() {
	t.loading = false
	t.title = t.URL()
	t.browser.shell.hub.Publish(eventhub.Event{Kind: eventhub.KindLoadStop, Source: t})
}

func (t *SimTab) LastNavigationTime() time.Time { return t.lastNav }
func (t *SimTab) IsLoading() bool               { return t.loading }
func (t *SimTab) NeedsReload() bool             { return t.needsReload }
func (t *SimTab) HasPendingEntry() bool         { return t.pendingEntry }

func (t *SimTab) Find(requestID int, query string, forward, matchCase, findNext bool) {
	hub := t.browser.shell.hub
	matches := t.browser.shell.FindMatches[query]
	// Partial update carries the ordinal, the final update the total; the
	// final omits the ordinal the way the real engine does.
	if matches > 0 {
		hub.Publish(eventhub.Event{
			Kind:   eventhub.KindFindResult,
			Source: t,
			Payload: FindResultDetails{
				RequestID:          requestID,
				ActiveMatchOrdinal: 1,
				Matches:            matches,
			},
		})
	}
	hub.Publish(eventhub.Event{
		Kind:   eventhub.KindFindResult,
		Source: t,
		Payload: FindResultDetails{
			RequestID:          requestID,
			ActiveMatchOrdinal: -1,
			Matches:            matches,
			Final:              true,
		},
	})
}

func (t *SimTab) Print() bool {
	hub := t.browser.shell.hub
	hub.Publish(eventhub.Event{Kind: eventhub.KindPrintJob, Source: t, Payload: PrintJobDetails{Status: PrintJobPageDone}})
	hub.Publish(eventhub.Event{Kind: eventhub.KindPrintJob, Source: t, Payload: PrintJobDetails{Status: PrintJobDone}})
	return true
}

func (t *SimTab) Close() {
	hub := t.browser.shell.hub
	hub.Publish(eventhub.Event{Kind: eventhub.KindTabClosing, Source: t})
	t.browser.removeTab(t)
	hub.Publish(eventhub.Event{Kind: eventhub.KindTabClosed, Source: t})
}

type simLoginHandler struct {
	tab *SimTab
}

func (h *simLoginHandler) SetAuth(username, password string) bool {
	t := h.tab
	if !t.authPending {
		return false
	}
	t.authPending = false
	delete(t.browser.shell.AuthRealms, t.URL())
	hub := t.browser.shell.hub
	hub.Publish(eventhub.Event{Kind: eventhub.KindAuthSupplied, Source: t})
	if t.browser.shell.AutoFinishLoads {
		t.finishLoad()
	}
	return true
}

func (h *simLoginHandler) CancelAuth() bool {
	t := h.tab
	if !t.authPending {
		return false
	}
	t.authPending = false
	hub := t.browser.shell.hub
	hub.Publish(eventhub.Event{Kind: eventhub.KindAuthSupplied, Source: t})
	if t.browser.shell.AutoFinishLoads {
		t.finishLoad()
	}
	return true
}

// SimWindow implements Window.
type SimWindow struct {
	title  string
	bounds Rect
	active bool
}

func (w *SimWindow) Title() string    { return w.title }
func (w *SimWindow) Bounds() Rect     { return w.bounds }
func (w *SimWindow) SetBounds(r Rect) { w.bounds = r }
func (w *SimWindow) Activate()        { w.active = true }
func (w *SimWindow) IsActive() bool   { return w.active }

// SimControl implements Control.
type SimControl struct {
	text string
}

func (c *SimControl) Text() string     { return c.text }
func (c *SimControl) SetText(s string) { c.text = s }

// SimDialog implements Dialog.
type SimDialog struct {
	shell   *SimShell
	buttons int
	clicked int
}

func (d *SimDialog) Buttons() int { return d.buttons }

func (d *SimDialog) Accept() bool {
	if d.buttons&DialogButtonOK == 0 {
		return false
	}
	d.clicked = DialogButtonOK
	d.dismiss()
	return true
}

func (d *SimDialog) Cancel() bool {
	if d.buttons&DialogButtonCancel == 0 {
		return false
	}
	d.clicked = DialogButtonCancel
	d.dismiss()
	return true
}

func (d *SimDialog) dismiss() {
	if d.shell.dialog == d {
		d.shell.dialog = nil
	}
}

// Clicked returns which button dismissed the dialog (tests).
func (d *SimDialog) Clicked() int { return d.clicked }
