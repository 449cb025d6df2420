// Package app defines the narrow surface of the embedding application the
// bridge borrows resources from: top-level browsers, tabs (navigation
// controllers), windows, UI controls, and modal dialogs. The bridge never
// owns these objects; it registers handles for them and subscribes to the
// event hub the application publishes on.
//
// Shell is the explicit context handle threaded through dispatcher and
// session construction; there is no process-wide browser list.
package app

import "time"

// BrowserType distinguishes top-level browser flavors.
type BrowserType int

const (
	BrowserTypeNormal BrowserType = iota
	BrowserTypePopup
	BrowserTypeIncognito
)

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Command ids accepted by Browser.ExecuteCommand. Mirrors the application's
// menu/accelerator command table.
const (
	CommandNewTab = iota + 1
	CommandNewWindow
	CommandCloseWindow
	CommandCloseTab
	CommandBack
	CommandForward
	CommandReload
	CommandStop
	CommandRestoreTab
	CommandDuplicateTab
)

// Shell is the application context the bridge operates against: the live
// set of top-level browsers and the modal dialog queue.
type Shell interface {
	// Browsers returns the live top-level browsers in creation order.
	Browsers() []Browser

	// BrowserCount returns len(Browsers()) without copying.
	BrowserCount() int

	// NormalBrowserCount counts browsers of type BrowserTypeNormal.
	NormalBrowserCount() int

	// BrowserAt returns the i-th live browser, or nil.
	BrowserAt(i int) Browser

	// LastActive returns the most recently activated browser, or nil.
	LastActive() Browser

	// FindBrowser returns the first live browser of the given type, or nil.
	FindBrowser(t BrowserType) Browser

	// OpenBrowser asynchronously opens a new top-level browser. Completion
	// is observed via a browser-opened event.
	OpenBrowser(t BrowserType)

	// ActiveDialog returns the currently showing app-modal dialog, if any.
	ActiveDialog() (Dialog, bool)
}

// Browser is one top-level browser: a tab strip plus its window.
type Browser interface {
	Type() BrowserType
	Window() Window

	TabCount() int
	TabAt(i int) Tab
	SelectedIndex() int
	IndexOfTab(t Tab) int

	// ActivateTab selects the tab at index i; reports whether i was valid.
	ActivateTab(i int) bool

	// AddTab opens url in a new tab. The created tab is announced via a
	// tab-parented event; returns the tab, or nil on failure.
	AddTab(url string) Tab

	// Close asynchronously closes the browser. Completion is observed via a
	// browser-closed event.
	Close()

	// RestoreTab reopens the most recently closed tab, announcing it via a
	// tab-parented event. Reports whether there was a tab to restore.
	RestoreTab() bool

	SupportsCommand(cmd int) bool
	IsCommandEnabled(cmd int) bool

	// ExecuteCommand runs a supported, enabled command. The caller is
	// responsible for observing whatever event the command leads to.
	ExecuteCommand(cmd int) bool

	ShelfVisible() bool
	SetShelfVisible(visible bool)

	// Edit returns the browser's location-bar edit control.
	Edit() Control
}

// Tab is a navigation controller for one page.
type Tab interface {
	Browser() Browser
	URL() string
	Title() string

	CanGoBack() bool
	CanGoForward() bool

	// OpenURL, GoBack, GoForward, Reload and Stop trigger navigations whose
	// progress is observed via load/navigation events scoped to this tab.
	OpenURL(url string)
	GoBack()
	GoForward()
	Reload()
	Stop()

	LastNavigationTime() time.Time

	// IsLoading/NeedsReload/HasPendingEntry expose restore progress for
	// session-restored tabs.
	IsLoading() bool
	NeedsReload() bool
	HasPendingEntry() bool

	// Find starts or continues a find-in-page run. Partial and final results
	// arrive as find-result events correlated by requestID.
	Find(requestID int, query string, forward, matchCase, findNext bool)

	// Print starts a print job; completion arrives as print-job events.
	// Reports whether the job could be started.
	Print() bool

	// Close asynchronously closes the tab; tab-closing then tab-closed
	// events follow.
	Close()
}

// Window is the native window a browser lives in.
type Window interface {
	Title() string
	Bounds() Rect
	SetBounds(r Rect)
	Activate()
	IsActive() bool
}

// Control is a UI control reachable over the bridge; today only the
// location-bar edit.
type Control interface {
	Text() string
	SetText(s string)
}

// Dialog is an app-modal dialog.
type Dialog interface {
	// Buttons returns the button bitmask the dialog shows.
	Buttons() int

	Accept() bool
	Cancel() bool
}

// Dialog button bits.
const (
	DialogButtonNone   = 0
	DialogButtonOK     = 1
	DialogButtonCancel = 2
)

// LoginHandler resolves one pending authentication prompt. Handed to the
// bridge via the auth-needed event payload and kept in a side table until
// the driver supplies or cancels credentials.
type LoginHandler interface {
	SetAuth(username, password string) bool
	CancelAuth() bool
}

// Event payload shapes published on the hub.

// AuthNeededDetails accompanies an auth-needed event.
type AuthNeededDetails struct {
	Handler LoginHandler `json:"-"`
	Realm   string       `json:"realm,omitempty"`
}

// BrowserClosedDetails accompanies a browser-closed event.
type BrowserClosedDetails struct {
	// ClosingApp is true when this was the last browser and the application
	// is shutting down with it.
	ClosingApp bool `json:"closing_app"`
}

// FindResultDetails accompanies a find-result event. A run produces any
// number of partial updates followed by exactly one with Final set.
type FindResultDetails struct {
	RequestID          int  `json:"request_id"`
	ActiveMatchOrdinal int  `json:"active_match_ordinal"`
	Matches            int  `json:"matches"`
	Final              bool `json:"final"`
}

// PrintJobStatus is the progress state in a print-job event.
type PrintJobStatus string

const (
	PrintJobPageDone PrintJobStatus = "page_done"
	PrintJobDone     PrintJobStatus = "done"
	PrintJobFailed   PrintJobStatus = "failed"
	PrintJobCanceled PrintJobStatus = "canceled"
)

// PrintJobDetails accompanies a print-job event.
type PrintJobDetails struct {
	Status PrintJobStatus `json:"status"`
}
