package dispatch

import (
	"time"

	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/handle"
)

// Opcode names one command in the closed automation command set. Each
// opcode is either immediate (the handler writes the reply synchronously)
// or delayed (a condition observer completes it later).
type Opcode string

// Immediate opcodes.
const (
	OpActivateTab               Opcode = "activate_tab"
	OpGetActiveTabIndex         Opcode = "get_active_tab_index"
	OpGetTabCount               Opcode = "get_tab_count"
	OpGetTab                    Opcode = "get_tab"
	OpGetTabTitle               Opcode = "get_tab_title"
	OpGetTabIndex               Opcode = "get_tab_index"
	OpGetTabURL                 Opcode = "get_tab_url"
	OpGetBrowserWindowCount     Opcode = "get_browser_window_count"
	OpGetNormalWindowCount      Opcode = "get_normal_browser_window_count"
	OpGetBrowserWindow          Opcode = "get_browser_window"
	OpFindNormalBrowserWindow   Opcode = "find_normal_browser_window"
	OpGetLastActiveWindow       Opcode = "get_last_active_browser_window"
	OpGetWindowForBrowser       Opcode = "get_window_for_browser"
	OpGetBrowserForWindow       Opcode = "get_browser_for_window"
	OpGetWindowTitle            Opcode = "get_window_title"
	OpGetWindowBounds           Opcode = "get_window_bounds"
	OpSetWindowBounds           Opcode = "set_window_bounds"
	OpActivateWindow            Opcode = "activate_window"
	OpIsWindowActive            Opcode = "is_window_active"
	OpGetShowingAppModalDialog  Opcode = "get_showing_app_modal_dialog"
	OpClickAppModalDialogButton Opcode = "click_app_modal_dialog_button"
	OpNeedsAuth                 Opcode = "needs_auth"
	OpGetShelfVisibility        Opcode = "get_shelf_visibility"
	OpSetShelfVisibility        Opcode = "set_shelf_visibility"
	OpNavigationAsync           Opcode = "navigation_async"
	OpReloadAsync               Opcode = "reload_async"
	OpStopAsync                 Opcode = "stop_async"
	OpExecuteCommandAsync       Opcode = "execute_browser_command_async"
	OpCloseBrowserAsync         Opcode = "close_browser_async"
	OpGetLastNavigationTime     Opcode = "get_last_navigation_time"
	OpGetEditForBrowser         Opcode = "get_autocomplete_edit_for_browser"
	OpEditGetText               Opcode = "autocomplete_edit_get_text"
	OpEditSetText               Opcode = "autocomplete_edit_set_text"
)

// Delayed opcodes.
const (
	OpNavigateToURL         Opcode = "navigate_to_url"
	OpGoBack                Opcode = "go_back"
	OpGoForward             Opcode = "go_forward"
	OpReload                Opcode = "reload"
	OpSetAuth               Opcode = "set_auth"
	OpCancelAuth            Opcode = "cancel_auth"
	OpAppendTab             Opcode = "append_tab"
	OpCloseTab              Opcode = "close_tab"
	OpOpenNewBrowserWindow  Opcode = "open_new_browser_window"
	OpCloseBrowser          Opcode = "close_browser"
	OpWaitForWindowCount    Opcode = "wait_for_browser_window_count"
	OpWaitForAppModalDialog Opcode = "wait_for_app_modal_dialog"
	OpWaitForTabRestore     Opcode = "wait_for_tab_restore"
	OpFindInPage            Opcode = "find_in_page"
	OpPrintNow              Opcode = "print_now"
	OpGetRedirectsFrom      Opcode = "get_redirects_from"
	OpExecuteCommand        Opcode = "execute_browser_command"
)

// Request payload shapes. Handle slots are named by the resource kind the
// opcode requires.

type browserRequest struct {
	Browser handle.Handle `json:"browser"`
}

type tabRequest struct {
	Tab handle.Handle `json:"tab"`
}

type windowRequest struct {
	Window handle.Handle `json:"window"`
}

type controlRequest struct {
	Control handle.Handle `json:"control"`
}

type activateTabRequest struct {
	Browser handle.Handle `json:"browser"`
	Index   int           `json:"index"`
}

type tabAtRequest struct {
	Browser handle.Handle `json:"browser"`
	Index   int           `json:"index"`
}

type windowAtRequest struct {
	Index int `json:"index"`
}

type setBoundsRequest struct {
	Window handle.Handle `json:"window"`
	Bounds app.Rect      `json:"bounds"`
}

type dialogButtonRequest struct {
	Button int `json:"button"`
}

type setShelfRequest struct {
	Browser handle.Handle `json:"browser"`
	Visible bool          `json:"visible"`
}

type navigateRequest struct {
	Tab         handle.Handle `json:"tab"`
	URL         string        `json:"url"`
	Navigations int           `json:"navigations,omitempty"`
}

type authRequest struct {
	Tab      handle.Handle `json:"tab"`
	Username string        `json:"username"`
	Password string        `json:"password"`
}

type appendTabRequest struct {
	Browser handle.Handle `json:"browser"`
	URL     string        `json:"url"`
}

type openBrowserRequest struct {
	Type app.BrowserType `json:"type"`
}

type windowCountRequest struct {
	Count int `json:"count"`
}

type findRequest struct {
	Tab       handle.Handle `json:"tab"`
	Query     string        `json:"query"`
	Forward   bool          `json:"forward"`
	MatchCase bool          `json:"match_case"`
	FindNext  bool          `json:"find_next"`
}

type redirectsRequest struct {
	Tab       handle.Handle `json:"tab"`
	SourceURL string        `json:"source_url"`
}

type commandRequest struct {
	Browser handle.Handle `json:"browser"`
	Command int           `json:"command"`
}

type setTextRequest struct {
	Control handle.Handle `json:"control"`
	Text    string        `json:"text"`
}

// Reply payload shapes.

type handleResult struct {
	Handle handle.Handle `json:"handle"`
}

type countResult struct {
	Count int `json:"count"`
}

type indexResult struct {
	Index int `json:"index"`
}

type titleResult struct {
	Title string `json:"title"`
}

type urlResult struct {
	URL string `json:"url"`
}

type textResult struct {
	Text string `json:"text"`
}

type boundsResult struct {
	Bounds app.Rect `json:"bounds"`
}

type boolResult struct {
	Value bool `json:"value"`
}

type successResult struct {
	Success bool `json:"success"`
}

type dialogStateResult struct {
	Showing bool `json:"showing"`
	Buttons int  `json:"buttons"`
}

type needsAuthResult struct {
	NeedsAuth bool `json:"needs_auth"`
}

type navTimeResult struct {
	LastNavigationTime time.Time `json:"last_navigation_time"`
}

type browserClosedResult struct {
	ClosingApp bool `json:"closing_app"`
}

type redirectsResult struct {
	OK        bool     `json:"ok"`
	Redirects []string `json:"redirects,omitempty"`
}
