// Package dispatch routes automation commands to their handlers. Immediate
// opcodes resolve the reply before Dispatch returns; delayed opcodes
// register a condition observer first and only then trigger the action, so
// a synchronously delivered completion event cannot slip past its waiter.
//
// Dispatch and every handler run on the session's owning goroutine. The
// only work moved off that goroutine is the redirect history query, whose
// result is posted back to the loop before the reply is touched.
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/handle"
	"github.com/odvcencio/autobridge/pkg/history"
	"github.com/odvcencio/autobridge/pkg/observer"
	"github.com/odvcencio/autobridge/pkg/reply"
)

// Request id used for all find-in-page runs started over the bridge. The
// driver issues at most one run per command, so a fixed id is enough to
// filter out results from runs it did not start.
const findRequestID = -1

// aborter is the slice of an observer a handler needs when its triggering
// action fails after registration.
type aborter interface {
	Abort(status reply.Status, payload any)
}

// Dispatcher owns the per-session command state: the handle tracker, the
// outstanding-observer registry, the login-handler side table and the
// single-slot redirect query.
type Dispatcher struct {
	shell     app.Shell
	hub       *eventhub.Hub
	store     *history.Store
	post      func(fn func())
	logger    *slog.Logger
	tracer    trace.Tracer
	sessionID string

	tracker  *handle.Tracker
	registry *observer.Registry

	// logins maps a tab to the handler for its pending authentication
	// prompt. Entries appear when a navigation stops at a prompt and vanish
	// when credentials are supplied or the tab goes away.
	logins map[app.Tab]app.LoginHandler

	// redirect holds the pending reply of an in-flight redirect query per
	// tab. One outstanding query per tab; a second is rejected.
	redirect map[app.Tab]*reply.Pending
}

// New creates a dispatcher bound to one session. post schedules a closure
// onto the session's owning goroutine and must be safe to call from worker
// goroutines.
func New(shell app.Shell, hub *eventhub.Hub, store *history.Store, post func(fn func()), logger *slog.Logger, sessionID string) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		shell:     shell,
		hub:       hub,
		store:     store,
		post:      post,
		logger:    logger,
		tracer:    otel.Tracer("autobridge/dispatch"),
		sessionID: sessionID,
		tracker:   handle.NewTracker(),
		registry:  observer.NewRegistry(),
		logins:    make(map[app.Tab]app.LoginHandler),
		redirect:  make(map[app.Tab]*reply.Pending),
	}
	d.registry.SetSizeListener(func(n int) {
		pendingObservers.WithLabelValues(sessionID).Set(float64(n))
	})
	return d
}

// Tracker exposes the handle tracker for session-level resource cleanup.
func (d *Dispatcher) Tracker() *handle.Tracker {
	return d.tracker
}

// Registry exposes the outstanding-observer set.
func (d *Dispatcher) Registry() *observer.Registry {
	return d.registry
}

// Dispatch decodes and runs one command. Exactly one reply is produced per
// call, now or later.
func (d *Dispatcher) Dispatch(ctx context.Context, op Opcode, payload json.RawMessage, p *reply.Pending) {
	ctx, span := d.tracer.Start(ctx, "dispatch."+string(op),
		trace.WithAttributes(attribute.Int64("correlation_id", int64(p.CorrelationID()))))
	defer span.End()

	commandsTotal.WithLabelValues(string(op)).Inc()

	h, ok := handlers[op]
	if !ok {
		d.logger.Warn("unknown opcode", "opcode", op, "correlation_id", p.CorrelationID())
		p.Resolve(reply.StatusMalformedRequest, nil)
		return
	}
	h(d, ctx, payload, p)
}

// ResourceGone releases all dispatcher state tied to a destroyed resource.
// Called by the session on tab-closed and browser-closed events, before the
// observers see them.
func (d *Dispatcher) ResourceGone(res any) {
	if b, ok := res.(app.Browser); ok {
		d.tracker.RemoveResource(b.Window())
	}
	d.tracker.RemoveResource(res)
	if t, ok := res.(app.Tab); ok {
		delete(d.logins, t)
	}
}

// Teardown resolves every outstanding reply with an abandonment status.
// Safe to call once, on the owning goroutine, when the session ends.
func (d *Dispatcher) Teardown() {
	d.registry.DrainAll()
	for t, p := range d.redirect {
		delete(d.redirect, t)
		if !p.Resolved() {
			p.Resolve(reply.StatusAsyncAbandoned, nil)
		}
	}
	clear(d.logins)
	pendingObservers.DeleteLabelValues(d.sessionID)
}

// navHooks keeps the login side table current while a navigation countdown
// is in flight on tab.
func (d *Dispatcher) navHooks(tab app.Tab) observer.CountdownHooks {
	return observer.CountdownHooks{
		AuthNeeded:   func(h app.LoginHandler) { d.logins[tab] = h },
		AuthSupplied: func() { delete(d.logins, tab) },
	}
}

// decode unmarshals the payload, resolving the reply as malformed and
// reporting false on failure. An empty payload decodes to the zero request.
func decode[T any](raw json.RawMessage, p *reply.Pending) (T, bool) {
	var req T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &req); err != nil {
			p.Resolve(reply.StatusMalformedRequest, nil)
			return req, false
		}
	}
	return req, true
}

func (d *Dispatcher) browser(h handle.Handle, p *reply.Pending) (app.Browser, bool) {
	res, ok := d.tracker.Resolve(handle.KindBrowser, h)
	if !ok {
		p.Resolve(reply.StatusInvalidHandle, nil)
		return nil, false
	}
	return res.(app.Browser), true
}

func (d *Dispatcher) tab(h handle.Handle, p *reply.Pending) (app.Tab, bool) {
	res, ok := d.tracker.Resolve(handle.KindTab, h)
	if !ok {
		p.Resolve(reply.StatusInvalidHandle, nil)
		return nil, false
	}
	return res.(app.Tab), true
}

func (d *Dispatcher) window(h handle.Handle, p *reply.Pending) (app.Window, bool) {
	res, ok := d.tracker.Resolve(handle.KindWindow, h)
	if !ok {
		p.Resolve(reply.StatusInvalidHandle, nil)
		return nil, false
	}
	return res.(app.Window), true
}

func (d *Dispatcher) control(h handle.Handle, p *reply.Pending) (app.Control, bool) {
	res, ok := d.tracker.Resolve(handle.KindControl, h)
	if !ok {
		p.Resolve(reply.StatusInvalidHandle, nil)
		return nil, false
	}
	return res.(app.Control), true
}

type handlerFunc func(d *Dispatcher, ctx context.Context, raw json.RawMessage, p *reply.Pending)

var handlers = map[Opcode]handlerFunc{
	OpActivateTab:               handleActivateTab,
	OpGetActiveTabIndex:         handleGetActiveTabIndex,
	OpGetTabCount:               handleGetTabCount,
	OpGetTab:                    handleGetTab,
	OpGetTabTitle:               handleGetTabTitle,
	OpGetTabIndex:               handleGetTabIndex,
	OpGetTabURL:                 handleGetTabURL,
	OpGetBrowserWindowCount:     handleGetBrowserWindowCount,
	OpGetNormalWindowCount:      handleGetNormalWindowCount,
	OpGetBrowserWindow:          handleGetBrowserWindow,
	OpFindNormalBrowserWindow:   handleFindNormalBrowserWindow,
	OpGetLastActiveWindow:       handleGetLastActiveWindow,
	OpGetWindowForBrowser:       handleGetWindowForBrowser,
	OpGetBrowserForWindow:       handleGetBrowserForWindow,
	OpGetWindowTitle:            handleGetWindowTitle,
	OpGetWindowBounds:           handleGetWindowBounds,
	OpSetWindowBounds:           handleSetWindowBounds,
	OpActivateWindow:            handleActivateWindow,
	OpIsWindowActive:            handleIsWindowActive,
	OpGetShowingAppModalDialog:  handleGetShowingAppModalDialog,
	OpClickAppModalDialogButton: handleClickAppModalDialogButton,
	OpNeedsAuth:                 handleNeedsAuth,
	OpGetShelfVisibility:        handleGetShelfVisibility,
	OpSetShelfVisibility:        handleSetShelfVisibility,
	OpNavigationAsync:           handleNavigationAsync,
	OpReloadAsync:               handleReloadAsync,
	OpStopAsync:                 handleStopAsync,
	OpExecuteCommandAsync:       handleExecuteCommandAsync,
	OpCloseBrowserAsync:         handleCloseBrowserAsync,
	OpGetLastNavigationTime:     handleGetLastNavigationTime,
	OpGetEditForBrowser:         handleGetEditForBrowser,
	OpEditGetText:               handleEditGetText,
	OpEditSetText:               handleEditSetText,

	OpNavigateToURL:         handleNavigateToURL,
	OpGoBack:                handleGoBack,
	OpGoForward:             handleGoForward,
	OpReload:                handleReload,
	OpSetAuth:               handleSetAuth,
	OpCancelAuth:            handleCancelAuth,
	OpAppendTab:             handleAppendTab,
	OpCloseTab:              handleCloseTab,
	OpOpenNewBrowserWindow:  handleOpenNewBrowserWindow,
	OpCloseBrowser:          handleCloseBrowser,
	OpWaitForWindowCount:    handleWaitForWindowCount,
	OpWaitForAppModalDialog: handleWaitForAppModalDialog,
	OpWaitForTabRestore:     handleWaitForTabRestore,
	OpFindInPage:            handleFindInPage,
	OpPrintNow:              handlePrintNow,
	OpGetRedirectsFrom:      handleGetRedirectsFrom,
	OpExecuteCommand:        handleExecuteCommand,
}

func handleActivateTab(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[activateTabRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	if !b.ActivateTab(req.Index) {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	p.Resolve(reply.StatusSuccess, nil)
}

func handleGetActiveTabIndex(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[browserRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, indexResult{Index: b.SelectedIndex()})
}

func handleGetTabCount(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[browserRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, countResult{Count: b.TabCount()})
}

func handleGetTab(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabAtRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	t := b.TabAt(req.Index)
	if t == nil {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	p.Resolve(reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindTab, t)})
}

func handleGetTabTitle(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, titleResult{Title: t.Title()})
}

func handleGetTabIndex(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, indexResult{Index: t.Browser().IndexOfTab(t)})
}

func handleGetTabURL(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, urlResult{URL: t.URL()})
}

func handleGetBrowserWindowCount(d *Dispatcher, _ context.Context, _ json.RawMessage, p *reply.Pending) {
	p.Resolve(reply.StatusSuccess, countResult{Count: d.shell.BrowserCount()})
}

func handleGetNormalWindowCount(d *Dispatcher, _ context.Context, _ json.RawMessage, p *reply.Pending) {
	p.Resolve(reply.StatusSuccess, countResult{Count: d.shell.NormalBrowserCount()})
}

func handleGetBrowserWindow(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[windowAtRequest](raw, p)
	if !ok {
		return
	}
	b := d.shell.BrowserAt(req.Index)
	if b == nil {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	p.Resolve(reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindBrowser, b)})
}

func handleFindNormalBrowserWindow(d *Dispatcher, _ context.Context, _ json.RawMessage, p *reply.Pending) {
	b := d.shell.FindBrowser(app.BrowserTypeNormal)
	if b == nil {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	p.Resolve(reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindBrowser, b)})
}

func handleGetLastActiveWindow(d *Dispatcher, _ context.Context, _ json.RawMessage, p *reply.Pending) {
	b := d.shell.LastActive()
	if b == nil {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	p.Resolve(reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindBrowser, b)})
}

func handleGetWindowForBrowser(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[browserRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindWindow, b.Window())})
}

func handleGetBrowserForWindow(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[windowRequest](raw, p)
	if !ok {
		return
	}
	w, ok := d.window(req.Window, p)
	if !ok {
		return
	}
	for _, b := range d.shell.Browsers() {
		if b.Window() == w {
			p.Resolve(reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindBrowser, b)})
			return
		}
	}
	p.Resolve(reply.StatusPreconditionFailed, nil)
}

func handleGetWindowTitle(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[windowRequest](raw, p)
	if !ok {
		return
	}
	w, ok := d.window(req.Window, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, titleResult{Title: w.Title()})
}

func handleGetWindowBounds(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[windowRequest](raw, p)
	if !ok {
		return
	}
	w, ok := d.window(req.Window, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, boundsResult{Bounds: w.Bounds()})
}

func handleSetWindowBounds(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[setBoundsRequest](raw, p)
	if !ok {
		return
	}
	w, ok := d.window(req.Window, p)
	if !ok {
		return
	}
	w.SetBounds(req.Bounds)
	p.Resolve(reply.StatusSuccess, nil)
}

func handleActivateWindow(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[windowRequest](raw, p)
	if !ok {
		return
	}
	w, ok := d.window(req.Window, p)
	if !ok {
		return
	}
	w.Activate()
	p.Resolve(reply.StatusSuccess, nil)
}

func handleIsWindowActive(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[windowRequest](raw, p)
	if !ok {
		return
	}
	w, ok := d.window(req.Window, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, boolResult{Value: w.IsActive()})
}

func handleGetShowingAppModalDialog(d *Dispatcher, _ context.Context, _ json.RawMessage, p *reply.Pending) {
	dlg, showing := d.shell.ActiveDialog()
	res := dialogStateResult{Showing: showing}
	if showing {
		res.Buttons = dlg.Buttons()
	}
	p.Resolve(reply.StatusSuccess, res)
}

func handleClickAppModalDialogButton(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[dialogButtonRequest](raw, p)
	if !ok {
		return
	}
	dlg, showing := d.shell.ActiveDialog()
	if !showing {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	var success bool
	switch req.Button {
	case app.DialogButtonOK:
		success = dlg.Buttons()&app.DialogButtonOK != 0 && dlg.Accept()
	case app.DialogButtonCancel:
		success = dlg.Buttons()&app.DialogButtonCancel != 0 && dlg.Cancel()
	}
	p.Resolve(reply.StatusSuccess, successResult{Success: success})
}

func handleNeedsAuth(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	_, pending := d.logins[t]
	p.Resolve(reply.StatusSuccess, needsAuthResult{NeedsAuth: pending})
}

func handleGetShelfVisibility(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[browserRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, boolResult{Value: b.ShelfVisible()})
}

func handleSetShelfVisibility(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[setShelfRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	b.SetShelfVisible(req.Visible)
	p.Resolve(reply.StatusSuccess, nil)
}

func handleNavigationAsync(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[navigateRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	t.OpenURL(req.URL)
	p.Resolve(reply.StatusSuccess, nil)
}

func handleReloadAsync(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	t.Reload()
	p.Resolve(reply.StatusSuccess, nil)
}

func handleStopAsync(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	t.Stop()
	p.Resolve(reply.StatusSuccess, nil)
}

func handleExecuteCommandAsync(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[commandRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	success := b.SupportsCommand(req.Command) &&
		b.IsCommandEnabled(req.Command) &&
		b.ExecuteCommand(req.Command)
	p.Resolve(reply.StatusSuccess, successResult{Success: success})
}

func handleCloseBrowserAsync(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[browserRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	b.Close()
	p.Resolve(reply.StatusSuccess, nil)
}

func handleGetLastNavigationTime(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, navTimeResult{LastNavigationTime: t.LastNavigationTime()})
}

func handleGetEditForBrowser(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[browserRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindControl, b.Edit())})
}

func handleEditGetText(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[controlRequest](raw, p)
	if !ok {
		return
	}
	c, ok := d.control(req.Control, p)
	if !ok {
		return
	}
	p.Resolve(reply.StatusSuccess, textResult{Text: c.Text()})
}

func handleEditSetText(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[setTextRequest](raw, p)
	if !ok {
		return
	}
	c, ok := d.control(req.Control, p)
	if !ok {
		return
	}
	c.SetText(req.Text)
	p.Resolve(reply.StatusSuccess, nil)
}

func handleNavigateToURL(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[navigateRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	n := req.Navigations
	if n < 0 {
		p.Resolve(reply.StatusMalformedRequest, nil)
		return
	}
	if n == 0 {
		n = 1
	}
	// Navigating a background tab would still load, but drivers expect the
	// navigated tab to come to the front.
	b := t.Browser()
	b.ActivateTab(b.IndexOfTab(t))

	observer.NewCountdown(d.hub, d.registry, t, n, p, d.navHooks(t))
	t.OpenURL(req.URL)
}

func handleGoBack(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	if !t.CanGoBack() {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	observer.NewCountdown(d.hub, d.registry, t, 1, p, d.navHooks(t))
	t.GoBack()
}

func handleGoForward(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	if !t.CanGoForward() {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	observer.NewCountdown(d.hub, d.registry, t, 1, p, d.navHooks(t))
	t.GoForward()
}

func handleReload(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	observer.NewCountdown(d.hub, d.registry, t, 1, p, d.navHooks(t))
	t.Reload()
}

func handleSetAuth(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[authRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	h, pending := d.logins[t]
	if !pending {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	observer.NewCountdown(d.hub, d.registry, t, 1, p, d.navHooks(t))
	h.SetAuth(req.Username, req.Password)
}

func handleCancelAuth(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	h, pending := d.logins[t]
	if !pending {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	observer.NewCountdown(d.hub, d.registry, t, 1, p, d.navHooks(t))
	h.CancelAuth()
}

func handleAppendTab(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[appendTabRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	// The parented event chains into a one-navigation countdown for the new
	// tab's initial load. Registered before AddTab: the event is delivered
	// synchronously from inside it.
	obs := observer.NewTabAppended(d.hub, d.registry, b, p, func(tab app.Tab, pending *reply.Pending) {
		observer.NewCountdown(d.hub, d.registry, tab, 1, pending, d.navHooks(tab))
	})
	if b.AddTab(req.URL) == nil {
		obs.Abort(reply.StatusPreconditionFailed, nil)
	}
}

func handleCloseTab(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	observer.NewSingleShot(d.hub, d.registry, eventhub.KindTabClosed, t, nil, nil, p)
	t.Close()
}

func handleOpenNewBrowserWindow(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[openBrowserRequest](raw, p)
	if !ok {
		return
	}
	observer.NewSingleShot(d.hub, d.registry, eventhub.KindBrowserOpened, nil, nil,
		func(ev eventhub.Event) (reply.Status, any) {
			return reply.StatusSuccess, handleResult{Handle: d.tracker.Add(handle.KindBrowser, ev.Source)}
		}, p)
	d.shell.OpenBrowser(req.Type)
}

func handleCloseBrowser(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[browserRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	observer.NewSingleShot(d.hub, d.registry, eventhub.KindBrowserClosed, b, nil,
		func(ev eventhub.Event) (reply.Status, any) {
			details, _ := ev.Payload.(app.BrowserClosedDetails)
			return reply.StatusSuccess, browserClosedResult{ClosingApp: details.ClosingApp}
		}, p)
	b.Close()
}

func handleWaitForWindowCount(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[windowCountRequest](raw, p)
	if !ok {
		return
	}
	if count := d.shell.BrowserCount(); count == req.Count {
		p.Resolve(reply.StatusSuccess, observer.WindowCountResult{Count: count})
		return
	}
	observer.NewWindowCountThreshold(d.hub, d.registry, d.shell, req.Count, p)
}

func handleWaitForAppModalDialog(d *Dispatcher, _ context.Context, _ json.RawMessage, p *reply.Pending) {
	observer.NewSingleShot(d.hub, d.registry, eventhub.KindDialogShown, nil, nil, nil, p)
}

func handleWaitForTabRestore(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	if observer.RestoreSettled(t) {
		p.Resolve(reply.StatusSuccess, nil)
		return
	}
	observer.NewTabRestored(d.hub, d.registry, t, p)
}

func handleFindInPage(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[findRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	observer.NewFindInPage(d.hub, d.registry, t, findRequestID, p)
	t.Find(findRequestID, req.Query, req.Forward, req.MatchCase, req.FindNext)
}

func handlePrintNow(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[tabRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	obs := observer.NewPrintJob(d.hub, d.registry, t, p)
	if !t.Print() {
		obs.Abort(reply.StatusSuccess, observer.PrintResult{Success: false})
	}
}

func handleGetRedirectsFrom(d *Dispatcher, ctx context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[redirectsRequest](raw, p)
	if !ok {
		return
	}
	t, ok := d.tab(req.Tab, p)
	if !ok {
		return
	}
	if _, busy := d.redirect[t]; busy {
		p.Resolve(reply.StatusConcurrencyViolation, nil)
		return
	}
	d.redirect[t] = p

	source := req.SourceURL
	go func() {
		chain, err := d.store.RedirectsFrom(ctx, source)
		d.post(func() {
			// Teardown may have resolved and cleared the slot already.
			if d.redirect[t] != p {
				return
			}
			delete(d.redirect, t)
			if err != nil {
				d.logger.Error("redirect query failed", "source", source, "error", err)
				p.Resolve(reply.StatusSuccess, redirectsResult{OK: false})
				return
			}
			p.Resolve(reply.StatusSuccess, redirectsResult{OK: true, Redirects: chain})
		})
	}()
}

// commandObserver registers the completion wait for one browser command, or
// returns nil when the command has no observable completion signal.
func (d *Dispatcher) commandObserver(b app.Browser, cmd int, p *reply.Pending) aborter {
	switch cmd {
	case app.CommandNewTab, app.CommandRestoreTab, app.CommandDuplicateTab:
		return observer.NewSingleShot(d.hub, d.registry, eventhub.KindTabParented, nil,
			func(ev eventhub.Event) bool {
				tab, ok := ev.Source.(app.Tab)
				return ok && b.IndexOfTab(tab) >= 0
			}, nil, p)
	case app.CommandNewWindow:
		return observer.NewSingleShot(d.hub, d.registry, eventhub.KindBrowserOpened, nil, nil, nil, p)
	case app.CommandCloseWindow:
		return observer.NewSingleShot(d.hub, d.registry, eventhub.KindBrowserClosed, b, nil, nil, p)
	case app.CommandCloseTab:
		t := b.TabAt(b.SelectedIndex())
		if t == nil {
			return nil
		}
		return observer.NewSingleShot(d.hub, d.registry, eventhub.KindTabClosed, t, nil, nil, p)
	case app.CommandBack, app.CommandForward, app.CommandReload:
		t := b.TabAt(b.SelectedIndex())
		if t == nil {
			return nil
		}
		return observer.NewCountdown(d.hub, d.registry, t, 1, p, d.navHooks(t))
	}
	return nil
}

func handleExecuteCommand(d *Dispatcher, _ context.Context, raw json.RawMessage, p *reply.Pending) {
	req, ok := decode[commandRequest](raw, p)
	if !ok {
		return
	}
	b, ok := d.browser(req.Browser, p)
	if !ok {
		return
	}
	if !b.SupportsCommand(req.Command) || !b.IsCommandEnabled(req.Command) {
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	obs := d.commandObserver(b, req.Command, p)
	if obs == nil {
		// No completion signal for this command; use the async variant.
		p.Resolve(reply.StatusPreconditionFailed, nil)
		return
	}
	if !b.ExecuteCommand(req.Command) {
		obs.Abort(reply.StatusPreconditionFailed, nil)
	}
}
