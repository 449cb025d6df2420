package observer_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/observer"
	"github.com/odvcencio/autobridge/pkg/reply"
)

type captureChannel struct {
	envs []reply.Envelope
}

func (c *captureChannel) Send(env reply.Envelope) error {
	c.envs = append(c.envs, env)
	return nil
}

func (c *captureChannel) last(t *testing.T) reply.Envelope {
	t.Helper()
	require.NotEmpty(t, c.envs, "no reply was sent")
	return c.envs[len(c.envs)-1]
}

// newSim returns a shell with auto-finishing loads disabled, so tests drive
// load-stop explicitly.
func newSim(t *testing.T) (*eventhub.Hub, *app.SimShell, *app.SimTab) {
	t.Helper()
	hub := eventhub.NewHub()
	shell := app.NewSimShell(hub)
	shell.AutoFinishLoads = false
	tab := shell.BrowserAt(0).TabAt(0).(*app.SimTab)
	return hub, shell, tab
}

func TestCountdownCompletesAfterRequestedNavigations(t *testing.T) {
	hub, _, tab := newSim(t)
	reg := observer.NewRegistry()
	ch := &captureChannel{}
	p := reply.NewPending(1, ch)

	observer.NewCountdown(hub, reg, tab, 2, p, observer.CountdownHooks{})

	tab.OpenURL("http://one.example/")
	tab.FinishLoad()
	require.Empty(t, ch.envs, "resolved after one navigation, want two")

	tab.OpenURL("http://two.example/")
	tab.FinishLoad()

	env := ch.last(t)
	require.Equal(t, reply.StatusSuccess, env.Status)

	var res observer.NavigationResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	require.Equal(t, "success", res.Result)

	require.Zero(t, reg.Len(), "observer not retired")
	require.Zero(t, hub.Len(), "subscriptions leaked")
}

func TestCountdownIgnoresStopWithoutStart(t *testing.T) {
	hub, _, tab := newSim(t)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewCountdown(hub, reg, tab, 1, reply.NewPending(1, ch), observer.CountdownHooks{})

	// A stray load-stop with no preceding start must not count.
	hub.Publish(eventhub.Event{Kind: eventhub.KindLoadStop, Source: app.Tab(tab)})
	require.Empty(t, ch.envs)

	tab.OpenURL("http://real.example/")
	tab.FinishLoad()
	require.Equal(t, reply.StatusSuccess, ch.last(t).Status)
}

func TestCountdownAuthShortCircuit(t *testing.T) {
	hub, shell, tab := newSim(t)
	shell.AuthRealms["http://secure.example/"] = "vault"
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	var handler app.LoginHandler
	hooks := observer.CountdownHooks{
		AuthNeeded: func(h app.LoginHandler) { handler = h },
	}
	observer.NewCountdown(hub, reg, tab, 1, reply.NewPending(1, ch), hooks)

	tab.OpenURL("http://secure.example/")

	env := ch.last(t)
	require.Equal(t, reply.StatusAuthNeeded, env.Status)
	require.NotNil(t, handler, "login handler was not surfaced")
	require.Zero(t, reg.Len())
}

func TestCountdownResumesAfterAuthSupplied(t *testing.T) {
	hub, shell, tab := newSim(t)
	shell.AuthRealms["http://secure.example/"] = "vault"
	reg := observer.NewRegistry()

	// First navigation stops at the prompt.
	authCh := &captureChannel{}
	var handler app.LoginHandler
	observer.NewCountdown(hub, reg, tab, 1, reply.NewPending(1, authCh), observer.CountdownHooks{
		AuthNeeded: func(h app.LoginHandler) { handler = h },
	})
	tab.OpenURL("http://secure.example/")
	require.Equal(t, reply.StatusAuthNeeded, authCh.last(t).Status)

	// Supplying credentials counts as the navigation restarting; the
	// following load-stop completes the new wait.
	var cleared bool
	ch := &captureChannel{}
	observer.NewCountdown(hub, reg, tab, 1, reply.NewPending(2, ch), observer.CountdownHooks{
		AuthSupplied: func() { cleared = true },
	})
	require.True(t, handler.SetAuth("user", "hunter2"))
	tab.FinishLoad()

	require.Equal(t, reply.StatusSuccess, ch.last(t).Status)
	require.True(t, cleared, "auth-supplied hook did not fire")
}

func TestWindowCountThresholdOnOpen(t *testing.T) {
	hub := eventhub.NewHub()
	shell := app.NewSimShell(hub)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewWindowCountThreshold(hub, reg, shell, 2, reply.NewPending(1, ch))
	shell.OpenBrowser(app.BrowserTypeNormal)

	env := ch.last(t)
	require.Equal(t, reply.StatusSuccess, env.Status)

	var res observer.WindowCountResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	require.Equal(t, 2, res.Count)
}

func TestWindowCountThresholdCompensatesForCloseOrdering(t *testing.T) {
	hub := eventhub.NewHub()
	shell := app.NewSimShell(hub)
	shell.OpenBrowser(app.BrowserTypeNormal)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	// The closed event arrives while the browser is still in the live list,
	// so a naive count would read 2 and never match.
	observer.NewWindowCountThreshold(hub, reg, shell, 1, reply.NewPending(1, ch))
	shell.BrowserAt(1).(*app.SimBrowser).Close()

	env := ch.last(t)
	require.Equal(t, reply.StatusSuccess, env.Status)

	var res observer.WindowCountResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	require.Equal(t, 1, res.Count)
	require.Equal(t, 1, shell.BrowserCount())
}

func TestFindInPageKeepsLastOrdinal(t *testing.T) {
	hub, shell, tab := newSim(t)
	shell.FindMatches["needle"] = 4
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewFindInPage(hub, reg, tab, -1, reply.NewPending(1, ch))
	tab.Find(-1, "needle", true, false, false)

	env := ch.last(t)
	require.Equal(t, reply.StatusSuccess, env.Status)

	var res observer.FindResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	require.Equal(t, 4, res.Matches)
	// The final update omits the ordinal; the partial's value must survive.
	require.Equal(t, 1, res.ActiveMatchOrdinal)
}

func TestFindInPageIgnoresForeignRequestIDs(t *testing.T) {
	hub, shell, tab := newSim(t)
	shell.FindMatches["needle"] = 2
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewFindInPage(hub, reg, tab, 5, reply.NewPending(1, ch))

	tab.Find(6, "needle", true, false, false)
	require.Empty(t, ch.envs, "resolved on a foreign request id")

	tab.Find(5, "needle", true, false, false)
	require.Equal(t, reply.StatusSuccess, ch.last(t).Status)
}

func TestTabAppendedChainsIntoNavigation(t *testing.T) {
	hub := eventhub.NewHub()
	shell := app.NewSimShell(hub)
	b := shell.BrowserAt(0)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewTabAppended(hub, reg, b, reply.NewPending(1, ch), func(tab app.Tab, pending *reply.Pending) {
		observer.NewCountdown(hub, reg, tab, 1, pending, observer.CountdownHooks{})
	})
	b.AddTab("http://appended.example/")

	env := ch.last(t)
	require.Equal(t, reply.StatusSuccess, env.Status)
	require.Zero(t, reg.Len())
	require.Zero(t, hub.Len())
}

func TestTabAppendedFiltersOtherBrowsers(t *testing.T) {
	hub := eventhub.NewHub()
	shell := app.NewSimShell(hub)
	shell.OpenBrowser(app.BrowserTypeNormal)
	parent := shell.BrowserAt(0)
	other := shell.BrowserAt(1)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewTabAppended(hub, reg, parent, reply.NewPending(1, ch), func(tab app.Tab, pending *reply.Pending) {
		pending.Resolve(reply.StatusSuccess, nil)
	})

	other.AddTab("http://elsewhere.example/")
	require.Empty(t, ch.envs, "completed on another browser's tab")

	parent.AddTab("http://here.example/")
	require.Equal(t, reply.StatusSuccess, ch.last(t).Status)
}

func TestPrintJobTerminalStates(t *testing.T) {
	hub, _, tab := newSim(t)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewPrintJob(hub, reg, tab, reply.NewPending(1, ch))
	require.True(t, tab.Print())

	env := ch.last(t)
	require.Equal(t, reply.StatusSuccess, env.Status)

	var res observer.PrintResult
	require.NoError(t, json.Unmarshal(env.Payload, &res))
	require.True(t, res.Success)
	require.Len(t, ch.envs, 1, "page-done progress must not resolve")
}

func TestPrintJobFailure(t *testing.T) {
	hub, _, tab := newSim(t)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewPrintJob(hub, reg, tab, reply.NewPending(1, ch))
	hub.Publish(eventhub.Event{
		Kind:    eventhub.KindPrintJob,
		Source:  app.Tab(tab),
		Payload: app.PrintJobDetails{Status: app.PrintJobFailed},
	})

	var res observer.PrintResult
	require.NoError(t, json.Unmarshal(ch.last(t).Payload, &res))
	require.False(t, res.Success)
}

func TestTabRestoredWaitsForSettle(t *testing.T) {
	hub, _, tab := newSim(t)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	tab.OpenURL("http://restored.example/")
	require.False(t, observer.RestoreSettled(tab))

	observer.NewTabRestored(hub, reg, tab, reply.NewPending(1, ch))
	tab.FinishLoad()

	require.Equal(t, reply.StatusSuccess, ch.last(t).Status)
	require.True(t, observer.RestoreSettled(tab))
}

func TestDrainAllAbandonsPendingReplies(t *testing.T) {
	hub, _, tab := newSim(t)
	reg := observer.NewRegistry()
	ch := &captureChannel{}

	observer.NewCountdown(hub, reg, tab, 1, reply.NewPending(1, ch), observer.CountdownHooks{})
	observer.NewFindInPage(hub, reg, tab, -1, reply.NewPending(2, ch))
	require.Equal(t, 2, reg.Len())

	reg.DrainAll()

	require.Len(t, ch.envs, 2)
	for _, env := range ch.envs {
		require.Equal(t, reply.StatusAsyncAbandoned, env.Status)
	}
	require.Zero(t, reg.Len())
	require.Zero(t, hub.Len(), "teardown leaked subscriptions")

	// Draining twice is harmless.
	reg.DrainAll()
	require.Len(t, ch.envs, 2)
}

func TestRegistrySizeListener(t *testing.T) {
	hub, _, tab := newSim(t)
	reg := observer.NewRegistry()
	var sizes []int
	reg.SetSizeListener(func(n int) { sizes = append(sizes, n) })

	observer.NewCountdown(hub, reg, tab, 1, reply.NewPending(1, &captureChannel{}), observer.CountdownHooks{})
	tab.OpenURL("http://x.example/")
	tab.FinishLoad()

	require.Equal(t, []int{1, 0}, sizes)
}
