package session_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/dispatch"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/reply"
	"github.com/odvcencio/autobridge/pkg/session"
)

type chanChannel struct {
	ch chan reply.Envelope
}

func (c *chanChannel) Send(env reply.Envelope) error {
	c.ch <- env
	return nil
}

type harness struct {
	t     *testing.T
	shell *app.SimShell
	hub   *eventhub.Hub
	loop  *session.Loop
	sess  *session.Session
	ch    *chanChannel
	envs  chan reply.Envelope
	done  chan struct{}
	stop  context.CancelFunc
	corr  uint64
}

func newHarness(t *testing.T, opts func(*session.Options)) *harness {
	t.Helper()
	hub := eventhub.NewHub()
	shell := app.NewSimShell(hub)
	shell.AutoFinishLoads = true

	loop := session.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()

	envs := make(chan reply.Envelope, 16)
	ch := &chanChannel{ch: envs}
	options := session.Options{
		Shell:   shell,
		Hub:     hub,
		Channel: ch,
		Loop:    loop,
	}
	if opts != nil {
		opts(&options)
	}
	sess := session.New(options)

	t.Cleanup(func() {
		sess.Close()
		cancel()
		<-done
	})

	return &harness{t: t, shell: shell, hub: hub, loop: loop, sess: sess, ch: ch, envs: envs, done: done, stop: cancel}
}

func (h *harness) submit(op dispatch.Opcode, payload any) uint64 {
	h.t.Helper()
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(h.t, err)
		raw = data
	}
	h.corr++
	require.NoError(h.t, h.sess.Submit(op, raw, h.corr, h.ch))
	return h.corr
}

func (h *harness) recv() reply.Envelope {
	h.t.Helper()
	select {
	case env := <-h.envs:
		return env
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for a reply")
		return reply.Envelope{}
	}
}

// call submits and waits for the correlated reply.
func (h *harness) call(op dispatch.Opcode, payload any) reply.Envelope {
	h.t.Helper()
	corr := h.submit(op, payload)
	env := h.recv()
	require.Equal(h.t, corr, env.CorrelationID)
	return env
}

func TestCommandRoundTrip(t *testing.T) {
	h := newHarness(t, nil)

	env := h.call(dispatch.OpGetBrowserWindowCount, nil)
	require.Equal(t, reply.StatusSuccess, env.Status)

	var count struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &count))
	require.Equal(t, 1, count.Count)
}

func TestRepliesStayOrderedPerSubmission(t *testing.T) {
	h := newHarness(t, nil)

	c1 := h.submit(dispatch.OpGetBrowserWindowCount, nil)
	c2 := h.submit(dispatch.OpGetNormalWindowCount, nil)

	require.Equal(t, c1, h.recv().CorrelationID)
	require.Equal(t, c2, h.recv().CorrelationID)
}

func TestTabHandleInvalidatedByClose(t *testing.T) {
	h := newHarness(t, nil)

	env := h.call(dispatch.OpGetBrowserWindow, map[string]int{"index": 0})
	var b struct {
		Handle int `json:"handle"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &b))

	env = h.call(dispatch.OpAppendTab, map[string]any{"browser": b.Handle, "url": "http://x.example/"})
	require.Equal(t, reply.StatusSuccess, env.Status)

	env = h.call(dispatch.OpGetTab, map[string]any{"browser": b.Handle, "index": 1})
	var tab struct {
		Handle int `json:"handle"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &tab))

	env = h.call(dispatch.OpCloseTab, map[string]any{"tab": tab.Handle})
	require.Equal(t, reply.StatusSuccess, env.Status)

	// The session's cleanup subscription dropped the mapping when the tab
	// closed, so the stale handle no longer resolves.
	env = h.call(dispatch.OpGetTabURL, map[string]any{"tab": tab.Handle})
	require.Equal(t, reply.StatusInvalidHandle, env.Status)
}

func TestCloseAbandonsPendingReplies(t *testing.T) {
	h := newHarness(t, nil)

	// A delayed command with no trigger stays pending.
	corr := h.submit(dispatch.OpWaitForAppModalDialog, nil)

	// Drain a sentinel reply so the wait is known to be registered.
	env := h.call(dispatch.OpGetBrowserWindowCount, nil)
	require.Equal(t, reply.StatusSuccess, env.Status)

	h.sess.Close()

	env = h.recv()
	require.Equal(t, corr, env.CorrelationID)
	require.Equal(t, reply.StatusAsyncAbandoned, env.Status)

	require.ErrorIs(t, h.sess.Submit(dispatch.OpGetBrowserWindowCount, nil, 99, h.ch), session.ErrClosed)
}

func TestCloseAfterLoopStops(t *testing.T) {
	h := newHarness(t, nil)

	corr := h.submit(dispatch.OpWaitForAppModalDialog, nil)
	env := h.call(dispatch.OpGetBrowserWindowCount, nil)
	require.Equal(t, reply.StatusSuccess, env.Status)

	// Stop the loop first; teardown still runs and abandons the wait.
	h.stop()
	select {
	case <-h.done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop did not exit")
	}
	h.sess.Close()

	env = h.recv()
	require.Equal(t, corr, env.CorrelationID)
	require.Equal(t, reply.StatusAsyncAbandoned, env.Status)

	require.ErrorIs(t, h.sess.Submit(dispatch.OpGetBrowserWindowCount, nil, 99, h.ch), session.ErrClosed)
}

func TestLastBrowserClosedCallback(t *testing.T) {
	lastClosed := make(chan struct{})
	h := newHarness(t, func(o *session.Options) {
		o.OnLastBrowserClosed = func() { close(lastClosed) }
	})

	env := h.call(dispatch.OpGetBrowserWindow, map[string]int{"index": 0})
	var b struct {
		Handle int `json:"handle"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &b))

	env = h.call(dispatch.OpCloseBrowser, map[string]any{"browser": b.Handle})
	require.Equal(t, reply.StatusSuccess, env.Status)
	var closed struct {
		ClosingApp bool `json:"closing_app"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &closed))
	require.True(t, closed.ClosingApp)

	select {
	case <-lastClosed:
	case <-time.After(5 * time.Second):
		t.Fatal("last-browser callback never fired")
	}
}

// Two sessions on one shell must serialize through the shared loop: every
// shell mutation and observer delivery happens on its goroutine, never on a
// per-connection one. Run under the race detector this fails if any session
// touches the shell from its own goroutine.
func TestSessionsShareOneOwningLoop(t *testing.T) {
	hub := eventhub.NewHub()
	shell := app.NewSimShell(hub)
	shell.AutoFinishLoads = true

	loop := session.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	loopDone := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(loopDone)
	}()
	t.Cleanup(func() {
		cancel()
		<-loopDone
	})

	newSess := func() (*session.Session, *chanChannel) {
		ch := &chanChannel{ch: make(chan reply.Envelope, 16)}
		sess := session.New(session.Options{Shell: shell, Hub: hub, Channel: ch, Loop: loop})
		t.Cleanup(sess.Close)
		return sess, ch
	}

	call := func(sess *session.Session, ch *chanChannel, corr uint64, op dispatch.Opcode, payload any) (reply.Envelope, error) {
		var raw json.RawMessage
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return reply.Envelope{}, err
			}
			raw = data
		}
		if err := sess.Submit(op, raw, corr, ch); err != nil {
			return reply.Envelope{}, err
		}
		select {
		case env := <-ch.ch:
			if env.CorrelationID != corr {
				return env, fmt.Errorf("correlation = %d, want %d", env.CorrelationID, corr)
			}
			return env, nil
		case <-time.After(10 * time.Second):
			return reply.Envelope{}, fmt.Errorf("timed out waiting for reply %d", corr)
		}
	}

	// Each driver repeatedly opens a popup window, reads the window count,
	// and closes its window again, mutating shared shell state throughout.
	driver := func(sess *session.Session, ch *chanChannel) error {
		var corr uint64
		for i := 0; i < 20; i++ {
			corr++
			env, err := call(sess, ch, corr, dispatch.OpOpenNewBrowserWindow, map[string]any{"type": app.BrowserTypePopup})
			if err != nil {
				return err
			}
			if env.Status != reply.StatusSuccess {
				return fmt.Errorf("open window: status %s", env.Status)
			}
			var b struct {
				Handle int `json:"handle"`
			}
			if err := json.Unmarshal(env.Payload, &b); err != nil {
				return err
			}

			corr++
			if env, err = call(sess, ch, corr, dispatch.OpGetBrowserWindowCount, nil); err != nil {
				return err
			}
			if env.Status != reply.StatusSuccess {
				return fmt.Errorf("window count: status %s", env.Status)
			}

			corr++
			if env, err = call(sess, ch, corr, dispatch.OpCloseBrowser, map[string]int{"browser": b.Handle}); err != nil {
				return err
			}
			if env.Status != reply.StatusSuccess {
				return fmt.Errorf("close window: status %s", env.Status)
			}
		}
		return nil
	}

	sessA, chA := newSess()
	sessB, chB := newSess()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() { defer wg.Done(); errs[0] = driver(sessA, chA) }()
	go func() { defer wg.Done(); errs[1] = driver(sessB, chB) }()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	require.Equal(t, 1, shell.BrowserCount())
}
