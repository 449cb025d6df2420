// Package session runs automation channels. Every command, event and reply
// for a shell is funneled onto that shell's single owning Loop, shared by
// all sessions, so the dispatcher, observers and handle trackers need no
// locking of their own even with several drivers connected at once.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/odvcencio/autobridge/pkg/app"
	"github.com/odvcencio/autobridge/pkg/dispatch"
	"github.com/odvcencio/autobridge/pkg/eventhub"
	"github.com/odvcencio/autobridge/pkg/history"
	"github.com/odvcencio/autobridge/pkg/reply"
)

// ErrClosed is returned when submitting to a closed session or a stopped
// loop.
var ErrClosed = errors.New("session: closed")

var activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "autobridge",
	Name:      "sessions_active_total",
	Help:      "Number of active automation sessions.",
})

// Options configures a session.
type Options struct {
	Shell   app.Shell
	Hub     *eventhub.Hub
	History *history.Store
	Channel reply.Channel
	Logger  *slog.Logger

	// Loop is the shell's owning loop. Required; all sessions sharing a
	// shell must share its loop.
	Loop *Loop

	// OnLastBrowserClosed, when set, is called after the last live browser
	// closes. Used to shut the process down when the application exits with
	// its final browser.
	OnLastBrowserClosed func()
}

// Session is one automation channel: a dispatcher plus its slice of the
// shell's owning loop.
type Session struct {
	id     string
	hub    *eventhub.Hub
	shell  app.Shell
	disp   *dispatch.Dispatcher
	logger *slog.Logger
	loop   *Loop

	done chan struct{}
	once sync.Once

	ctx    context.Context
	cancel context.CancelFunc
	tokens []eventhub.Token

	onLastBrowser func()
}

// New creates a session on the given loop. The loop must be running for
// commands to make progress.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:            ulid.Make().String(),
		hub:           opts.Hub,
		shell:         opts.Shell,
		logger:        logger,
		loop:          opts.Loop,
		done:          make(chan struct{}),
		ctx:           ctx,
		cancel:        cancel,
		onLastBrowser: opts.OnLastBrowserClosed,
	}
	s.disp = dispatch.New(opts.Shell, opts.Hub, opts.History, s.postAlways, logger, s.id)

	// Resource cleanup must run before any observer sees the closing event,
	// which hub subscription order guarantees: these subscriptions exist
	// before the session's first command can register an observer.
	s.tokens = append(s.tokens,
		opts.Hub.Subscribe(eventhub.KindTabClosed, nil, func(ev eventhub.Event) {
			s.disp.ResourceGone(ev.Source)
		}),
		opts.Hub.Subscribe(eventhub.KindBrowserClosed, nil, func(ev eventhub.Event) {
			s.disp.ResourceGone(ev.Source)
			// The closed browser is still in the live list at delivery time.
			if s.onLastBrowser != nil && s.shell.BrowserCount()-1 == 0 {
				s.onLastBrowser()
			}
		}),
	)

	activeSessions.Inc()
	logger.Info("session opened", "session", s.id)
	return s
}

// ID returns the session's identifier.
func (s *Session) ID() string {
	return s.id
}

// Dispatcher exposes the session's dispatcher, for tests.
func (s *Session) Dispatcher() *dispatch.Dispatcher {
	return s.disp
}

// Submit queues one command for dispatch on the owning loop. Safe to call
// from any goroutine; returns ErrClosed once the session is closed.
func (s *Session) Submit(op dispatch.Opcode, payload json.RawMessage, correlationID uint64, ch reply.Channel) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	return s.loop.Post(func() {
		select {
		case <-s.done:
			// Closed while queued; the driver is gone, drop the command.
			return
		default:
		}
		p := reply.NewPending(correlationID, ch)
		s.disp.Dispatch(s.ctx, op, payload, p)
	})
}

// Close tears the session down on the owning loop, abandoning any replies
// still pending. Safe to call more than once and from any goroutine.
func (s *Session) Close() {
	s.once.Do(func() {
		close(s.done)
		s.cancel()
		s.loop.run(s.teardown)
	})
}

// postAlways is the dispatcher's worker handoff. A stopped loop drops the
// closure; teardown has already resolved whatever reply it would touch.
func (s *Session) postAlways(fn func()) {
	_ = s.loop.Post(fn)
}

func (s *Session) teardown() {
	for _, tok := range s.tokens {
		s.hub.Unsubscribe(tok)
	}
	s.tokens = nil
	s.disp.Teardown()
	activeSessions.Dec()
	s.logger.Info("session closed", "session", s.id)
}
