package session

import (
	"context"
	"sync"
)

const defaultInboxSize = 64

// Loop is the owning goroutine for one application shell. Every session on
// the shell posts its work here, so shell state, handle trackers and
// observers are only ever touched from a single goroutine no matter how
// many drivers are connected.
type Loop struct {
	inbox chan func()
	done  chan struct{}
	once  sync.Once

	// straggler serializes closures that still have to execute after the
	// loop has exited, session teardown in particular.
	straggler sync.Mutex
}

// NewLoop creates a loop. Run must be called for posted work to make
// progress.
func NewLoop() *Loop {
	return &Loop{
		inbox: make(chan func(), defaultInboxSize),
		done:  make(chan struct{}),
	}
}

// Run executes posted closures until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-l.inbox:
			fn()
		}
	}
}

// Post queues one closure. Safe to call from any goroutine; returns
// ErrClosed once the loop has exited.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	select {
	case l.inbox <- fn:
		return nil
	case <-l.done:
		return ErrClosed
	}
}

// run executes fn on the loop and waits for it to finish. If the loop has
// already exited, or exits with fn still queued, fn runs on the caller's
// goroutine instead, serialized against other stragglers. By then the loop
// goroutine is gone, so ownership transfers without overlap.
func (l *Loop) run(fn func()) {
	ran := make(chan struct{})
	if err := l.Post(func() {
		defer close(ran)
		fn()
	}); err != nil {
		l.runStraggler(fn)
		return
	}
	select {
	case <-ran:
	case <-l.done:
		// The loop stopped draining before done closed, so ran can only be
		// closed already if fn executed first.
		select {
		case <-ran:
		default:
			l.runStraggler(fn)
		}
	}
}

func (l *Loop) runStraggler(fn func()) {
	l.straggler.Lock()
	defer l.straggler.Unlock()
	fn()
}
