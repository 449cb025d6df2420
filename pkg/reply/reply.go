// Package reply carries command replies back to the automation driver.
// Every inbound command owns exactly one Pending reply; it is resolved on
// exactly one path (immediate success, immediate error, delayed success,
// or delayed abandonment) and never more than once.
package reply

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrChannelClosed is returned when sending on a closed channel.
	ErrChannelClosed = errors.New("reply channel closed")
)

// Status is the outcome taxonomy for a command reply.
type Status string

const (
	// StatusSuccess indicates the command completed as requested.
	StatusSuccess Status = "success"

	// StatusInvalidHandle indicates the handle was absent or resolved to the
	// wrong resource kind.
	StatusInvalidHandle Status = "invalid_handle"

	// StatusPreconditionFailed indicates the command is not currently
	// permitted on the resource (e.g. no back history).
	StatusPreconditionFailed Status = "precondition_failed"

	// StatusConcurrencyViolation indicates a second single-slot async
	// operation was attempted while one is outstanding.
	StatusConcurrencyViolation Status = "concurrency_violation"

	// StatusAsyncAbandoned indicates the correlated resource or session was
	// destroyed while the reply was still pending.
	StatusAsyncAbandoned Status = "async_abandoned"

	// StatusMalformedRequest indicates the payload failed to decode into the
	// opcode's expected shape.
	StatusMalformedRequest Status = "malformed_request"

	// StatusAuthNeeded indicates a navigation stopped at an authentication
	// prompt; the driver may follow up with a SetAuth command.
	StatusAuthNeeded Status = "auth_needed"
)

// Envelope is the wire shape of one correlated reply.
type Envelope struct {
	CorrelationID uint64          `json:"correlation_id"`
	Status        Status          `json:"status"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

// Channel transmits reply envelopes to the driver. Implementations must be
// safe for use from the owning goroutine plus worker handoff goroutines.
type Channel interface {
	Send(env Envelope) error
}

// Pending is the not-yet-sent reply for one in-flight command. It is consumed
// by Resolve: a second Resolve for the same Pending panics, since double
// sending a correlated reply indicates a core bug and must not silently
// corrupt the channel.
type Pending struct {
	corr uint64
	ch   Channel
	sent bool
}

// NewPending creates the pending reply for one request.
func NewPending(correlationID uint64, ch Channel) *Pending {
	return &Pending{corr: correlationID, ch: ch}
}

// CorrelationID returns the request correlation id.
func (p *Pending) CorrelationID() uint64 {
	return p.corr
}

// Resolved reports whether the reply has already been sent.
func (p *Pending) Resolved() bool {
	return p == nil || p.sent
}

// Resolve marshals payload and sends the reply exactly once. Payload may be
// nil for status-only replies. Resolve panics if called twice.
func (p *Pending) Resolve(status Status, payload any) {
	if p == nil {
		return
	}
	if p.sent {
		panic(fmt.Sprintf("reply: double resolve for correlation id %d", p.corr))
	}
	p.sent = true

	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			// The payload shape is under our control; a marshal failure is a
			// programming error in a handler. Send a status-only reply so the
			// driver still makes progress.
			raw = nil
		} else {
			raw = data
		}
	}
	_ = p.ch.Send(Envelope{CorrelationID: p.corr, Status: status, Payload: raw})
}
