package eventhub

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// RelayConfig configures the NATS event relay.
type RelayConfig struct {
	// URL is the NATS server URL (e.g. "nats://localhost:4222").
	URL string

	// SubjectPrefix is prepended to event kinds, e.g. "autobridge.event".
	SubjectPrefix string

	// Name is a client identifier for debugging/monitoring.
	Name string

	// Timeout is the connect timeout.
	Timeout time.Duration
}

// DefaultRelayConfig returns relay defaults.
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "autobridge.event",
		Name:          "autobridge",
		Timeout:       10 * time.Second,
	}
}

// relayedEvent is the wire shape mirrored onto NATS. Source objects are
// in-process references and do not travel; only the kind and the
// JSON-marshalable payload do.
type relayedEvent struct {
	ID      string          `json:"id"`
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Time    time.Time       `json:"time"`
}

// Relay mirrors every event published on a Hub onto NATS subjects so
// out-of-process collaborators can watch the bridge's event stream. The
// relay is observe-only: it never reaches back into tracker or observer
// state.
type Relay struct {
	conn   *nats.Conn
	prefix string
	owned  bool
}

// NewRelay connects to NATS and taps the hub.
func NewRelay(hub *Hub, cfg RelayConfig) (*Relay, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "autobridge.event"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.Timeout(cfg.Timeout),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	r := &Relay{conn: conn, prefix: cfg.SubjectPrefix, owned: true}
	hub.Tap(r.forward)
	return r, nil
}

// NewRelayFromConn taps the hub using an existing NATS connection. The
// caller retains ownership of the connection.
func NewRelayFromConn(hub *Hub, conn *nats.Conn, subjectPrefix string) *Relay {
	if subjectPrefix == "" {
		subjectPrefix = "autobridge.event"
	}
	r := &Relay{conn: conn, prefix: subjectPrefix}
	hub.Tap(r.forward)
	return r
}

func (r *Relay) forward(ev Event) {
	var raw json.RawMessage
	if ev.Payload != nil {
		data, err := json.Marshal(ev.Payload)
		if err != nil {
			return
		}
		raw = data
	}
	out := relayedEvent{
		ID:      uuid.NewString(),
		Kind:    ev.Kind,
		Payload: raw,
		Time:    time.Now().UTC(),
	}
	data, err := json.Marshal(out)
	if err != nil {
		return
	}
	// Best effort; a slow or absent broker must never stall event delivery
	// on the owning thread.
	_ = r.conn.Publish(fmt.Sprintf("%s.%s", r.prefix, ev.Kind), data)
}

// Close releases the relay's NATS connection if the relay owns it.
func (r *Relay) Close() {
	if r.owned && r.conn != nil {
		r.conn.Close()
	}
}
