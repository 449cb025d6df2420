package transport

import (
	"context"
	"encoding/json"

	"nhooyr.io/websocket"

	"github.com/odvcencio/autobridge/pkg/reply"
)

// wsChannel carries reply envelopes to one WebSocket connection. Sends are
// queued and written by a single write loop; unlike broadcast fan-out,
// replies are never dropped for a slow consumer, the sender blocks until
// the queue drains or the connection dies.
type wsChannel struct {
	ctx  context.Context
	conn *websocket.Conn
	send chan reply.Envelope
}

func newWSChannel(ctx context.Context, conn *websocket.Conn) *wsChannel {
	return &wsChannel{
		ctx:  ctx,
		conn: conn,
		send: make(chan reply.Envelope, 64),
	}
}

// Send queues one envelope. Safe from any goroutine.
func (c *wsChannel) Send(env reply.Envelope) error {
	select {
	case c.send <- env:
		repliesTotal.WithLabelValues(string(env.Status)).Inc()
		return nil
	case <-c.ctx.Done():
		return reply.ErrChannelClosed
	}
}

func (c *wsChannel) writeLoop() error {
	for {
		select {
		case env := <-c.send:
			data, err := json.Marshal(env)
			if err != nil {
				continue
			}
			writeCtx, cancel := context.WithTimeout(c.ctx, wsWriteTimeout)
			err = c.conn.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		case <-c.ctx.Done():
			return c.ctx.Err()
		}
	}
}
