// Package ws adapts gorilla/websocket connections to the hub's Conn
// contract: one read pump and one write pump per connection, a
// buffered outbound channel, and a closed dispatch over the inbound
// event vocabulary.
package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatline/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

// netConn is an indirection over *websocket.Conn to ease testing.
type netConn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Conn is a transport endpoint. It implements core.Conn.
type Conn struct {
	id   core.ConnID
	sock netConn
	send chan core.Frame
	once sync.Once
}

func newConn(id core.ConnID, sock netConn) *Conn {
	return &Conn{
		id:   id,
		sock: sock,
		send: make(chan core.Frame, 256),
	}
}

func (c *Conn) ID() core.ConnID { return c.id }

func (c *Conn) TrySend(f core.Frame) error {
	select {
	case c.send <- f:
		return nil
	default:
		return ErrBackpressure
	}
}

// Close shuts the socket. The send channel is never closed: broadcast
// snapshots may still hold this Conn and call TrySend; stray frames
// just sit in the buffer and are dropped with the connection.
func (c *Conn) Close() {
	c.once.Do(func() {
		_ = c.sock.Close()
	})
}

// writePump drains the send channel onto the wire and keeps the
// connection alive with pings. It owns the socket's write side.
func (c *Conn) writePump(ctx context.Context, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Debug().Str("module", "adapters.ws").Str("conn", string(c.id)).Err(err).Msg("set write deadline")
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Str("module", "adapters.ws").Str("conn", string(c.id)).Err(err).Msg("write failed")
				return
			}
		case <-ticker.C:
			if err := c.sock.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
