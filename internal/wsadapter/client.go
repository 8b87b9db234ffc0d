package wsadapter

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// writeWait is the maximum time allowed to write one frame to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the adapter waits for any frame from the peer
	// before considering the connection dead. Liveness rides the wire
	// protocol's own Ping/Pong (WireMessage payloads inside binary frames,
	// not WebSocket control frames), so the deadline is refreshed on every
	// frame received rather than on a native pong.
	pongWait = 60 * time.Second

	// maxMessageSize bounds the size of a single frame accepted from a peer.
	maxMessageSize = 1 << 20 // 1 MiB — entries can carry arbitrary aspect payloads.

	// sendBufferSize is the per-connection outbound queue depth. A peer
	// slower than this is disconnected rather than allowed to stall the
	// dispatch loop — the same backpressure policy the hub this adapter is
	// modeled on applies to its own per-client send channel.
	sendBufferSize = 256
)

// upgrader performs the HTTP → WebSocket handshake. Origin validation is
// left to a reverse proxy in front of the switchboard, matching the
// deployment assumption this adapter is modeled on.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// client is one connected WebSocket peer. It runs two goroutines: readPump
// (decodes inbound frames into events) and writePump (the only goroutine
// allowed to write to conn, since gorilla/websocket connections are not
// safe for concurrent writers).
type client struct {
	id     ConnID
	conn   *websocket.Conn
	send   chan []byte
	events chan<- Event
	logger *zap.Logger
}

func newClient(id ConnID, conn *websocket.Conn, events chan<- Event, logger *zap.Logger) *client {
	return &client{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		events: events,
		logger: logger.With(zap.String("conn_id", string(id))),
	}
}

// run blocks until the connection closes, driving both pumps.
func (c *client) run() {
	go c.writePump()
	c.readPump()
}

func (c *client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn("wsadapter: failed to set read deadline", zap.Error(err))
		return
	}

	for {
		frameType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseNormalClosure,
				websocket.CloseNoStatusReceived,
			) {
				c.logger.Warn("wsadapter: unexpected close", zap.Error(err))
			}
			return
		}
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Warn("wsadapter: failed to set read deadline", zap.Error(err))
			return
		}

		isText := frameType == websocket.TextMessage
		c.events <- MessageReceived{ID: c.id, Raw: raw, IsText: isText}
		if isText {
			// Protocol is binary-only; a Text frame is a violation the core
			// will log and account for, but the socket is ours to close.
			return
		}
	}
}

func (c *client) writePump() {
	defer c.conn.Close()

	for raw := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			c.logger.Warn("wsadapter: failed to set write deadline", zap.Error(err))
			return
		}
		if err := c.conn.WriteMessage(websocket.BinaryMessage, raw); err != nil {
			c.logger.Warn("wsadapter: write error", zap.Error(err))
			return
		}
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// enqueue offers raw to the client's send buffer without blocking. It
// reports whether the message was accepted — callers treat a full buffer
// as a sign the peer is too slow and close the connection.
func (c *client) enqueue(raw []byte) bool {
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}
