// Package wsapi implements the /stream WebSocket feed (§6 "External
// Interfaces"): a thin transport adapter wrapping gorilla/websocket
// connections as sentinel.Subscriber so the root Bus never has to know
// about HTTP or wire framing.
package wsapi

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	sentinel "github.com/agentlens/sentinel"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Handler upgrades requests on /stream to WebSocket connections and
// registers each one with the Bus as a sentinel.Subscriber.
type Handler struct {
	bus      *sentinel.Bus
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) { h.logger = l }
}

// WithCheckOrigin overrides the upgrader's origin check. Defaults to
// allowing any origin, matching a dashboard served from a different port
// during local development.
func WithCheckOrigin(f func(*http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = f }
}

// NewHandler builds a /stream handler backed by bus.
func NewHandler(bus *sentinel.Bus, opts ...Option) *Handler {
	h := &Handler{
		bus:    bus,
		logger: slog.New(slog.DiscardHandler),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("wsapi: upgrade failed", "error", err)
		return
	}

	sub := newConnection(conn, h.logger)
	h.bus.Subscribe(r.Context(), sub)
	defer h.bus.Unsubscribe(sub.ID())

	go sub.writePump()
	sub.readPump() // blocks until the client disconnects
}

// connection adapts one WebSocket client as a sentinel.Subscriber. Sends
// are queued onto outbox and flushed by writePump so Send never blocks on
// network I/O; readPump only exists to detect client-initiated close and
// keep the connection's read deadline alive via pong handling.
type connection struct {
	id     string
	conn   *websocket.Conn
	logger *slog.Logger

	mu     sync.Mutex
	outbox chan sentinel.BusMessage
	closed bool
}

func newConnection(conn *websocket.Conn, logger *slog.Logger) *connection {
	return &connection{
		id:     sentinel.NewID(),
		conn:   conn,
		logger: logger,
		outbox: make(chan sentinel.BusMessage, sendBuffer),
	}
}

func (c *connection) ID() string { return c.id }

func (c *connection) QueueDepth() int { return len(c.outbox) }

// Send enqueues msg for delivery. It never blocks: a full outbox means the
// client is too slow to keep up, so the Bus's own high-water-mark check
// (backed by QueueDepth) should have already ejected this subscriber, but
// Send still fails fast here as a second line of defense.
func (c *connection) Send(msg sentinel.BusMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return websocket.ErrCloseSent
	}
	select {
	case c.outbox <- msg:
		return nil
	default:
		return errOutboxFull
	}
}

func (c *connection) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.outbox)
}

func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.outbox:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("wsapi: write failed, closing", "id", c.id, "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *connection) readPump() {
	defer c.close()
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

var errOutboxFull = outboxFullError{}

type outboxFullError struct{}

func (outboxFullError) Error() string { return "wsapi: subscriber outbox full" }
