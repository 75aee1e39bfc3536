// Package hmrhub pushes HMR messages to browser clients over WebSocket.
package hmrhub

import (
	"context"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/kiln/internal/core/ports"
	"go.trai.ch/zerr"
)

var _ ports.Broadcaster = (*Hub)(nil)

// sendBuffer is the number of messages queued per client before it is
// considered too slow and disconnected.
const sendBuffer = 16

// Hub tracks connected dev clients and fans messages out to them.
type Hub struct {
	logger  ports.Logger
	version string
	origins []string

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	conn *websocket.Conn
	send chan domain.HMRMessage

	mu     sync.Mutex
	closed bool
}

// push queues msg without blocking. It reports false when the queue is full.
func (c *client) push(msg domain.HMRMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// NewHub creates a Hub. The version is sent to every client on connect.
// Origins restricts the accepted Origin headers; by default only same-host
// and localhost pages may connect.
func NewHub(logger ports.Logger, version string, origins ...string) *Hub {
	if len(origins) == 0 {
		origins = []string{"localhost:*", "127.0.0.1:*"}
	}
	return &Hub{
		logger:  logger,
		version: version,
		origins: origins,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the connection until the client
// leaves or the hub is closed.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err.Error())
		return
	}
	defer conn.CloseNow() //nolint:errcheck // Connection is gone either way

	c := &client{conn: conn, send: make(chan domain.HMRMessage, sendBuffer)}
	if !h.register(c) {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}
	defer h.unregister(c)

	ctx := conn.CloseRead(r.Context())
	hello := domain.HMRMessage{
		Type:    domain.MessageConnected,
		Payload: domain.ConnectedPayload{Version: h.version},
	}
	if err := wsjson.Write(ctx, conn, hello); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = conn.Close(websocket.StatusNormalClosure, "")
				return
			}
			if err := wsjson.Write(ctx, conn, msg); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Broadcast queues msg for every connected client. Clients whose queue is
// full are disconnected.
func (h *Hub) Broadcast(ctx context.Context, msg domain.HMRMessage) error {
	if err := ctx.Err(); err != nil {
		return zerr.Wrap(err, "broadcast cancelled")
	}

	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		if !c.push(msg) {
			h.logger.Warn("dropping slow hmr client")
			h.unregister(c)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.close()
	}
}
