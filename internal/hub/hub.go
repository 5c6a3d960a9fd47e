// ABOUTME: Session supervisor: accepts websocket connections and drives the session lifecycle
// ABOUTME: Owns the active session set; disconnects flow through the presence registry

package hub

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Artemidza/ckam-messenger-v1.01/internal/presence"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/protocol"
	"github.com/Artemidza/ckam-messenger-v1.01/internal/store"
)

// Hub accepts new connections, creates one session per connection, and
// removes sessions when their transport closes.
type Hub struct {
	registry      *presence.Registry
	conversations *store.Conversations
	router        *Router
	upgrader      websocket.Upgrader

	mu     sync.Mutex
	active map[*Client]struct{}

	logger *slog.Logger
}

// New creates a Hub over the given registry and conversation store.
func New(registry *presence.Registry, conversations *store.Conversations, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		registry:      registry,
		conversations: conversations,
		router:        NewRouter(registry, logger),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		active: make(map[*Client]struct{}),
		logger: logger.With("component", "hub"),
	}
}

// ServeWS upgrades an HTTP request to a websocket and starts the session.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
		sessionID: uuid.New().String(),
	}
	client.logger = h.logger.With("session_id", client.sessionID)

	h.mu.Lock()
	h.active[client] = struct{}{}
	total := len(h.active)
	h.mu.Unlock()

	client.logger.Debug("session opened", "active", total)

	go client.writePump()
	go client.readPump()
}

// drop moves a session to Closed: the presence mapping is removed if this
// session still owns it, and only then is the offline transition announced.
func (h *Hub) drop(c *Client) {
	c.Close()

	if identity := c.Identity(); identity != "" {
		if h.registry.Disconnect(context.Background(), identity, c) {
			h.router.SendToAll(protocol.NewUserStatus(identity, false, time.Now().UnixMilli()))
		}
	}

	h.mu.Lock()
	delete(h.active, c)
	total := len(h.active)
	h.mu.Unlock()

	c.logger.Debug("session closed", "active", total)
}

// ActiveSessions returns the number of live sessions, authenticated or not.
func (h *Hub) ActiveSessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

// Close tears down every active session. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.active))
	for c := range h.active {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.logger.Info("hub closed", "sessions", len(clients))
}
