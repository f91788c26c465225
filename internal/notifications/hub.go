package notifications

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pulsefeed/pulsefeed/pkg/metrics"
	"go.uber.org/zap"
)

const (
	writeTimeout   = 10 * time.Second
	pingInterval   = 30 * time.Second
	sendBufferSize = 32
)

// Hub fans notifications out to connected websocket sessions. A user may hold
// multiple sessions; a session whose send buffer is full is dropped.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[uuid.UUID]map[*client]struct{}
	closed  bool
}

type client struct {
	hub    *Hub
	userID uuid.UUID
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub creates a new notification hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[uuid.UUID]map[*client]struct{}),
	}
}

// HandleConnection upgrades the request and registers the session for the user
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request, userID uuid.UUID) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		hub:    h,
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return nil
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*client]struct{})
	}
	h.clients[userID][c] = struct{}{}
	h.mu.Unlock()

	metrics.WebsocketClients.Inc()
	h.logger.Debug("websocket client connected", zap.String("user_id", userID.String()))

	go c.writePump()
	go c.readPump()
	return nil
}

// Push serializes the payload and delivers it to every session of the user
func (h *Hub) Push(userID uuid.UUID, payload interface{}) {
	msg, err := json.Marshal(payload)
	if err != nil {
		h.logger.Warn("failed to marshal notification payload", zap.Error(err))
		return
	}

	h.mu.RLock()
	sessions := h.clients[userID]
	stale := make([]*client, 0)
	for c := range sessions {
		select {
		case c.send <- msg:
		default:
			// Slow consumer: drop the session rather than block delivery.
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.remove(c)
	}
}

// Close tears down every session
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	all := make([]*client, 0)
	for _, sessions := range h.clients {
		for c := range sessions {
			all = append(all, c)
		}
	}
	h.clients = make(map[uuid.UUID]map[*client]struct{})
	h.mu.Unlock()

	for _, c := range all {
		close(c.send)
		c.conn.Close()
		metrics.WebsocketClients.Dec()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	sessions, ok := h.clients[c.userID]
	if ok {
		if _, present := sessions[c]; !present {
			h.mu.Unlock()
			return
		}
		delete(sessions, c)
		if len(sessions) == 0 {
			delete(h.clients, c.userID)
		}
	}
	h.mu.Unlock()
	if ok {
		close(c.send)
		c.conn.Close()
		metrics.WebsocketClients.Dec()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeTimeout))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.hub.remove(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.remove(c)
				return
			}
		}
	}
}

// readPump discards inbound frames; the stream is one-way. It exists to
// observe close frames and release the session.
func (c *client) readPump() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.hub.remove(c)
			return
		}
	}
}
