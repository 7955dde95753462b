// Package live pushes session state to connected browsers over WebSocket.
package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/neonspire/docqa/internal/domain"
)

const sendBufferSize = 16

// ChatRenderer renders the conversation fragment of a session.
type ChatRenderer interface {
	RenderChat(session domain.Session) (string, error)
}

// StateMessage is pushed to the browser after every state change.
type StateMessage struct {
	Type        string `json:"type"`
	HTML        string `json:"html"`
	Loading     bool   `json:"loading"`
	HasDocument bool   `json:"has_document"`
	HasFile     bool   `json:"has_file"`
}

// Client is one registered browser connection.
type Client struct {
	id   int64
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks the open connections of every session. A session may have one
// connection per browser tab.
type Hub struct {
	renderer ChatRenderer

	mu     sync.RWMutex
	active map[string]map[int64]*Client
	nextID int64
}

// NewHub creates a hub rendering with r.
func NewHub(r ChatRenderer) *Hub {
	return &Hub{
		renderer: r,
		active:   make(map[string]map[int64]*Client),
	}
}

// Register adds a connection for a session.
func (h *Hub) Register(sessionID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	c := &Client{id: h.nextID, conn: conn, send: make(chan []byte, sendBufferSize)}
	if _, exists := h.active[sessionID]; !exists {
		h.active[sessionID] = make(map[int64]*Client)
	}
	h.active[sessionID][c.id] = c
	slog.Info("Live connection registered", "session_id", sessionID, "conn_id", c.id)
	return c
}

// Unregister removes a connection. Unknown connections are ignored.
func (h *Hub) Unregister(sessionID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.active[sessionID]
	if !ok {
		return
	}
	if _, exists := clients[c.id]; !exists {
		return
	}
	delete(clients, c.id)
	if len(clients) == 0 {
		delete(h.active, sessionID)
	}
	slog.Info("Live connection unregistered", "session_id", sessionID, "conn_id", c.id)
}

// Count returns the number of open connections of a session.
func (h *Hub) Count(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active[sessionID])
}

// CloseSession terminates every connection of a session.
func (h *Hub) CloseSession(sessionID string) {
	h.mu.Lock()
	clients := h.active[sessionID]
	delete(h.active, sessionID)
	h.mu.Unlock()

	for id, c := range clients {
		_ = c.conn.Close(websocket.StatusNormalClosure, "session closed")
		slog.Info("Live connection closed", "session_id", sessionID, "conn_id", id)
	}
}

// StateFor builds the message describing session.
func (h *Hub) StateFor(session domain.Session) (StateMessage, error) {
	html, err := h.renderer.RenderChat(session)
	if err != nil {
		return StateMessage{}, err
	}
	return StateMessage{
		Type:        "state",
		HTML:        html,
		Loading:     session.Loading(),
		HasDocument: session.HasDocument(),
		HasFile:     session.HasFile(),
	}, nil
}

// Publish queues the state of session for every connection of that session.
// A connection whose buffer is full misses the update.
func (h *Hub) Publish(_ context.Context, session domain.Session) {
	h.mu.RLock()
	n := len(h.active[session.ID])
	h.mu.RUnlock()
	if n == 0 {
		return
	}

	msg, err := h.StateFor(session)
	if err != nil {
		slog.Error("Failed to render session state", "session_id", session.ID, "error", err)
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Failed to encode session state", "session_id", session.ID, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.active[session.ID] {
		select {
		case c.send <- data:
		default:
			slog.Warn("Live send buffer full, dropping update", "session_id", session.ID, "conn_id", c.id)
		}
	}
}
