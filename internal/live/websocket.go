package live

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/neonspire/docqa/internal/domain"
	"github.com/neonspire/docqa/internal/identity"
)

const writeTimeout = 5 * time.Second

// StateSource returns the current state of a session.
type StateSource interface {
	Snapshot(ctx context.Context, sessionID string) (domain.Session, error)
}

// Handler upgrades /ws requests and streams session state.
type Handler struct {
	hub           *Hub
	states        StateSource
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub, states StateSource, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		hub:           hub,
		states:        states,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

type wsMessage struct {
	Type string `json:"type"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	if sessionID == "" {
		http.Error(w, "missing session", http.StatusUnauthorized)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()

	c := h.hub.Register(sessionID, ws)
	defer h.hub.Unregister(sessionID, c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := h.sendCurrent(ctx, ws, sessionID); err != nil {
		slog.Debug("Failed to send initial state", "error", err, "session_id", sessionID)
		return
	}

	go func() {
		defer cancel()
		h.writeLoop(ctx, ws, c)
	}()
	h.readLoop(ctx, ws, c, sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *Handler) sendCurrent(ctx context.Context, ws *websocket.Conn, sessionID string) error {
	session, err := h.states.Snapshot(ctx, sessionID)
	if err != nil {
		return err
	}
	msg, err := h.hub.StateFor(session)
	if err != nil {
		return err
	}
	return writeJSON(ctx, ws, msg)
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, c *Client, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || ctx.Err() != nil {
				slog.Debug("WebSocket closed", "session_id", sessionID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ping":
			select {
			case c.send <- []byte(`{"type":"pong"}`):
			default:
			}
		case "refresh":
			if err := h.sendCurrent(ctx, ws, sessionID); err != nil {
				slog.Debug("Failed to refresh state", "error", err, "session_id", sessionID)
			}
		}
	}
}

func (h *Handler) writeLoop(ctx context.Context, ws *websocket.Conn, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("WebSocket write error", "error", err, "conn_id", c.id)
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}
