package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

const defaultWriteTimeout = 10 * time.Second

// Frame types exchanged with the bridge.
const (
	frameMessage = "message"
	frameSend    = "send"
	framePing    = "ping"
	framePong    = "pong"
)

// frame is the JSON envelope on the bridge socket.
type frame struct {
	Type     string `json:"type"`
	ID       string `json:"id,omitempty"`
	From     string `json:"from,omitempty"`
	To       string `json:"to,omitempty"`
	Text     string `json:"text,omitempty"`
	HasMedia bool   `json:"has_media,omitempty"`
}

// Hub accepts the chat bridge over a WebSocket and implements Sender on top of it.
// Only one bridge is active at a time; a new connection replaces the old one.
type Hub struct {
	mu           sync.RWMutex
	active       *websocket.Conn
	onInbound    InboundFunc
	writeTimeout time.Duration
}

// NewHub creates a hub delivering inbound messages to onInbound.
func NewHub(onInbound InboundFunc) *Hub {
	return &Hub{
		onInbound:    onInbound,
		writeTimeout: defaultWriteTimeout,
	}
}

// SetInbound replaces the inbound callback.
func (h *Hub) SetInbound(fn InboundFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onInbound = fn
}

// Connected reports whether a bridge is attached.
func (h *Hub) Connected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active != nil
}

// register makes conn the active bridge. The replaced connection is closed
// after the lock is released; its close handshake must not stall Send.
func (h *Hub) register(conn *websocket.Conn) {
	h.mu.Lock()
	old := h.active
	h.active = conn
	h.mu.Unlock()
	slog.Info("Chat bridge registered")

	if old != nil && old != conn {
		_ = old.Close(websocket.StatusNormalClosure, "bridge replaced")
	}
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.active == conn {
		h.active = nil
		slog.Info("Chat bridge unregistered")
	}
}

// Send writes an outbound message frame to the bridge.
func (h *Hub) Send(ctx context.Context, address, text string) error {
	h.mu.RLock()
	conn := h.active
	h.mu.RUnlock()
	if conn == nil {
		return ErrNoBridge
	}

	ctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
	defer cancel()

	if err := writeJSON(ctx, conn, frame{Type: frameSend, ID: uuid.NewString(), To: address, Text: text}); err != nil {
		return fmt.Errorf("send to %s: %w", address, err)
	}
	return nil
}

// ServeHTTP implements http.Handler for the bridge WebSocket upgrade.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	slog.Info("Bridge connection request", "ip", r.RemoteAddr)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "bridge session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	h.register(ws)
	defer h.unregister(ws)

	h.readLoop(r.Context(), ws)
	slog.Info("Bridge session ended")
}

func (h *Hub) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by bridge")
			} else {
				slog.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var msg frame
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Warn("Ignoring malformed bridge frame", "error", err)
			continue
		}

		switch msg.Type {
		case frameMessage:
			if msg.From == "" {
				slog.Warn("Ignoring bridge message without sender")
				continue
			}
			h.mu.RLock()
			onInbound := h.onInbound
			h.mu.RUnlock()
			if onInbound != nil {
				onInbound(ctx, Inbound{From: msg.From, Text: msg.Text, HasMedia: msg.HasMedia})
			}
		case framePing:
			if err := writeJSON(ctx, ws, frame{Type: framePong}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Debug("Ignoring bridge frame", "type", msg.Type)
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}

var _ Sender = (*Hub)(nil)
