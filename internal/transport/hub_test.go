package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

func dialBridge(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })

	waitFor(t, hub.Connected)
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func (h *Hub) activeConn() *websocket.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

func TestHubSendWithoutBridge(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	err := hub.Send(context.Background(), "5541999998888@s.whatsapp.net", "oi")
	if !errors.Is(err, ErrNoBridge) {
		t.Fatalf("Send = %v, want ErrNoBridge", err)
	}
}

func TestHubDeliversInboundMessages(t *testing.T) {
	t.Parallel()

	received := make(chan Inbound, 1)
	hub := NewHub(func(_ context.Context, msg Inbound) { received <- msg })
	conn := dialBridge(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload := `{"type":"message","from":"5541999998888:3@s.whatsapp.net","text":"oi","has_media":true}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(payload)); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case msg := <-received:
		if msg.From != "5541999998888:3@s.whatsapp.net" || msg.Text != "oi" || !msg.HasMedia {
			t.Fatalf("unexpected inbound: %+v", msg)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for inbound message")
	}
}

func TestHubSendWritesFrame(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	conn := dialBridge(t, hub)

	if err := hub.Send(context.Background(), "5541999998888@s.whatsapp.net", "Seu pedido saiu!"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var got frame
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != frameSend || got.To != "5541999998888@s.whatsapp.net" || got.Text != "Seu pedido saiu!" || got.ID == "" {
		t.Fatalf("unexpected frame: %+v", got)
	}
}

func TestHubAnswersPing(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	conn := dialBridge(t, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), `"pong"`) {
		t.Fatalf("expected pong, got %s", data)
	}
}

func TestHubUnregistersOnDisconnect(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	conn := dialBridge(t, hub)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	waitFor(t, func() bool { return !hub.Connected() })
}

func TestHubReplacedBridgeDoesNotBlockSend(t *testing.T) {
	t.Parallel()

	hub := NewHub(nil)
	first := dialBridge(t, hub)
	replaced := hub.activeConn()
	second := dialBridge(t, hub)
	waitFor(t, func() bool { return hub.activeConn() != replaced })

	// The first bridge has not read its close frame yet, so its close
	// handshake is still pending while the hub sends to the second.
	sendCtx, cancelSend := context.WithTimeout(context.Background(), time.Second)
	defer cancelSend()
	if err := hub.Send(sendCtx, "5541999998888@s.whatsapp.net", "oi"); err != nil {
		t.Fatalf("Send during replacement: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := second.Read(ctx)
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !strings.Contains(string(data), `"oi"`) {
		t.Fatalf("unexpected frame: %s", data)
	}

	_, _, err = first.Read(ctx)
	if got := websocket.CloseStatus(err); got != websocket.StatusNormalClosure {
		t.Fatalf("first bridge close status = %v (err %v), want normal closure", got, err)
	}
	if !hub.Connected() {
		t.Fatal("hub lost the replacement bridge")
	}
}
