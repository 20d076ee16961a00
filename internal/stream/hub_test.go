package stream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"medifind/internal/kvstore"
	"medifind/internal/state"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func dial(t *testing.T, h *Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() == 0 {
		t.Fatalf("client never registered")
	}
	return conn
}

func read(t *testing.T, conn *websocket.Conn) ControlMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ControlMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestCacheChangesReachClients(t *testing.T) {
	h := NewHub(quietLogger())
	cache := state.New(kvstore.NewMemory(), quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Attach(ctx, cache)

	conn := dial(t, h, "")
	if err := cache.SetDarkMode(ctx, true); err != nil {
		t.Fatalf("set dark mode: %v", err)
	}

	msg := read(t, conn)
	if msg.Type != "changed" || msg.Key != state.KeyDarkMode {
		t.Fatalf("expected change of %s, got %+v", state.KeyDarkMode, msg)
	}
}

func TestSubscriptionFiltersKeys(t *testing.T) {
	h := NewHub(quietLogger())
	conn := dial(t, h, "")

	if err := conn.WriteJSON(ControlMessage{Type: "subscribe", Keys: []string{"b"}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(t, conn); msg.Type != "subscribed" || !msg.Success {
		t.Fatalf("expected subscribed, got %+v", msg)
	}

	h.Publish(state.Event{Key: "a", At: time.Now()})
	h.Publish(state.Event{Key: "b", At: time.Now()})

	if msg := read(t, conn); msg.Key != "b" {
		t.Fatalf("expected only key b, got %+v", msg)
	}
}

func TestQueryKeysAndPing(t *testing.T) {
	h := NewHub(quietLogger())
	conn := dial(t, h, "?keys=x,y")

	h.Publish(state.Event{Key: "z"})
	h.Publish(state.Event{Key: "y"})
	if msg := read(t, conn); msg.Key != "y" {
		t.Fatalf("expected key y, got %+v", msg)
	}

	if err := conn.WriteJSON(ControlMessage{Type: "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(t, conn); msg.Type != "pong" {
		t.Fatalf("expected pong, got %+v", msg)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := read(t, conn); msg.Type != "error" {
		t.Fatalf("expected error reply, got %+v", msg)
	}
}

func TestDisconnectRemovesClient(t *testing.T) {
	h := NewHub(quietLogger())
	conn := dial(t, h, "")
	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Fatalf("expected client to be removed")
	}
}
