// Package stream pushes state changes to connected WebSocket clients.
package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"medifind/internal/state"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 32
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// ControlMessage is exchanged in both directions as a JSON text frame.
type ControlMessage struct {
	Type    string    `json:"type"`
	Key     string    `json:"key,omitempty"`
	Keys    []string  `json:"keys,omitempty"`
	At      time.Time `json:"at,omitempty"`
	Success bool      `json:"success,omitempty"`
	Error   string    `json:"error,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan ControlMessage

	mu   sync.RWMutex
	keys map[string]bool
}

func (c *client) wants(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys) == 0 || c.keys[key]
}

func (c *client) subscribe(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			c.keys[k] = true
		}
	}
}

// Hub tracks connected clients and fans cache events out to them.
type Hub struct {
	log     logrus.FieldLogger
	clients sync.Map
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{log: log}
}

// Publish queues ev for every client subscribed to its key. Slow clients drop events.
func (h *Hub) Publish(ev state.Event) {
	msg := ControlMessage{Type: "changed", Key: ev.Key, At: ev.At}
	h.clients.Range(func(_, value interface{}) bool {
		c := value.(*client)
		if !c.wants(ev.Key) {
			return true
		}
		select {
		case c.send <- msg:
		default:
			h.log.WithField("client_id", c.id).Warn("⚠️ Client too slow, event dropped")
		}
		return true
	})
}

// Attach subscribes the hub to cache changes until ctx is done.
func (h *Hub) Attach(ctx context.Context, cache *state.Cache) {
	unsubscribe := cache.Subscribe(h.Publish)
	go func() {
		<-ctx.Done()
		unsubscribe()
	}()
}

func (h *Hub) ClientCount() int {
	n := 0
	h.clients.Range(func(_, _ interface{}) bool {
		n++
		return true
	})
	return n
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("⚠️ WebSocket upgrade failed")
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, send: make(chan ControlMessage, sendBuffer)}
	if keys := r.URL.Query().Get("keys"); keys != "" {
		c.subscribe(strings.Split(keys, ","))
	}
	h.clients.Store(c.id, c)
	h.log.WithField("client_id", c.id).Info("👤 Stream client connected")

	done := make(chan struct{})
	go h.writeLoop(c, done)
	h.readLoop(c)

	h.clients.Delete(c.id)
	close(done)
	conn.Close()
	h.log.WithField("client_id", c.id).Info("👋 Stream client disconnected")
}

func (h *Hub) readLoop(c *client) {
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		if messageType != websocket.TextMessage {
			continue
		}
		h.handleControlMessage(c, message)
	}
}

func (h *Hub) handleControlMessage(c *client, message []byte) {
	var msg ControlMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.reply(c, ControlMessage{Type: "error", Error: "invalid message"})
		return
	}

	switch msg.Type {
	case "subscribe":
		c.subscribe(msg.Keys)
		h.reply(c, ControlMessage{Type: "subscribed", Keys: msg.Keys, Success: true})
	case "ping":
		h.reply(c, ControlMessage{Type: "pong"})
	default:
		h.reply(c, ControlMessage{Type: "error", Error: "unknown message type"})
	}
}

func (h *Hub) reply(c *client, msg ControlMessage) {
	select {
	case c.send <- msg:
	default:
	}
}

// writeLoop is the only writer of the connection.
func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.conn.Close()
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
