package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pulse-stream-processor/models"
)

const (
	wsWriteTimeout = 200 * time.Millisecond
	wsSendBuffer   = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type     string `json:"type"`
	DeviceID string `json:"device_id"`
	Data     any    `json:"data"`
}

type wsClient struct {
	conn     *websocket.Conn
	deviceID string
	send     chan []byte
}

// Hub pushes engine output to websocket clients. A client connected with a
// device_id query parameter only receives that device's messages.
type Hub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*wsClient]struct{})}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) OnResult(deviceID string, result models.ProcessingResult) {
	h.broadcast(wsMessage{Type: "result", DeviceID: deviceID, Data: result})
}

func (h *Hub) OnMinute(deviceID string, record models.MinuteRecord) {
	h.broadcast(wsMessage{Type: "minute", DeviceID: deviceID, Data: record})
}

func (h *Hub) broadcast(msg wsMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("failed to encode websocket message", "err", err)
		return
	}
	for c := range h.clients {
		if c.deviceID != "" && c.deviceID != msg.DeviceID {
			continue
		}
		select {
		case c.send <- data:
		default:
			// slow client, drop
		}
	}
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &wsClient{
		conn:     conn,
		deviceID: r.URL.Query().Get("device_id"),
		send:     make(chan []byte, wsSendBuffer),
	}
	h.add(c)
	go c.writeLoop()

	defer func() {
		h.remove(c)
		_ = conn.Close()
	}()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *wsClient) writeLoop() {
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			_ = c.conn.Close()
			return
		}
	}
}
