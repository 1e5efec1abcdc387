package ws

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	EventStateSync = "state_sync"

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Message is the envelope for everything sent to a subscriber. Seq increases
// per session so clients can drop duplicates after a resync.
type Message struct {
	Type      string      `json:"type"`
	SessionID uint        `json:"session_id"`
	Seq       uint64      `json:"seq"`
	Data      interface{} `json:"data"`
}

// Inbound is a frame sent by a client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID uint
	closeOnce sync.Once
}

type topic struct {
	mu      sync.Mutex
	seq     uint64
	clients map[*Client]bool
}

type Hub struct {
	mu     sync.Mutex
	topics map[uint]*topic
}

func NewHub() *Hub {
	return &Hub{topics: make(map[uint]*topic)}
}

func (h *Hub) topic(sessionID uint) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[sessionID]
	if !ok {
		t = &topic{clients: make(map[*Client]bool)}
		h.topics[sessionID] = t
	}
	return t
}

// Subscribe registers conn on the session topic and queues a full state_sync
// built by snapshot before any later event. The snapshot runs under the
// topic lock so no event can slip in between.
func (h *Hub) Subscribe(sessionID uint, conn *websocket.Conn, snapshot func() (interface{}, error)) (*Client, error) {
	t := h.topic(sessionID)
	c := &Client{conn: conn, send: make(chan []byte, sendBuffer), sessionID: sessionID}

	t.mu.Lock()
	state, err := snapshot()
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	data, err := json.Marshal(Message{Type: EventStateSync, SessionID: sessionID, Seq: t.seq, Data: state})
	if err != nil {
		t.mu.Unlock()
		return nil, err
	}
	c.send <- data
	t.clients[c] = true
	count := len(t.clients)
	t.mu.Unlock()

	go c.writePump()
	slog.Info("ws: client connected", "session_id", sessionID, "total", count)
	return c, nil
}

func (h *Hub) lookup(sessionID uint) (*topic, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.topics[sessionID]
	return t, ok
}

func (h *Hub) Unsubscribe(c *Client) {
	if t, ok := h.lookup(c.sessionID); ok {
		t.mu.Lock()
		delete(t.clients, c)
		t.mu.Unlock()
	}
	c.close()
	slog.Info("ws: client disconnected", "session_id", c.sessionID)
}

// Drop disconnects every subscriber of a session and forgets its topic.
func (h *Hub) Drop(sessionID uint) {
	h.mu.Lock()
	t, ok := h.topics[sessionID]
	delete(h.topics, sessionID)
	h.mu.Unlock()
	if !ok {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for c := range t.clients {
		delete(t.clients, c)
		c.close()
	}
}

// Publish fans an event out to every subscriber of the session. A client
// whose buffer is full is dropped; it resyncs when it reconnects.
func (h *Hub) Publish(sessionID uint, eventType string, data interface{}) {
	t := h.topic(sessionID)
	t.mu.Lock()
	defer t.mu.Unlock()

	t.seq++
	payload, err := json.Marshal(Message{Type: eventType, SessionID: sessionID, Seq: t.seq, Data: data})
	if err != nil {
		slog.Error("ws: marshal error", "session_id", sessionID, "type", eventType, "error", err)
		return
	}

	for c := range t.clients {
		select {
		case c.send <- payload:
		default:
			slog.Warn("ws: dropping slow client", "session_id", sessionID)
			delete(t.clients, c)
			c.close()
		}
	}
}

// Subscribers reports how many clients are connected to a session.
func (h *Hub) Subscribers(sessionID uint) int {
	t, ok := h.lookup(sessionID)
	if !ok {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// ReadLoop blocks reading frames from the client until the connection fails,
// passing each decoded frame to handle.
func (c *Client) ReadLoop(handle func(Inbound)) {
	c.conn.SetReadLimit(8 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg Inbound
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if handle != nil {
			handle(msg)
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("ws: write error", "session_id", c.sessionID, "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
