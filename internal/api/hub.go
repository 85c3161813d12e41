package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkalra/crossarb/internal/bus"
	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBufferSize = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsMessage is one websocket frame: the full set on connect ("snapshot"),
// then one frame per completed scan cycle ("update").
type wsMessage struct {
	Type          string               `json:"type"`
	Cycle         uint64               `json:"cycle"`
	Count         int                  `json:"count"`
	Ts            time.Time            `json:"ts"`
	Opportunities []models.Opportunity `json:"opportunities"`
}

func frame(kind string, set models.OpportunitySet) ([]byte, error) {
	if set.Opportunities == nil {
		set.Opportunities = []models.Opportunity{}
	}
	return json.Marshal(wsMessage{
		Type:          kind,
		Cycle:         set.Cycle,
		Count:         len(set.Opportunities),
		Ts:            set.TsDetected,
		Opportunities: set.Opportunities,
	})
}

// Hub fans scan cycles out to websocket clients. Each client has a bounded
// send buffer; a client that cannot keep up loses frames, never the hub.
type Hub struct {
	scanner Scanner

	mu         sync.RWMutex
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan []byte
}

func NewHub(sc Scanner) *Hub {
	return &Hub{
		scanner:    sc,
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan []byte, 64),
	}
}

// Run bridges the opportunities topic to connected clients until ctx ends.
func (h *Hub) Run(ctx context.Context, b bus.Bus, topic string) error {
	ch, err := b.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			logging.Infof("[ws] client connected (total=%d)", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			logging.Infof("[ws] client disconnected (total=%d)", n)

		case payload, ok := <-ch:
			if !ok {
				h.closeAll()
				return nil
			}
			h.push(payload)
		}
	}
}

// push converts a published cycle into an update frame and offers it to
// every client, dropping the frame for clients with a full buffer.
func (h *Hub) push(payload []byte) {
	var set models.OpportunitySet
	if err := json.Unmarshal(payload, &set); err != nil {
		logging.Errorf("[ws] unmarshal cycle: %v", err)
		return
	}
	msg, err := frame("update", set)
	if err != nil {
		logging.Errorf("[ws] frame cycle %d: %v", set.Cycle, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			logging.Warnf("[ws] dropping cycle %d for slow client", set.Cycle)
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

// Handle upgrades the request and streams: snapshot first, then updates.
func (h *Hub) Handle(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Errorf("[ws] upgrade: %v", err)
		return
	}

	c := &wsClient{hub: h, conn: conn, send: make(chan []byte, sendBufferSize)}

	set, _ := h.scanner.Latest(r.Context())
	if snap, err := frame("snapshot", set); err == nil {
		c.send <- snap
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}

type wsClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// readPump exists to surface disconnects and answer pings; inbound frames
// carry no commands and are discarded.
func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logging.Warnf("[ws] read: %v", err)
			}
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
