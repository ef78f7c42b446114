package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/gtpesantren22/wasender/internal/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// StatusFn returns the current connection state and last pairing QR so new
// subscribers can catch up immediately.
type StatusFn func() (connected bool, qr string)

// client is one registered observer. Gorilla conns allow at most one
// concurrent writer, so every write goes through mu.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub fans session events out to all connected dashboard observers. Events
// arrive over a redis pub/sub channel published by the session manager.
type Hub struct {
	mu    sync.RWMutex
	conns map[*websocket.Conn]*client

	pubsub  *redis.Client
	channel string
	status  StatusFn
	log     *zap.Logger
}

func NewHub(pubsubClient *redis.Client, channel string, status StatusFn, log *zap.Logger) *Hub {
	if channel == "" {
		channel = EventsChannel
	}
	return &Hub{
		conns:   make(map[*websocket.Conn]*client),
		pubsub:  pubsubClient,
		channel: channel,
		status:  status,
		log:     log,
	}
}

// Run subscribes to the event channel and rebroadcasts every payload until
// ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	pubsub := h.pubsub.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload))
		}
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := h.register(conn)
	h.sendSnapshot(c)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// sendSnapshot pushes the current state to a subscriber that connected after
// the events were published.
func (h *Hub) sendSnapshot(c *client) {
	connected, qr := h.status()

	h.writeEvent(c, models.WSEvent{Event: "connection-status", Data: connected})

	var qrData interface{}
	if qr != "" {
		qrData = qr
	}
	h.writeEvent(c, models.WSEvent{Event: "qr", Data: qrData})
}

func (h *Hub) writeEvent(c *client, evt models.WSEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	c.write(data)
}

func (h *Hub) register(conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &client{conn: conn}
	h.conns[conn] = c
	h.log.Info("dashboard observer connected", zap.Int("total", len(h.conns)))
	return c
}

func (h *Hub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn.Close()
	delete(h.conns, conn)
	h.log.Info("dashboard observer disconnected", zap.Int("total", len(h.conns)))
}

func (h *Hub) broadcast(data []byte) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.conns))
	for _, c := range h.conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.write(data)
	}
}
