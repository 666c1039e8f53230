// Package ws bridges market lifecycle events from the signal bus to
// WebSocket clients. Presentation consumers subscribe here instead of
// talking to Redis directly.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veridict/veridict/internal/domain"
	"github.com/veridict/veridict/internal/metrics"
)

const (
	writeWait = 10 * time.Second
	pongWait  = 60 * time.Second
	// pingPeriod must stay below pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Inbound traffic is only subscription management; anything bigger than
	// this is not a control message.
	maxMessageSize = 4096

	sendBufferSize = 256
)

// lifecycleChannels are the signal bus channels the hub bridges to clients.
var lifecycleChannels = []string{
	domain.ChannelMarketCreated,
	domain.ChannelMarketLocked,
	domain.ChannelMarketSettled,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement happens in the CORS middleware.
		return true
	},
}

// envelope wraps a bus payload with its source channel before delivery.
type envelope struct {
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// subscribeMsg is the JSON control message clients send to manage channel
// subscriptions: {"action":"subscribe","channels":["market_settled"]}.
type subscribeMsg struct {
	Action   string   `json:"action"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// broadcastMsg pairs a bus payload with its source channel for routing.
type broadcastMsg struct {
	channel string
	data    []byte
}

// Hub owns the set of connected clients and fans lifecycle events out to
// the ones subscribed to each channel.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	broadcast  chan broadcastMsg
	register   chan *client
	unregister chan *client

	mu        sync.RWMutex
	clients   map[*client]bool
	startedAt time.Time
}

// NewHub creates a hub over the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger) *Hub {
	return &Hub{
		bus:        bus,
		logger:     logger,
		broadcast:  make(chan broadcastMsg, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		startedAt:  time.Now().UTC(),
	}
}

// Run bridges every lifecycle channel and then serves the hub loop until
// the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range lifecycleChannels {
		go h.bridge(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		case msg := <-h.broadcast:
			h.fanOut(msg)
		}
	}
}

// bridge forwards one bus channel into the hub's broadcast loop.
func (h *Hub) bridge(ctx context.Context, channel string) {
	msgCh, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgCh:
			if !ok {
				h.logger.Warn("ws: bus subscription closed",
					slog.String("channel", channel),
				)
				return
			}
			h.broadcast <- broadcastMsg{channel: channel, data: data}
		}
	}
}

func (h *Hub) addClient(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Inc()
	h.logger.Info("ws: client connected", slog.Int("total_clients", total))
}

func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	total := len(h.clients)
	if h.clients[c] {
		delete(h.clients, c)
		close(c.send)
		total--
		metrics.WebSocketClients.Dec()
	}
	h.mu.Unlock()

	h.logger.Info("ws: client disconnected", slog.Int("total_clients", total))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	h.mu.Unlock()
	metrics.WebSocketClients.Set(0)
}

// fanOut wraps the payload in an envelope and queues it for every client
// subscribed to the channel. Slow clients drop messages rather than stall
// the loop.
func (h *Hub) fanOut(msg broadcastMsg) {
	data, err := json.Marshal(envelope{Channel: msg.channel, Payload: msg.data})
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.isSubscribed(msg.channel) {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and registers the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool, len(lifecycleChannels)),
	}
	// New clients receive every lifecycle channel until they narrow it down.
	for _, ch := range lifecycleChannels {
		c.subs[ch] = true
	}

	h.register <- c
	c.sendHello()

	go c.writePump()
	go c.readPump()
}

// client is one WebSocket connection and its channel subscriptions.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

func (c *client) isSubscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

// sendHello pushes a greeting envelope so clients can mark the connection
// healthy before any market event flows.
func (c *client) sendHello() {
	uptime := int64(time.Since(c.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	msg, err := json.Marshal(map[string]any{
		"channel": "hello",
		"payload": map[string]any{
			"channels":       lifecycleChannels,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

// readPump consumes control messages until the connection drops, keeping
// the read deadline alive via pongs.
func (c *client) readPump() {
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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var sub subscribeMsg
		if err := json.Unmarshal(message, &sub); err != nil || sub.Action == "" {
			continue
		}

		c.mu.Lock()
		for _, ch := range sub.Channels {
			switch sub.Action {
			case "subscribe":
				c.subs[ch] = true
			case "unsubscribe":
				delete(c.subs, ch)
			}
		}
		c.mu.Unlock()
	}
}

// writePump drains the send queue to the connection and keeps it alive with
// periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
