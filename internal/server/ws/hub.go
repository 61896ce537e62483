// Package ws implements the push channel: a hub that fans change envelopes
// out to WebSocket subscribers and to optional persistence sinks.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alanyoungcy/offerstream/internal/domain"
	"github.com/alanyoungcy/offerstream/internal/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	defaultQueueSize      = 1024
	defaultSendBufferSize = 256
	defaultSinkQueueSize  = 1024
	defaultSinkTimeout    = 5 * time.Second
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// Sink receives every envelope the hub accepts, after fan-out. Sinks run on
// their own worker so a slow sink never delays subscribers.
type Sink interface {
	Name() string
	Write(ctx context.Context, eventType domain.EventType, data []byte) error
}

// Config sizes the hub's queues. Zero fields take their defaults.
type Config struct {
	QueueSize      int
	SendBufferSize int
	SinkQueueSize  int
	SinkTimeout    time.Duration
}

// message is a marshalled envelope ready for delivery.
type message struct {
	eventType domain.EventType
	data      []byte
}

// client represents a single WebSocket connection.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the subscriber set. Publish enqueues; Run is the single fan-out
// worker that copies each message into every subscriber's send buffer.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan message
	sinkQueue  chan message
	register   chan *client
	unregister chan *client
	done       chan struct{}
	sinks      []Sink
	cfg        Config
	mu         sync.RWMutex
	logger     *slog.Logger
}

// NewHub creates a hub. Sinks may be nil.
func NewHub(logger *slog.Logger, cfg Config, sinks ...Sink) *Hub {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.SinkQueueSize <= 0 {
		cfg.SinkQueueSize = defaultSinkQueueSize
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}

	active := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			active = append(active, s)
		}
	}

	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan message, cfg.QueueSize),
		sinkQueue:  make(chan message, cfg.SinkQueueSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		sinks:      active,
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "ws")),
	}
}

// Publish marshals env once and enqueues it for fan-out. It never blocks: when
// the queue is full the envelope is dropped and logged.
func (h *Hub) Publish(env domain.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("ws: marshal envelope failed",
			slog.String("type", string(env.Type)),
			slog.String("error", err.Error()),
		)
		return
	}

	select {
	case h.broadcast <- message{eventType: env.Type, data: data}:
		metrics.HubMessages.Inc()
	default:
		metrics.HubDropped.WithLabelValues("queue_full").Inc()
		h.logger.Warn("ws: outbound queue full, dropping envelope",
			slog.String("type", string(env.Type)),
		)
	}
}

// Run starts the hub's main event loop and the sink worker. It handles client
// registration, unregistration, and message fan-out, and exits when ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if len(h.sinks) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.runSinks(ctx)
		}()
	}
	defer wg.Wait()
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			metrics.HubClients.Set(0)
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.HubClients.Set(float64(total))
			h.logger.Info("ws: client connected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", total),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.HubClients.Set(float64(total))
			h.logger.Info("ws: client disconnected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", total),
			)

		case msg := <-h.broadcast:
			h.fanout(msg)
			if len(h.sinks) > 0 {
				select {
				case h.sinkQueue <- msg:
				default:
					metrics.HubDropped.WithLabelValues("sink_queue_full").Inc()
					h.logger.Warn("ws: sink queue full, dropping envelope",
						slog.String("type", string(msg.eventType)),
					)
				}
			}
		}
	}
}

// fanout copies msg into every subscriber's buffer. A full buffer drops the
// message for that subscriber only.
func (h *Hub) fanout(msg message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- msg.data:
		default:
			metrics.HubDropped.WithLabelValues("slow_client").Inc()
			h.logger.Warn("ws: dropping message for slow client",
				slog.String("client_id", c.id),
				slog.String("type", string(msg.eventType)),
			)
		}
	}
}

func (h *Hub) runSinks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-h.sinkQueue:
			for _, s := range h.sinks {
				wctx, cancel := context.WithTimeout(ctx, h.cfg.SinkTimeout)
				err := s.Write(wctx, msg.eventType, msg.data)
				cancel()
				if err != nil {
					metrics.SinkErrors.WithLabelValues(s.Name()).Inc()
					h.logger.Error("ws: sink write failed",
						slog.String("sink", s.Name()),
						slog.String("type", string(msg.eventType)),
						slog.String("error", err.Error()),
					)
				}
			}
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.SendBufferSize),
	}

	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains inbound frames so control messages are processed. The push
// channel is one-way; data frames from clients are ignored.
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
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
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection as text
// frames and sends periodic pings for keepalive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
