package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/IANDYI/glucose-diary/internal/core/ports"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var (
	feedConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diary_feed_connections",
			Help: "Current number of live diary feed connections",
		},
		[]string{"role"},
	)

	feedBroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diary_feed_broadcasts_total",
			Help: "Total number of diary changes pushed to the live feed",
		},
		[]string{"type", "outcome"},
	)
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one live feed subscriber
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	userID   string
	userRole string
}

// Hub keeps the live feed subscribers and pushes diary changes to them
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run is the hub's main loop. It returns when ctx is cancelled, after
// closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			feedConnections.WithLabelValues(client.userRole).Inc()
			h.logger.Info("live feed client connected",
				zap.String("user_id", client.userID),
				zap.String("role", client.userRole),
				zap.Int("clients", total),
			)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()
			for _, client := range slow {
				h.logger.Warn("dropping slow live feed client", zap.String("user_id", client.userID))
				h.remove(client)
			}

		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client.send)
				feedConnections.WithLabelValues(client.userRole).Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	feedConnections.WithLabelValues(client.userRole).Dec()
	h.logger.Info("live feed client disconnected",
		zap.String("user_id", client.userID),
		zap.Int("clients", len(h.clients)),
	)
}

// NotifyDiaryChange queues change for every connected client.
// When the queue is full the change is dropped rather than blocking the writer.
func (h *Hub) NotifyDiaryChange(change ports.DiaryChange) {
	message, err := json.Marshal(change)
	if err != nil {
		h.logger.Error("failed to marshal diary change", zap.String("type", string(change.Type)), zap.Error(err))
		feedBroadcastsTotal.WithLabelValues(string(change.Type), "failed").Inc()
		return
	}

	select {
	case h.broadcast <- message:
		feedBroadcastsTotal.WithLabelValues(string(change.Type), "queued").Inc()
	default:
		h.logger.Warn("live feed queue full, dropping change", zap.String("type", string(change.Type)))
		feedBroadcastsTotal.WithLabelValues(string(change.Type), "dropped").Inc()
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request to a WebSocket and subscribes it to the feed.
// The caller must have authenticated the request.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID, role string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := &Client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		userRole: role,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()
	return nil
}

// readPump drains the connection so pongs and close frames are handled
func (c *Client) readPump() {
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Info("live feed read error", zap.String("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

// writePump pushes queued changes to the connection, one JSON document per
// frame, and keeps it alive with pings.
func (c *Client) writePump() {
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

var _ ports.ChangeNotifier = (*Hub)(nil)
