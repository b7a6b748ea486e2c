package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Pinaire1/jujitsu-app/internal/services"
)

const (
	MessageWelcome  = "WELCOME"
	MessagePing     = "PING"
	MessagePong     = "PONG"
	MessageEvent    = "EVENT"
	MessageComplete = "COMPLETE"
	MessageFailed   = "FAILED"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
	sendBuffer = 256
)

type Message struct {
	Type       string `json:"type"`
	AnalysisID string `json:"analysis_id,omitempty"`
	ClientID   string `json:"client_id,omitempty"`
	Payload    any    `json:"payload,omitempty"`
	Timestamp  int64  `json:"timestamp"`
}

type wsClient struct {
	conn       *websocket.Conn
	id         string
	analysisID string
	send       chan Message
	closeOnce  sync.Once
}

func (c *wsClient) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

// Hub fans analysis progress out to websocket clients. A client subscribes
// to one analysis with ?analysis_id= and receives only its messages.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*wsClient
	upgrader websocket.Upgrader
	metrics  *services.Metrics
	logger   *zap.Logger
}

// NewHub accepts a nil checkOrigin, which allows every origin.
func NewHub(checkOrigin func(*http.Request) bool, metrics *services.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		clients: make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		metrics: metrics,
		logger:  logger.With(zap.String("component", "ws")),
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	// Client ids are server-assigned and unique per connection.
	clientID := "client-" + uuid.NewString()
	client := &wsClient{
		conn:       conn,
		id:         clientID,
		analysisID: r.URL.Query().Get("analysis_id"),
		send:       make(chan Message, sendBuffer),
	}

	h.register(client)
	defer h.unregister(client)

	go h.writePump(client)

	h.trySend(client, Message{
		Type:       MessageWelcome,
		ClientID:   clientID,
		AnalysisID: client.analysisID,
		Timestamp:  time.Now().Unix(),
		Payload:    map[string]string{"message": "Connected to jujitsu-app", "version": "1.0"},
	})

	h.readPump(client)
}

func (h *Hub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.IncrementWebSocketConnections()
	}
	h.logger.Info("websocket client connected",
		zap.String("client_id", c.id),
		zap.String("analysis_id", c.analysisID),
	)
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	if cur, ok := h.clients[c.id]; ok && cur == c {
		delete(h.clients, c.id)
	}
	c.close()
	h.mu.Unlock()

	_ = c.conn.Close()
	if h.metrics != nil {
		h.metrics.DecrementWebSocketConnections()
	}
	h.logger.Info("websocket client disconnected", zap.String("client_id", c.id))
}

func (h *Hub) readPump(c *wsClient) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed", zap.String("client_id", c.id), zap.Error(err))
				if h.metrics != nil {
					h.metrics.IncrementWebSocketErrors()
				}
			}
			return
		}

		switch msg.Type {
		case MessagePing:
			h.trySend(c, Message{Type: MessagePong, ClientID: c.id, Timestamp: time.Now().Unix()})
		default:
			h.logger.Debug("unknown websocket message", zap.String("client_id", c.id), zap.String("type", msg.Type))
		}
	}
}

func (h *Hub) writePump(c *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				if h.metrics != nil {
					h.metrics.IncrementWebSocketErrors()
				}
				return
			}
			if h.metrics != nil {
				h.metrics.IncrementWebSocketMessages()
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// trySend drops the message when the client is not keeping up.
func (h *Hub) trySend(c *wsClient, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if cur, ok := h.clients[c.id]; !ok || cur != c {
		return
	}
	h.deliver(c, msg)
}

// deliver must be called with mu held.
func (h *Hub) deliver(c *wsClient, msg Message) {
	select {
	case c.send <- msg:
	default:
		h.logger.Warn("websocket client too slow, dropping message",
			zap.String("client_id", c.id),
			zap.String("type", msg.Type),
		)
		if h.metrics != nil {
			h.metrics.IncrementWebSocketErrors()
		}
	}
}

// Publish sends msg to every client subscribed to analysisID.
func (h *Hub) Publish(analysisID string, msg Message) {
	msg.AnalysisID = analysisID
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		if c.analysisID == analysisID {
			h.deliver(c, msg)
		}
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		c.close()
		_ = c.conn.Close()
		h.logger.Debug("closed websocket client", zap.String("client_id", id))
	}
	h.clients = make(map[string]*wsClient)
}
