package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-sfc/internal/broadcast"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sfc/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-sfc/internal/recording"
)

// WebSocket message types.
const (
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeSnapshot = "snapshot"
	WSTypeEvent    = "event"
	WSTypeError    = "error"

	// wsSendBufferSize is the per-client outbound message buffer size.
	wsSendBufferSize = 256
)

// errClientGone is returned by Send once a client has disconnected, which
// removes it from the broadcaster.
var errClientGone = errors.New("api: websocket client disconnected")

// WSMessage represents a message sent to/from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// Hub tracks connected WebSocket clients so they can be counted and
// disconnected on shutdown.
type Hub struct {
	cfg     config.WebSocketConfig
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex
}

// WSClient is one connected WebSocket client streaming the events of a
// single subscription key. It implements broadcast.Subscriber.
type WSClient struct {
	hub      *Hub
	conn     *websocket.Conn
	key      broadcast.Key
	snapshot func() (broadcast.Snapshot, bool)

	mu     sync.RWMutex
	send   chan []byte
	closed bool
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// NewHub creates a new WebSocket hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		cfg:     cfg,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until the context is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "key", client.key, "clients", h.ClientCount())
}

// Unregister removes a client from the hub and closes its send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.close()
	h.logger.Debug("websocket client disconnected", "key", client.key, "clients", h.ClientCount())
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll disconnects all clients so their pumps exit.
func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
		delete(h.clients, client)
	}
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
		if client.conn != nil {
			client.conn.Close()
		}
	}
}

// handleDesignWebSocket streams the events of every run of a design.
func (s *Server) handleDesignWebSocket(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.designs.Get(r.Context(), id); err != nil {
		s.writeDomainError(w, err, "failed to get design")
		return
	}

	s.serveEvents(w, r, broadcast.DesignKey(id),
		func(c *WSClient) { s.manager.SubscribeDesign(id, c) },
		func() (broadcast.Snapshot, bool) { return s.manager.Status(id) },
	)
}

// handleRunWebSocket streams the events of one run. The run must be live,
// remembered by the broadcaster, or recorded.
func (s *Server) handleRunWebSocket(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, ok := s.manager.RunStatus(runID); !ok {
		if _, err := s.runs.GetRun(r.Context(), runID); err != nil {
			if errors.Is(err, recording.ErrRunNotFound) {
				writeNotFound(w, "run not found")
				return
			}
			s.writeDomainError(w, err, "failed to get run")
			return
		}
	}

	s.serveEvents(w, r, broadcast.RunKey(runID),
		func(c *WSClient) { s.manager.SubscribeRun(runID, c) },
		func() (broadcast.Snapshot, bool) { return s.manager.RunStatus(runID) },
	)
}

// serveEvents upgrades the connection, subscribes the client and sends the
// current snapshot, if any, before live events.
func (s *Server) serveEvents(w http.ResponseWriter, r *http.Request, key broadcast.Key,
	subscribe func(*WSClient), snapshot func() (broadcast.Snapshot, bool)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:      s.hub,
		conn:     conn,
		key:      key,
		snapshot: snapshot,
		send:     make(chan []byte, wsSendBufferSize),
	}
	s.hub.Register(client)
	client.sendSnapshot("")
	subscribe(client)

	go client.writePump(s.wsCfg)
	go func() {
		client.readPump(s.wsCfg)
		s.manager.Unsubscribe(key, client)
	}()
}

// Send delivers a status event to the client. Heartbeats are dropped when
// the client falls behind; any other event overflowing the buffer
// disconnects the client.
func (c *WSClient) Send(e broadcast.Event) error {
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: e.Status,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   e,
	})
	if err != nil {
		return err
	}

	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return errClientGone
	}
	select {
	case c.send <- data:
		c.mu.RUnlock()
		return nil
	default:
	}
	c.mu.RUnlock()

	if broadcast.IsHeartbeat(e) {
		return nil
	}
	c.hub.logger.Warn("websocket client too slow, disconnecting", "key", c.key)
	c.close()
	return errClientGone
}

// close marks the client closed and closes its send channel once.
func (c *WSClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readPump reads messages from the WebSocket connection.
func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			} else {
				c.hub.logger.Debug("websocket closed", "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes messages to the WebSocket connection.
func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage processes an incoming WebSocket message.
func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	case WSTypeSnapshot:
		c.sendSnapshot(msg.ID)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// sendSnapshot sends the current status snapshot. When nothing has run yet
// an unsolicited snapshot is skipped and a requested one gets an error.
func (c *WSClient) sendSnapshot(id string) {
	snap, ok := c.snapshot()
	if !ok {
		if id != "" {
			c.sendError(id, "no status available")
		}
		return
	}
	c.sendResponse(id, WSTypeSnapshot, snap)
}

// trySend queues data unless the client is closed or its buffer is full.
func (c *WSClient) trySend(data []byte) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// sendResponse sends a response message to the client.
func (c *WSClient) sendResponse(id, msgType string, payload any) {
	msg := WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// sendError sends an error message to the client.
func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
