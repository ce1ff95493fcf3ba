package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/docpipe/internal/common"
	"github.com/ternarybob/docpipe/internal/interfaces"
	"github.com/ternarybob/docpipe/internal/models"
	"github.com/ternarybob/docpipe/internal/services/events"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// writeWait bounds a single write so one stalled client cannot hold up
// delivery to the others
const writeWait = 10 * time.Second

// throttledEvents may be dropped under load; terminal events are always sent
var throttledEvents = map[interfaces.EventType]bool{
	interfaces.EventOperationStarted: true,
	interfaces.EventArtifactCreated:  true,
}

// WSMessage is the envelope of every message pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// wsClient is one connection; writes are serialised by mu.
// An empty sessionID receives events of every session.
type wsClient struct {
	mu        sync.Mutex
	sessionID string
}

// WebSocketHandler streams operation events to connected clients
type WebSocketHandler struct {
	logger           arbor.ILogger
	clients          map[*websocket.Conn]*wsClient
	mu               sync.RWMutex
	eventService     interfaces.EventService
	allowedEvents    map[string]bool // Whitelist of events to broadcast (empty = allow all)
	throttleInterval time.Duration
	throttleMu       sync.Mutex
	throttlers       map[string]*rate.Limiter // keyed by event type and session
	writeWait        time.Duration
	serverInstanceID string                   // Unique ID generated on startup - clients use to detect server restart
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]*wsClient),
		eventService:     eventService,
		allowedEvents:    make(map[string]bool),
		throttlers:       make(map[string]*rate.Limiter),
		writeWait:        writeWait,
		serverInstanceID: uuid.New().String(),
	}

	if config != nil {
		for _, eventType := range config.AllowedEvents {
			h.allowedEvents[eventType] = true
		}
		if config.ThrottleInterval != "" {
			if d, err := time.ParseDuration(config.ThrottleInterval); err == nil {
				h.throttleInterval = d
			} else {
				logger.Warn().
					Err(err).
					Str("interval", config.ThrottleInterval).
					Msg("Failed to parse throttle interval - throttling disabled")
			}
		}
	}

	if eventService != nil {
		h.SubscribeToEvents()
	}

	logger.Debug().
		Str("server_instance_id", h.serverInstanceID).
		Int("allowed_events", len(h.allowedEvents)).
		Dur("throttle_interval", h.throttleInterval).
		Msg("WebSocket handler initialized")

	return h
}

// SubscribeToEvents bridges every operation and session event to the clients
func (h *WebSocketHandler) SubscribeToEvents() {
	for _, eventType := range events.AllEventTypes {
		if err := h.eventService.Subscribe(eventType, h.handleEvent); err != nil {
			h.logger.Warn().Err(err).Str("event_type", string(eventType)).Msg("Failed to subscribe WebSocket handler")
		}
	}
}

// HandleWebSocket upgrades the connection. The optional "session" query
// parameter restricts the stream to one session.
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := &wsClient{sessionID: r.URL.Query().Get("session")}

	h.mu.Lock()
	h.clients[conn] = client
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("clients", clientCount).Str("session_id", client.sessionID).Msg("WebSocket client connected")

	h.send(conn, client, WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Int("clients", clientCount).Msg("WebSocket client disconnected")
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

func (h *WebSocketHandler) handleEvent(ctx context.Context, event interfaces.Event) error {
	payload, ok := event.Payload.(models.OperationEvent)
	if !ok {
		h.logger.Warn().Str("event_type", string(event.Type)).Msg("Unexpected event payload type")
		return nil
	}
	if event.Type == interfaces.EventSessionEnded {
		defer h.dropThrottlers(payload.SessionID)
	}
	if !h.shouldBroadcast(event.Type, payload.SessionID) {
		return nil
	}
	h.Broadcast(payload.SessionID, WSMessage{Type: string(event.Type), Payload: payload})
	return nil
}

// dropThrottlers forgets the limiters of an ended session
func (h *WebSocketHandler) dropThrottlers(sessionID string) {
	h.throttleMu.Lock()
	defer h.throttleMu.Unlock()
	for eventType := range throttledEvents {
		delete(h.throttlers, string(eventType)+":"+sessionID)
	}
}

// shouldBroadcast applies the whitelist then the per-session throttle
func (h *WebSocketHandler) shouldBroadcast(eventType interfaces.EventType, sessionID string) bool {
	if len(h.allowedEvents) > 0 && !h.allowedEvents[string(eventType)] {
		return false
	}
	if h.throttleInterval <= 0 || !throttledEvents[eventType] {
		return true
	}

	key := string(eventType) + ":" + sessionID
	h.throttleMu.Lock()
	limiter, ok := h.throttlers[key]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.throttleInterval), 1)
		h.throttlers[key] = limiter
	}
	h.throttleMu.Unlock()

	return limiter.Allow()
}

// Broadcast sends msg to every client watching sessionID or all sessions
func (h *WebSocketHandler) Broadcast(sessionID string, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients))
	clients := make([]*wsClient, 0, len(h.clients))
	for conn, client := range h.clients {
		if client.sessionID != "" && client.sessionID != sessionID {
			continue
		}
		conns = append(conns, conn)
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for i, conn := range conns {
		h.write(conn, clients[i], data)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHandler) send(conn *websocket.Conn, client *wsClient, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}
	h.write(conn, client, data)
}

func (h *WebSocketHandler) write(conn *websocket.Conn, client *wsClient, data []byte) {
	client.mu.Lock()
	conn.SetWriteDeadline(time.Now().Add(h.writeWait))
	err := conn.WriteMessage(websocket.TextMessage, data)
	client.mu.Unlock()

	if err != nil {
		// a timed out connection is unusable; closing it ends the read loop,
		// which unregisters the client
		h.logger.Warn().Err(err).Msg("Failed to send message to WebSocket client")
		conn.Close()
	}
}
