package api

import (
	"net/http"
	"sync"

	"neon_checkin_miniapp/pkg/auth"
	"neon_checkin_miniapp/pkg/logger"
	"go.uber.org/zap"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// Event is one reward-feed message pushed to connected clients.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// EventHub fans check-in and referral events out to WebSocket
// subscribers. Slow clients are dropped rather than buffered.
type EventHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
}

func NewEventHub() *EventHub {
	return &EventHub{
		clients: make(map[*websocket.Conn]chan []byte),
	}
}

func (h *EventHub) Publish(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Logger().Error("failed to encode event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, ch := range h.clients {
		select {
		case ch <- payload:
		default:
			delete(h.clients, conn)
			close(ch)
			conn.Close()
		}
	}
}

func (h *EventHub) add(conn *websocket.Conn) chan []byte {
	ch := make(chan []byte, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *EventHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	if ch, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(ch)
	}
	h.mu.Unlock()
	conn.Close()
}

type eventRoutes struct {
	hub *EventHub
	a   *auth.TelegramAuth
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func NewEventRoutes(handler *gin.RouterGroup, hub *EventHub, a *auth.TelegramAuth) {
	r := &eventRoutes{hub: hub, a: a}
	h := handler.Group("/events")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.GET("/ws", r.handleWebSocket)
	}
}

func (r *eventRoutes) handleWebSocket(c *gin.Context) {
	log := logger.Logger()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	ch := r.hub.add(conn)
	defer r.hub.remove(conn)

	// Discard inbound frames; the feed is one-way. Reading also surfaces
	// the close frame that ends the goroutine below.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				r.hub.remove(conn)
				return
			}
		}
	}()

	for payload := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Info("dropping event subscriber", zap.Error(err))
			return
		}
	}
}
