package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/merchant-escrow/backend/internal/auth"
	"github.com/merchant-escrow/backend/internal/config"
	"github.com/merchant-escrow/backend/internal/events"
	"go.uber.org/zap"
)

// WSHub fans escrow events out to connected clients. Events carrying a
// payer or merchant identity go only to those parties; everything else
// is broadcast.
type WSHub struct {
	cfg         *config.Config
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[string][]*websocket.Conn
}

func NewWSHub(cfg *config.Config, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		cfg:         cfg,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[string][]*websocket.Conn),
	}
}

func (h *WSHub) Start(ctx context.Context) {
	_ = h.subscriber.Subscribe(ctx, events.StreamEscrow, func(event events.Event) {
		h.dispatch(event)
	})
}

func (h *WSHub) dispatch(event events.Event) {
	recipients := eventRecipients(event)
	if len(recipients) == 0 {
		h.broadcast(event)
		return
	}
	for _, identity := range recipients {
		h.SendToIdentity(identity, event)
	}
}

// eventRecipients returns the parties named in the event payload.
func eventRecipients(event events.Event) []string {
	var out []string
	seen := make(map[string]bool)
	for _, key := range []string{"payer", "merchant", "recipient", "identity"} {
		if v, ok := event.Payload[key].(string); ok && v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conns := range h.connections {
		for _, conn := range conns {
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}
}

func (h *WSHub) SendToIdentity(identity string, event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[identity] {
		_ = conn.WriteMessage(websocket.TextMessage, data)
	}
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.cfg.JWTSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	identity := claims.Identity

	h.mu.Lock()
	h.connections[identity] = append(h.connections[identity], conn)
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		conns := h.connections[identity]
		for i, c := range conns {
			if c == conn {
				h.connections[identity] = append(conns[:i], conns[i+1:]...)
				break
			}
		}
		if len(h.connections[identity]) == 0 {
			delete(h.connections, identity)
		}
		h.mu.Unlock()
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
