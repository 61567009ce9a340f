package handlers

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/auth"
	"github.com/digital-shop/bot/internal/events"
	"github.com/digital-shop/bot/internal/rbac"
)

const (
	wsWriteTimeout = 5 * time.Second
	wsPingInterval = 30 * time.Second
	wsSendBuffer   = 32
)

// wsClient is one admin console. Only its writer goroutine touches the conn
// for writing; the hub just queues frames.
type wsClient struct {
	adminID int64
	send    chan []byte
}

// WSHub streams the order feed to connected admin consoles.
type WSHub struct {
	jwtSecret  string
	authz      *rbac.Authorizer
	subscriber events.Subscriber
	log        *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]*wsClient
}

func NewWSHub(jwtSecret string, authz *rbac.Authorizer, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:  jwtSecret,
		authz:      authz,
		subscriber: subscriber,
		log:        log,
		clients:    make(map[*websocket.Conn]*wsClient),
	}
}

// Start subscribes the hub to the order feed. A failed subscription only
// disables the live feed.
func (h *WSHub) Start(ctx context.Context) {
	err := h.subscriber.Subscribe(ctx, events.StreamOrders, h.broadcast)
	if err != nil {
		h.log.Error("failed to subscribe to order feed", zap.Error(err))
	}
}

// broadcast never blocks on the network: publishers call it inline.
// A console whose queue is full is disconnected.
func (h *WSHub) broadcast(event events.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("ws: marshal event", zap.String("type", event.Type), zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Debug("ws: dropping slow client", zap.Int64("admin_id", c.adminID))
			delete(h.clients, conn)
			close(c.send)
		}
	}
}

// Connected returns the number of open connections.
func (h *WSHub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WSHub) register(conn *websocket.Conn, adminID int64) *wsClient {
	c := &wsClient{adminID: adminID, send: make(chan []byte, wsSendBuffer)}
	h.mu.Lock()
	h.clients[conn] = c
	h.mu.Unlock()
	return c
}

func (h *WSHub) unregister(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(c.send)
	}
}

// writeLoop drains the client queue and pings. It closes the conn when the
// queue is closed or a write fails, which ends the read loop in HandleWS.
func (h *WSHub) writeLoop(conn *websocket.Conn, c *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				h.log.Debug("ws: write failed", zap.Int64("admin_id", c.adminID), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// WSUpgradeMiddleware rejects plain HTTP requests to the feed.
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	}
}

func (h *WSHub) reject(conn *websocket.Conn, reason string) {
	msg, _ := json.Marshal(fiber.Map{"error": reason})
	_ = conn.WriteMessage(websocket.TextMessage, msg)
	_ = conn.Close()
}

// HandleWS authenticates the admin by the ?token= JWT and keeps the
// connection registered until the client goes away.
func (h *WSHub) HandleWS(conn *websocket.Conn) {
	token := conn.Query("token")
	if token == "" {
		h.reject(conn, "missing token")
		return
	}
	claims, err := auth.ParseJWT(h.jwtSecret, token)
	if err != nil {
		h.reject(conn, "invalid token")
		return
	}
	if !h.authz.Can(claims.TelegramUserID, rbac.PermViewOrders) {
		h.reject(conn, "forbidden")
		return
	}

	c := h.register(conn, claims.TelegramUserID)
	h.log.Info("ws: admin connected", zap.Int64("admin_id", claims.TelegramUserID))

	done := make(chan struct{})
	go func() {
		h.writeLoop(conn, c)
		close(done)
	}()

	// клиент ничего не шлёт, читаем только чтобы заметить закрытие
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.unregister(conn)
	<-done
}
