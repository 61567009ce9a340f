package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/config"
	"github.com/digital-shop/bot/internal/http/handlers"
	"github.com/digital-shop/bot/internal/middleware"
)

// WebhookPath is where Telegram pushes updates.
const WebhookPath = "/telegram/webhook"

type Handlers struct {
	Webhook *handlers.WebhookHandler
	Auth    *handlers.AuthHandler
	Orders  *handlers.OrderHandler
	Meta    *handlers.MetaHandler
	WS      *handlers.WSHub
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post(WebhookPath, h.Webhook.Handle)

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitRPM, time.Minute))

	// Public
	api.Post("/auth/telegram", h.Auth.TelegramAuth)
	api.Get("/meta/products", h.Meta.GetProducts)
	api.Get("/meta/currencies", h.Meta.GetCurrencies)

	// Admin console
	admin := api.Group("", middleware.AuthMiddleware(cfg.JWTSecret, log), middleware.AdminOnly())
	admin.Get("/orders", h.Orders.ListOrders)
	admin.Get("/orders/:id", h.Orders.GetOrder)
	admin.Post("/orders/:id/confirm", h.Orders.ConfirmOrder)
	admin.Post("/orders/:id/cancel", h.Orders.CancelOrder)
	admin.Get("/orders/:id/events", h.Orders.GetOrderEvents)

	// WebSocket
	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}
