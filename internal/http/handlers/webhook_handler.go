package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/auth"
	"github.com/digital-shop/bot/internal/bot"
	"github.com/digital-shop/bot/internal/telegram"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

type WebhookHandler struct {
	dispatcher bot.Dispatcher
	secret     string
	log        *zap.Logger
}

func NewWebhookHandler(dispatcher bot.Dispatcher, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher, secret: secret, log: log}
}

// Handle accepts one update pushed by Telegram. Any 2xx tells Telegram the
// update was consumed, so handler failures still answer 200.
func (h *WebhookHandler) Handle(c *fiber.Ctx) error {
	if !auth.CheckWebhookSecret(c.Get(secretTokenHeader), h.secret) {
		h.log.Warn("webhook secret mismatch", zap.String("ip", c.IP()))
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	var u telegram.Update
	if err := json.Unmarshal(c.Body(), &u); err != nil {
		return badRequest(c, "invalid update")
	}

	h.dispatcher.Dispatch(c.Context(), u)
	return c.JSON(fiber.Map{"ok": true})
}
