package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/auth"
	"github.com/digital-shop/bot/internal/config"
	"github.com/digital-shop/bot/internal/http/dto"
	"github.com/digital-shop/bot/internal/rbac"
	"github.com/digital-shop/bot/internal/services"
)

type AuthHandler struct {
	orders *services.OrderService
	authz  *rbac.Authorizer
	cfg    *config.Config
	log    *zap.Logger
}

func NewAuthHandler(orders *services.OrderService, authz *rbac.Authorizer, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{orders: orders, authz: authz, cfg: cfg, log: log}
}

// TelegramAuth exchanges WebApp initData for a console token.
func (h *AuthHandler) TelegramAuth(c *fiber.Ctx) error {
	var req dto.AuthTelegramRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.InitData == "" {
		return badRequest(c, "init_data is required")
	}

	tgUser, err := auth.ParseWebAppUser(req.InitData, h.cfg.WebAppSecret, h.cfg.InitDataMaxAge)
	if err != nil {
		h.log.Debug("telegram auth validation failed", zap.Error(err))
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: err.Error()})
	}

	var handle *string
	if tgUser.Username != "" {
		handle = &tgUser.Username
	}
	acc, err := h.orders.Touch(c.Context(), services.Actor{ExternalID: tgUser.ID, Handle: handle})
	if err != nil {
		return serviceError(c, h.log, err)
	}

	role := h.authz.Role(acc.ExternalID)
	token, err := auth.GenerateJWT(h.cfg.JWTSecret, acc.ID, acc.ExternalID, role, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to generate jwt", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "internal server error"})
	}

	return c.JSON(dto.AuthResponse{Token: token, Role: role, User: acc})
}
