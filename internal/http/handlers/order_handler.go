package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/bot"
	"github.com/digital-shop/bot/internal/http/dto"
	"github.com/digital-shop/bot/internal/middleware"
	"github.com/digital-shop/bot/internal/models"
	"github.com/digital-shop/bot/internal/services"
	"github.com/digital-shop/bot/internal/store"
)

// OrderAdmin performs admin actions together with their chat notifications.
type OrderAdmin interface {
	ConfirmAndDeliver(ctx context.Context, adminID, orderID, userID int64) (*bot.ConfirmResult, error)
	CancelAndNotify(ctx context.Context, adminID, orderID int64) (*models.OrderWithAccount, error)
}

type OrderHandler struct {
	orders *services.OrderService
	admin  OrderAdmin
	log    *zap.Logger
}

func NewOrderHandler(orders *services.OrderService, admin OrderAdmin, log *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, admin: admin, log: log}
}

func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	filter := store.OrderFilter{Limit: 20}

	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	if v := c.Query("status"); v != "" {
		st := models.OrderStatus(v)
		if !st.Valid() {
			return badRequest(c, "unknown status")
		}
		filter.Status = &st
	}
	if v := c.Query("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid account_id")
		}
		filter.AccountID = &id
	}

	orders, err := h.orders.ListOrders(c.Context(), middleware.GetTelegramUserID(c), filter)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	if orders == nil {
		orders = []models.OrderWithAccount{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: dto.ListResponse{Items: orders, Limit: filter.Limit, Offset: filter.Offset}})
}

func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid order id")
	}

	order, err := h.orders.GetOrder(c.Context(), middleware.GetTelegramUserID(c), int64(id))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

func (h *OrderHandler) ConfirmOrder(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid order id")
	}
	var req dto.ConfirmOrderRequest
	if err := c.BodyParser(&req); err != nil || req.UserID == 0 {
		return badRequest(c, "user_id is required")
	}

	res, err := h.admin.ConfirmAndDeliver(c.Context(), middleware.GetTelegramUserID(c), int64(id), req.UserID)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	out := dto.ConfirmResponse{
		Order:          res.Grant.Order,
		AlreadyGranted: res.Grant.AlreadyGranted,
		Delivered:      res.DeliveryErr == nil,
	}
	if res.DeliveryErr != nil {
		out.DeliveryError = res.DeliveryErr.Error()
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: out})
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid order id")
	}

	order, err := h.admin.CancelAndNotify(c.Context(), middleware.GetTelegramUserID(c), int64(id))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: order})
}

// GetOrderEvents returns the audit trail of one order.
func (h *OrderHandler) GetOrderEvents(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return badRequest(c, "invalid order id")
	}

	adminID := middleware.GetTelegramUserID(c)
	if _, err := h.orders.GetOrder(c.Context(), adminID, int64(id)); err != nil {
		return serviceError(c, h.log, err)
	}
	trail, err := h.orders.OrderEvents(c.Context(), adminID, int64(id))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	if trail == nil {
		trail = []models.AuditLog{}
	}
	return c.JSON(dto.SuccessResponse{OK: true, Data: trail})
}
