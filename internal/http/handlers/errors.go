package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/http/dto"
	"github.com/digital-shop/bot/internal/middleware"
	"github.com/digital-shop/bot/internal/models"
	"github.com/digital-shop/bot/internal/services"
)

// serviceError maps the service error taxonomy onto HTTP statuses.
func serviceError(c *fiber.Ctx, log *zap.Logger, err error) error {
	status := fiber.StatusInternalServerError
	msg := "internal server error"

	switch {
	case errors.Is(err, services.ErrUnauthorized):
		status, msg = fiber.StatusForbidden, "forbidden"
	case errors.Is(err, services.ErrOrderNotFound):
		status, msg = fiber.StatusNotFound, "order not found"
	case errors.Is(err, services.ErrOrderClosed),
		errors.Is(err, services.ErrOrderAccountMismatch),
		errors.Is(err, models.ErrInvalidTransition):
		status, msg = fiber.StatusConflict, err.Error()
	default:
		log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	}

	return c.Status(status).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: msg, RequestID: middleware.GetRequestID(c)})
}
