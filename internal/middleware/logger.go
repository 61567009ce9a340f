package middleware

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/digital-shop/bot/internal/metrics"
)

// LoggerMiddleware logs every request and feeds the HTTP metrics.
func LoggerMiddleware(log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// отдаём ошибку в fiber ErrorHandler заранее, чтобы знать итоговый статус
			if hErr := c.App().ErrorHandler(c, err); hErr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}

		latency := time.Since(start)
		status := c.Response().StatusCode()
		route := c.Route().Path // шаблон маршрута, например /api/v1/orders/:id

		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Observe(latency.Seconds())

		reqID, _ := c.Locals(CtxRequestID).(string)
		fields := []zap.Field{
			zap.String("request_id", reqID),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", latency),
			zap.String("ip", c.IP()),
		}
		// locals выставляет AuthMiddleware, он отработал внутри c.Next()
		if accountID := GetAccountID(c); accountID != 0 {
			fields = append(fields,
				zap.Int64("account_id", accountID),
				zap.Int64("telegram_user_id", GetTelegramUserID(c)),
			)
		}
		log.Info("request", fields...)

		return err
	}
}
