package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Logger returns a zap-based request logging middleware.
func Logger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		path := c.Path()
		method := c.Method()

		err := c.Next()

		statusCode := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			statusCode = fe.Code
		}
		latency := time.Since(start)

		logger.Info("request",
			zap.Int("status", statusCode),
			zap.Duration("latency", latency),
			zap.String("method", method),
			zap.String("path", path),
			zap.String("client_ip", c.IP()),
		)
		return err
	}
}
