package middleware

import (
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Paths hit by probes and scrapers every few seconds. Logging them buries
// the lines operators actually read.
var quietPaths = map[string]struct{}{
	"/healthz": {},
	"/metrics": {},
}

// AccessLog emits one structured log line per request with method, path,
// status, duration and client address. Domain events go to the audit trail
// instead; this is operator-facing only.
func AccessLog(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		if _, quiet := quietPaths[c.Path()]; quiet && err == nil {
			return nil
		}

		requestID, _ := c.Locals(requestIDHeader).(string)
		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", c.Response().StatusCode()),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
			return err
		}

		logger.Info("request completed", attrs...)
		return nil
	}
}
