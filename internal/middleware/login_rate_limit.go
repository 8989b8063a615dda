package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// LoginRateLimit limits login attempts per phone or IP using Redis if available.
func LoginRateLimit(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		var req struct {
			Phone string `json:"phone"`
		}
		_ = c.BodyParser(&req)
		phone := strings.TrimSpace(req.Phone)
		if phone == "" {
			phone = c.IP()
		}
		return countAttempt(c, cache, "rl:login:"+phone, maxPerMin)
	}
}

// AttemptRateLimit limits verification attempts per target entity, keyed by
// the named route parameter. Requests without the parameter fall back to the
// client IP.
func AttemptRateLimit(cache *redis.Client, scope, param string, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 10
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := c.Params(param)
		if subject == "" {
			subject = c.IP()
		}
		return countAttempt(c, cache, "rl:"+scope+":"+subject, maxPerMin)
	}
}

func countAttempt(c *fiber.Ctx, cache *redis.Client, key string, maxPerMin int) error {
	cnt, err := cache.Incr(c.UserContext(), key).Result()
	if err != nil {
		return c.Next() // fail-open on cache errors
	}
	if cnt == 1 {
		cache.Expire(c.UserContext(), key, time.Minute)
	}
	if cnt > int64(maxPerMin) {
		return fiber.NewError(http.StatusTooManyRequests, "too many attempts, try again later")
	}
	return c.Next()
}
