package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

func setupRateLimitedApp(t *testing.T, maxPerMin int) (*fiber.App, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	app := fiber.New()
	app.Post("/deposits/:id/verify", AttemptRateLimit(cache, "deposit_verify", "id", maxPerMin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}
	return app, cleanup
}

func TestAttemptRateLimitBlocksAfterCap(t *testing.T) {
	app, cleanup := setupRateLimitedApp(t, 3)
	defer cleanup()

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/deposits/dep-1/verify", strings.NewReader("{}"))
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("request %d: expected %d got %d", i+1, fiber.StatusOK, resp.StatusCode)
		}
	}

	req := httptest.NewRequest(fiber.MethodPost, "/deposits/dep-1/verify", strings.NewReader("{}"))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("fourth request: %v", err)
	}
	if resp.StatusCode != fiber.StatusTooManyRequests {
		t.Fatalf("expected %d got %d", fiber.StatusTooManyRequests, resp.StatusCode)
	}
}

func TestAttemptRateLimitKeysBySubject(t *testing.T) {
	app, cleanup := setupRateLimitedApp(t, 1)
	defer cleanup()

	first := httptest.NewRequest(fiber.MethodPost, "/deposits/dep-1/verify", strings.NewReader("{}"))
	if resp, err := app.Test(first); err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("first subject: %v status %d", err, resp.StatusCode)
	}

	// A different deposit has its own counter.
	other := httptest.NewRequest(fiber.MethodPost, "/deposits/dep-2/verify", strings.NewReader("{}"))
	if resp, err := app.Test(other); err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("second subject: %v status %d", err, resp.StatusCode)
	}
}

func TestAttemptRateLimitFailsOpenWithoutCache(t *testing.T) {
	app := fiber.New()
	app.Post("/deposits/:id/verify", AttemptRateLimit(nil, "deposit_verify", "id", 1), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(fiber.MethodPost, "/deposits/dep-1/verify", strings.NewReader("{}"))
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected pass-through without cache, got %d", resp.StatusCode)
		}
	}
}
