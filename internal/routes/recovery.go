package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/recovery"
)

// RegisterRecoveryRoutes wires the account recovery workflow. Creation is
// public because the caller has lost a factor; attempts are bounded both by
// the persisted counter and the rate limiter.
func RegisterRecoveryRoutes(r fiber.Router, h *recovery.Handler, attemptLimiter fiber.Handler) {
	group := r.Group("/recovery")
	group.Post("", h.CreateRecovery)
	group.Get("/:id", h.Status)
	if attemptLimiter != nil {
		group.Post("/:id/attempt", attemptLimiter, h.Attempt)
	} else {
		group.Post("/:id/attempt", h.Attempt)
	}
	group.Post("/:id/complete", h.Complete)
	group.Post("/:id/expire", h.Expire)
}

// RegisterPhoneChangeRoute wires phone change creation for authenticated
// users. Attempt and completion reuse the shared recovery endpoints.
func RegisterPhoneChangeRoute(r fiber.Router, h *recovery.Handler) {
	r.Post("/phone-change", h.CreatePhoneChange)
}
