package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/deposit"
)

// RegisterDepositRoutes wires the deposit lifecycle endpoints reachable during
// signup, before the user holds a session. The deposit id is the capability;
// state machine checks and the attempt limiter guard the rest.
func RegisterDepositRoutes(r fiber.Router, h *deposit.Handler, verifyLimiter fiber.Handler) {
	group := r.Group("/deposits")
	group.Get("/:id", h.Status)
	group.Post("/:id/confirm", h.Confirm)
	if verifyLimiter != nil {
		group.Post("/:id/verify", verifyLimiter, h.Verify)
	} else {
		group.Post("/:id/verify", h.Verify)
	}
	group.Post("/:id/refund", h.Refund)
	group.Post("/:id/abandon", h.Abandon)
}

// RegisterProtectedDepositRoutes wires signup completion, which marks the
// deposit terminal and requires an authenticated caller.
func RegisterProtectedDepositRoutes(r fiber.Router, h *deposit.Handler) {
	r.Post("/deposits/:id/complete", h.Complete)
}
