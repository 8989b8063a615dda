package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/identity"
)

// RegisterIdentityRoutes wires the public signup and login endpoints. Signup
// opens the refundable deposit in the same call.
func RegisterIdentityRoutes(r fiber.Router, h *identity.Handler, loginLimiter fiber.Handler) {
	r.Post("/signup", h.Signup)
	if loginLimiter != nil {
		r.Post("/login", loginLimiter, h.Login)
	} else {
		r.Post("/login", h.Login)
	}
}

// RegisterProtectedIdentityRoutes wires endpoints that require a session:
// the caller's profile and opening a fresh deposit cycle.
func RegisterProtectedIdentityRoutes(r fiber.Router, h *identity.Handler) {
	r.Get("/me", h.Me)
	r.Post("/deposits", h.OpenDeposit)
}
