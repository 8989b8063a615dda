package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/authmethod"
)

// RegisterAuthMethodRoutes wires auth method management for the authenticated
// user. Removal is refused by the service when it would leave fewer than the
// minimum method count.
func RegisterAuthMethodRoutes(r fiber.Router, h *authmethod.Handler) {
	group := r.Group("/auth-methods")
	group.Get("", h.List)
	group.Post("", h.Add)
	group.Delete("/:id", h.Remove)
}
