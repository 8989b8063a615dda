package authmethod

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes auth method endpoints. All routes require an
// authenticated user.
type Handler struct {
	service *Service
}

// NewHandler constructs an auth method HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type methodResponse struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	HasData    bool    `json:"has_data"`
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

type addMethodRequest struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func toMethodResponse(m Method) methodResponse {
	resp := methodResponse{
		ID:        m.ID,
		Type:      string(m.Type),
		HasData:   len(m.Data) > 0,
		CreatedAt: m.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if m.LastUsedAt != nil {
		used := m.LastUsedAt.UTC().Format(time.RFC3339Nano)
		resp.LastUsedAt = &used
	}
	return resp
}

// List returns the caller's registered methods. Method payloads are never
// rendered, only their presence.
func (h *Handler) List(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}

	methods, err := h.service.List(c.UserContext(), userID)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	out := make([]methodResponse, 0, len(methods))
	for _, m := range methods {
		out = append(out, toMethodResponse(m))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"methods": out})
}

// Add registers one additional method for the caller.
func (h *Handler) Add(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}

	var req addMethodRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	var data []byte
	if req.Data != "" {
		data = []byte(req.Data)
	}

	method, err := h.service.Add(c.UserContext(), userID, Seed{Type: Type(req.Type), Data: data})
	if err != nil {
		var missing MissingFieldError
		switch {
		case errors.As(err, &missing), errors.Is(err, ErrTooFewMethods):
			return fiber.NewError(http.StatusBadRequest, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.Status(http.StatusCreated).JSON(toMethodResponse(method))
}

// Remove deletes one of the caller's methods, subject to the minimum-set
// invariant.
func (h *Handler) Remove(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "authentication required")
	}

	methodID := c.Params("id")
	if err := h.service.Remove(c.UserContext(), userID, methodID); err != nil {
		switch {
		case errors.Is(err, ErrMethodNotFound):
			return fiber.NewError(http.StatusNotFound, "auth method not found")
		case errors.Is(err, ErrBelowMinimum):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}

	return c.SendStatus(http.StatusNoContent)
}
