package recovery

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Handler exposes the recovery and phone-change endpoints. Both workflows
// share the request namespace; only creation differs.
type Handler struct {
	service *Service
}

// NewHandler constructs a recovery handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	CurrentIdentifier string `json:"current_identifier"`
	NewIdentifier     string `json:"new_identifier"`
	Method            string `json:"method"`
}

// CreateRecovery opens an account recovery request. It is reachable without
// a token because the caller has, by definition, lost access.
func (h *Handler) CreateRecovery(c *fiber.Ctx) error {
	return h.create(c, KindAccountRecovery, "")
}

// CreatePhoneChange opens a phone change request for the authenticated user.
func (h *Handler) CreatePhoneChange(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing user context")
	}
	return h.create(c, KindPhoneChange, userID)
}

func (h *Handler) create(c *fiber.Ctx, kind, userID string) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	request, err := h.service.Create(c.UserContext(), CreateInput{
		Kind:              kind,
		UserID:            userID,
		CurrentIdentifier: req.CurrentIdentifier,
		NewIdentifier:     req.NewIdentifier,
		Method:            req.Method,
	})
	if err != nil {
		return recoveryError(err)
	}
	return c.Status(http.StatusCreated).JSON(requestJSON(request))
}

type attemptRequest struct {
	Code string `json:"code"`
}

// Attempt runs one code attempt against the request.
func (h *Handler) Attempt(c *fiber.Ctx) error {
	var req attemptRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	request, err := h.service.Attempt(c.UserContext(), c.Params("id"), req.Code)
	if err != nil {
		return recoveryError(err)
	}
	return c.Status(http.StatusOK).JSON(requestJSON(request))
}

// Complete applies a verified request's identifier change.
func (h *Handler) Complete(c *fiber.Ctx) error {
	request, err := h.service.Complete(c.UserContext(), c.Params("id"))
	if err != nil {
		return recoveryError(err)
	}
	return c.Status(http.StatusOK).JSON(requestJSON(request))
}

// Expire closes the request ahead of its window, for caller cancellation or
// an operator sweep.
func (h *Handler) Expire(c *fiber.Ctx) error {
	request, err := h.service.Expire(c.UserContext(), c.Params("id"))
	if err != nil {
		return recoveryError(err)
	}
	return c.Status(http.StatusOK).JSON(requestJSON(request))
}

// Status reports the request.
func (h *Handler) Status(c *fiber.Ctx) error {
	request, err := h.service.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return recoveryError(err)
	}
	return c.Status(http.StatusOK).JSON(requestJSON(request))
}

func requestJSON(r Request) fiber.Map {
	m := fiber.Map{
		"id":           r.ID,
		"kind":         r.Kind,
		"user_id":      r.UserID,
		"method":       r.Method,
		"status":       r.Status,
		"attempts":     r.Attempts,
		"max_attempts": r.MaxAttempts,
		"expires_at":   r.ExpiresAt,
		"created_at":   r.CreatedAt,
	}
	if r.CompletedAt != nil {
		m["completed_at"] = *r.CompletedAt
	}
	return m
}

func recoveryError(err error) error {
	var stateErr InvalidStateError
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "recovery request not found")
	case errors.Is(err, ErrUserNotFound):
		return fiber.NewError(http.StatusNotFound, "user not found")
	case errors.Is(err, ErrValidation), errors.Is(err, zk.ErrInvalidInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrCodeRejected):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrExpired):
		return fiber.NewError(http.StatusGone, "recovery request expired")
	case errors.Is(err, ErrAttemptsExhausted):
		return fiber.NewError(http.StatusForbidden, "recovery attempts exhausted")
	case errors.Is(err, ErrStateConflict):
		return fiber.NewError(http.StatusConflict, "request changed concurrently, retry")
	case errors.As(err, &stateErr):
		return fiber.NewError(http.StatusConflict, stateErr.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
