package identity

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/authmethod"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/deposit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Handler exposes the identity endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an identity HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type methodSeed struct {
	Type string `json:"type"`
	Data []byte `json:"data"`
}

type signupRequest struct {
	Phone       string       `json:"phone"`
	Biometric   string       `json:"biometric"`
	Passkey     string       `json:"passkey"`
	Address     string       `json:"address"`
	AuthMethods []methodSeed `json:"auth_methods"`
	Amount      int64        `json:"amount"`
}

// Signup onboards a new identity and opens its deposit.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var req signupRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	seeds := make([]authmethod.Seed, 0, len(req.AuthMethods))
	for _, m := range req.AuthMethods {
		seeds = append(seeds, authmethod.Seed{Type: authmethod.Type(m.Type), Data: m.Data})
	}

	result, err := h.service.Signup(c.UserContext(), SignupInput{
		Factors:     Factors{Phone: req.Phone, Biometric: req.Biometric, Passkey: req.Passkey},
		Address:     req.Address,
		AuthMethods: seeds,
		Amount:      req.Amount,
	})
	if err != nil {
		return identityError(err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"user": userJSON(result.User),
		"deposit": fiber.Map{
			"id":      result.Deposit.ID,
			"state":   result.Deposit.State,
			"amount":  result.Deposit.Amount,
			"tx_hash": result.Deposit.TxHash,
		},
	})
}

type loginRequest struct {
	Phone     string `json:"phone"`
	Biometric string `json:"biometric"`
	Passkey   string `json:"passkey"`
}

// Login proves the factors and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	user, token, err := h.service.Login(c.UserContext(), Factors{
		Phone:     req.Phone,
		Biometric: req.Biometric,
		Passkey:   req.Passkey,
	})
	if err != nil {
		return identityError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token": token,
		"user":  userJSON(user),
	})
}

// Me returns the authenticated user's record.
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing user context")
	}
	user, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		return identityError(err)
	}
	return c.Status(http.StatusOK).JSON(userJSON(user))
}

type openDepositRequest struct {
	Amount int64 `json:"amount"`
}

// OpenDeposit starts a fresh deposit cycle for the authenticated user.
func (h *Handler) OpenDeposit(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing user context")
	}
	var req openDepositRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	d, err := h.service.OpenDeposit(c.UserContext(), userID, req.Amount)
	if err != nil {
		return identityError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"id":      d.ID,
		"state":   d.State,
		"amount":  d.Amount,
		"tx_hash": d.TxHash,
	})
}

func userJSON(u User) fiber.Map {
	return fiber.Map{
		"id":         u.ID,
		"address":    u.Address,
		"commitment": u.Commitment.String(),
		"created_at": u.CreatedAt,
	}
}

func identityError(err error) error {
	var missingField authmethod.MissingFieldError
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, zk.ErrInvalidInput),
		errors.Is(err, zk.ErrMalformedInput),
		errors.Is(err, authmethod.ErrTooFewMethods),
		errors.As(err, &missingField):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrPhoneRegistered):
		return fiber.NewError(http.StatusConflict, "phone already registered")
	case errors.Is(err, ErrInvalidFactors):
		return fiber.NewError(http.StatusUnauthorized, "invalid factors")
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "user not found")
	case errors.Is(err, deposit.ErrActiveDepositExists):
		return fiber.NewError(http.StatusConflict, "an active deposit already exists")
	case errors.Is(err, deposit.ErrSubmissionFailed):
		return fiber.NewError(http.StatusBadGateway, "funding transaction failed")
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
