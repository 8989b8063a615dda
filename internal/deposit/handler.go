package deposit

import (
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Handler exposes the deposit lifecycle endpoints. Deposits are addressed by
// identifier; opening one is part of signup and lives with the identity
// endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a deposit handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Status reports the deposit and its confirmation count.
func (h *Handler) Status(c *fiber.Ctx) error {
	d, confirmations, err := h.service.Status(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(depositJSON(d, confirmations))
}

type confirmRequest struct {
	TxHash        string `json:"tx_hash"`
	SenderAddress string `json:"sender_address"`
	Confirmations *int   `json:"confirmations"`
}

// Confirm advances the deposit past the confirmation threshold. With a
// confirmation count in the body the report is applied as observed, the way
// a chain watcher callback delivers it; without one the provider is asked.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}

	if req.Confirmations != nil {
		d, err := h.service.RecordDeposit(c.UserContext(), c.Params("id"), req.TxHash, req.SenderAddress, *req.Confirmations)
		if err != nil {
			return httpError(err)
		}
		return c.Status(http.StatusOK).JSON(depositJSON(d, *req.Confirmations))
	}

	d, confirmations, err := h.service.Confirm(c.UserContext(), c.Params("id"), req.SenderAddress)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(depositJSON(d, confirmations))
}

type verifyRequest struct {
	Factors *factorsPayload `json:"factors"`
	Proof   *proofPayload   `json:"proof"`
}

type factorsPayload struct {
	Phone     string `json:"phone"`
	Biometric string `json:"biometric"`
	Passkey   string `json:"passkey"`
}

type proofPayload struct {
	Payload    string `json:"payload"`
	Commitment string `json:"commitment"`
	Valid      bool   `json:"valid"`
}

// Verify runs one verification attempt. The caller sends either the raw
// factors, which are digested server-side and never stored, or a previously
// derived proof object in hex form.
func (h *Handler) Verify(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if (req.Factors == nil) == (req.Proof == nil) {
		return fiber.NewError(http.StatusBadRequest, "send either factors or a proof")
	}

	var (
		d   Deposit
		err error
	)
	if req.Factors != nil {
		factors := zk.CanonicalFactors(req.Factors.Phone, req.Factors.Biometric, req.Factors.Passkey)
		d, err = h.service.AttemptVerificationWithFactors(c.UserContext(), c.Params("id"), factors)
	} else {
		proof, perr := parseProof(*req.Proof)
		if perr != nil {
			return fiber.NewError(http.StatusBadRequest, perr.Error())
		}
		d, err = h.service.AttemptVerification(c.UserContext(), c.Params("id"), proof)
	}
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(depositJSON(d, 0))
}

type refundRequest struct {
	OwnerAddress string `json:"owner_address"`
}

// Refund spends the deposit UTXO back to the owner.
func (h *Handler) Refund(c *fiber.Ctx) error {
	var req refundRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	d, err := h.service.IssueRefund(c.UserContext(), c.Params("id"), req.OwnerAddress)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(depositJSON(d, 0))
}

// Abandon cancels the deposit cycle.
func (h *Handler) Abandon(c *fiber.Ctx) error {
	d, err := h.service.Abandon(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(depositJSON(d, 0))
}

// Complete closes a verified deposit as a finished signup.
func (h *Handler) Complete(c *fiber.Ctx) error {
	d, err := h.service.CompleteSignup(c.UserContext(), c.Params("id"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(depositJSON(d, 0))
}

func parseProof(p proofPayload) (zk.Proof, error) {
	payload, err := hex.DecodeString(p.Payload)
	if err != nil {
		return zk.Proof{}, errors.New("proof payload is not hex")
	}
	commitment, err := zk.ParseCommitment(p.Commitment)
	if err != nil {
		return zk.Proof{}, err
	}
	return zk.Proof{Payload: payload, BoundCommitment: commitment, Valid: p.Valid}, nil
}

func depositJSON(d Deposit, confirmations int) fiber.Map {
	m := fiber.Map{
		"id":                    d.ID,
		"user_id":               d.UserID,
		"user_address":          d.UserAddress,
		"commitment":            d.Commitment.String(),
		"amount":                d.Amount,
		"state":                 d.State,
		"tx_hash":               d.TxHash,
		"verification_attempts": d.VerificationAttempts,
		"confirmations":         confirmations,
		"created_at":            d.CreatedAt,
	}
	if d.SenderAddress != "" {
		m["sender_address"] = d.SenderAddress
	}
	if d.LastAttemptAt != nil {
		m["last_attempt_at"] = *d.LastAttemptAt
	}
	if d.RefundTxHash != "" {
		m["refund_tx_hash"] = d.RefundTxHash
	}
	if d.RefundedAt != nil {
		m["refunded_at"] = *d.RefundedAt
	}
	return m
}

func httpError(err error) error {
	var (
		stateErr    InvalidStateError
		providerErr ProviderError
	)
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "deposit not found")
	case errors.Is(err, ErrValidation),
		errors.Is(err, zk.ErrInvalidInput),
		errors.Is(err, zk.ErrMalformedInput):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrActiveDepositExists):
		return fiber.NewError(http.StatusConflict, "an active deposit already exists")
	case errors.Is(err, ErrInsufficientConfirmations):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrStateConflict):
		return fiber.NewError(http.StatusConflict, "deposit changed concurrently, retry")
	case errors.As(err, &stateErr):
		return fiber.NewError(http.StatusConflict, stateErr.Error())
	case errors.Is(err, ErrProofRejected):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrAttemptsExhausted):
		return fiber.NewError(http.StatusForbidden, "verification attempts exhausted")
	case errors.Is(err, ErrUtxoNotFound):
		return fiber.NewError(http.StatusConflict, "no refundable utxo for this deposit")
	case errors.Is(err, ErrSubmissionFailed):
		return fiber.NewError(http.StatusBadGateway, "transaction submission failed")
	case errors.As(err, &providerErr):
		return fiber.NewError(http.StatusBadGateway, providerErr.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
