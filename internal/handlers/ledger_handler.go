package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
)

type LedgerHandler struct {
	ledgerService *services.LedgerService
}

func NewLedgerHandler(ledgerService *services.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

type completeContractRequest struct {
	CustomerID int64 `json:"customer_id"`
}

type renewContractRequest struct {
	Months int `json:"months"`
}

type withdrawalRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

func (h *LedgerHandler) ListContracts(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	contracts, err := h.ledgerService.ListContracts(c.Context(), userID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"contracts": contracts})
}

func (h *LedgerHandler) GetContract(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	contractID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || contractID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid contract id"})
	}

	contract, err := h.ledgerService.GetContract(c.Context(), userID, contractID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{"contract": contract})
}

// CompleteContract settles an active engagement and credits the coach. The
// body must cite the customer the coach believes the contract is with. A
// replay answers 200 with already_completed instead of double-crediting.
func (h *LedgerHandler) CompleteContract(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only coaches can complete programs"})
	}

	coachID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	contractID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || contractID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid contract id"})
	}

	var req completeContractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.CustomerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "customer_id is required"})
	}

	result, err := h.ledgerService.CompleteProgram(c.Context(), coachID, req.CustomerID, contractID)
	if err != nil {
		if errors.Is(err, services.ErrPartialCompletion) {
			// The contract did flip; the client should retry the ledger
			// write, not the completion.
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":    "Program completed but the payout record failed; retry the ledger",
				"contract": result.Contract,
			})
		}
		return mapLedgerError(c, err)
	}

	return c.JSON(result)
}

func (h *LedgerHandler) RetryCompletionLedger(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only coaches can retry the ledger"})
	}

	coachID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	contractID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || contractID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid contract id"})
	}

	result, err := h.ledgerService.RetryCompletionLedger(c.Context(), coachID, contractID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(result)
}

func (h *LedgerHandler) RenewContract(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	contractID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || contractID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid contract id"})
	}

	var req renewContractRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Months <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "months must be greater than 0"})
	}

	contract, err := h.ledgerService.RenewContract(c.Context(), userID, contractID, req.Months)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"contract": contract})
}

func (h *LedgerHandler) ListPayouts(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only coaches have a payout ledger"})
	}

	coachID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	payouts, err := h.ledgerService.ListPayouts(c.Context(), coachID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	balance, err := h.ledgerService.AvailableBalance(c.Context(), coachID)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"payouts":                 payouts,
		"available_balance_cents": balance,
	})
}

func (h *LedgerHandler) RequestWithdrawal(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only coaches can withdraw"})
	}

	coachID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req withdrawalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if validationErr := validateWithdrawalRequest(req); validationErr != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr})
	}

	payout, err := h.ledgerService.RequestWithdrawal(c.Context(), coachID, req.AmountCents)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"payout": payout})
}

func mapLedgerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Contract is not in a completable state"})
	case errors.Is(err, services.ErrInsufficientFunds):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{"error": "Insufficient available balance"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Contract not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process ledger request"})
	}
}
