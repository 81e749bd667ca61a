package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
)

type BillingHandler struct {
	billingService  *services.BillingService
	checkoutService *services.CheckoutService
}

func NewBillingHandler(
	billingService *services.BillingService,
	checkoutService *services.CheckoutService,
) *BillingHandler {
	return &BillingHandler{
		billingService:  billingService,
		checkoutService: checkoutService,
	}
}

type subscriptionCheckoutRequest struct {
	Plan  string  `json:"plan"`
	Price float64 `json:"price"`
}

type syncRequest struct {
	SessionID string `json:"session_id"`
}

type cancelRequest struct {
	Immediate bool `json:"immediate"`
}

// StartTrial activates the 14-day free trial. 409 means the account has
// already used its one trial.
func (h *BillingHandler) StartTrial(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	profile, err := h.billingService.StartTrial(c.Context(), userID)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{
		"profile": profile,
		"flags":   services.ComputePlanFlags(profile, time.Now()),
	})
}

func (h *BillingHandler) Cancel(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req cancelRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	profile, err := h.billingService.Cancel(c.Context(), userID, req.Immediate)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{
		"profile": profile,
		"flags":   services.ComputePlanFlags(profile, time.Now()),
	})
}

func (h *BillingHandler) GetEntitlement(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	entitlement, err := h.billingService.Entitlement(c.Context(), userID)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(entitlement)
}

func (h *BillingHandler) CreateCheckout(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req subscriptionCheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Price <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "price must be greater than 0"})
	}

	session, err := h.checkoutService.CreateSubscriptionCheckout(c.Context(), userID, strings.TrimSpace(req.Plan), req.Price)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}

// SyncCheckoutSession reconciles a checkout session against the gateway.
// The frontend calls this once after the redirect; retries are harmless.
func (h *BillingHandler) SyncCheckoutSession(c *fiber.Ctx) error {
	if _, err := parseProfileUserID(c); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req syncRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if strings.TrimSpace(req.SessionID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id is required"})
	}

	result, err := h.checkoutService.SyncCheckoutSession(c.Context(), req.SessionID)
	if err != nil {
		return mapBillingError(c, err)
	}

	return c.JSON(result)
}

func mapBillingError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrTrialAlreadyUsed):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Trial already used"})
	case errors.Is(err, services.ErrSyncInFlight):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "A sync for this session is already running"})
	case errors.Is(err, services.ErrAmountMismatch):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Session amount does not match the offer"})
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Checkout session not found"})
	case errors.Is(err, services.ErrGateway):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment provider unavailable"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process billing request"})
	}
}
