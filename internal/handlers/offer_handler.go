package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
)

type OfferHandler struct {
	offerService    *services.OfferService
	checkoutService *services.CheckoutService
}

func NewOfferHandler(offerService *services.OfferService, checkoutService *services.CheckoutService) *OfferHandler {
	return &OfferHandler{
		offerService:    offerService,
		checkoutService: checkoutService,
	}
}

type createOfferRequest struct {
	CustomerID     int64   `json:"customer_id"`
	Price          float64 `json:"price"`
	DurationMonths int     `json:"duration_months"`
	Message        string  `json:"message"`
}

func (h *OfferHandler) CreateOffer(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "coach" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only coaches can create offers"})
	}

	coachID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req createOfferRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if validationErr := validateCreateOfferRequest(req); validationErr != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr})
	}

	offer, err := h.offerService.CreateOffer(c.Context(), coachID, services.CreateOfferInput{
		CustomerID:     req.CustomerID,
		Price:          req.Price,
		DurationMonths: req.DurationMonths,
		Message:        req.Message,
	})
	if err != nil {
		return mapOfferError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"offer": offer})
}

func (h *OfferHandler) ListOffers(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	offers, err := h.offerService.ListOffers(c.Context(), userID)
	if err != nil {
		return mapOfferError(c, err)
	}

	return c.JSON(fiber.Map{"offers": offers})
}

func (h *OfferHandler) GetOffer(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	offerID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || offerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer id"})
	}

	offer, err := h.offerService.GetOffer(c.Context(), userID, offerID)
	if err != nil {
		return mapOfferError(c, err)
	}

	return c.JSON(fiber.Map{"offer": offer})
}

// CreateCheckout opens the payment flow for a pending offer. Acceptance
// itself only happens later through the reconciler, once the gateway
// confirms the session is paid.
func (h *OfferHandler) CreateCheckout(c *fiber.Ctx) error {
	role, ok := c.Locals("role").(string)
	if !ok || role != "customer" {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Only customers can pay for offers"})
	}

	customerID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	offerID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || offerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer id"})
	}

	session, err := h.checkoutService.CreateOfferCheckout(c.Context(), customerID, offerID)
	if err != nil {
		return mapOfferError(c, err)
	}

	return c.JSON(fiber.Map{
		"session_id":   session.ID,
		"checkout_url": session.URL,
	})
}

func (h *OfferHandler) RejectOffer(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	offerID, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || offerID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid offer id"})
	}

	offer, err := h.offerService.Reject(c.Context(), userID, offerID)
	if err != nil {
		return mapOfferError(c, err)
	}

	return c.JSON(fiber.Map{"offer": offer})
}

// RejectOfferByMessage handles declines driven from the chat UI, where the
// client only knows the id of the offer card message.
func (h *OfferHandler) RejectOfferByMessage(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	messageID, err := strconv.ParseInt(c.Params("messageId"), 10, 64)
	if err != nil || messageID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid message id"})
	}

	offer, err := h.offerService.RejectByMessage(c.Context(), userID, messageID)
	if err != nil {
		return mapOfferError(c, err)
	}

	return c.JSON(fiber.Map{"offer": offer})
}

func mapOfferError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Forbidden"})
	case errors.Is(err, services.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	case errors.Is(err, services.ErrCustomerNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Customer not found"})
	case errors.Is(err, services.ErrInvalidStateTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Offer is no longer pending"})
	case errors.Is(err, services.ErrGateway):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "Payment provider unavailable"})
	case errors.Is(err, pgx.ErrNoRows):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Offer not found"})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to process offer request"})
	}
}
