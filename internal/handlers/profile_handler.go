package handlers

import (
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/repository"
)

type ProfileHandler struct {
	profileRepo *repository.ProfileRepository
}

func NewProfileHandler(profileRepo *repository.ProfileRepository) *ProfileHandler {
	return &ProfileHandler{profileRepo: profileRepo}
}

type updateProfileRequest struct {
	FullName *string `json:"full_name"`
}

type completeOnboardingRequest struct {
	FullName string `json:"full_name"`
}

func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	profile, err := h.profileRepo.GetByUserID(c.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch profile"})
	}

	return c.JSON(fiber.Map{
		"profile":             profile,
		"onboarding_complete": profile.OnboardingComplete,
	})
}

func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if validationErr := validateFullName(req.FullName); validationErr != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr})
	}

	profile, err := h.profileRepo.UpdatePartial(c.Context(), userID, repository.UpdateProfileInput{
		FullName: req.FullName,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to update profile"})
	}

	return c.JSON(fiber.Map{
		"profile":             profile,
		"onboarding_complete": profile.OnboardingComplete,
	})
}

func (h *ProfileHandler) CompleteOnboarding(c *fiber.Ctx) error {
	userID, err := parseProfileUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	var req completeOnboardingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "full_name is required"})
	}
	if validationErr := validateFullName(&fullName); validationErr != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr})
	}

	profile, err := h.profileRepo.CompleteOnboarding(c.Context(), userID, fullName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to complete onboarding"})
	}

	return c.JSON(fiber.Map{
		"profile":             profile,
		"onboarding_complete": profile.OnboardingComplete,
	})
}

func parseProfileUserID(c *fiber.Ctx) (int64, error) {
	userIDValue := c.Locals("user_id")
	userIDStr, ok := userIDValue.(string)
	if !ok {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(userIDStr, 10, 64)
}
