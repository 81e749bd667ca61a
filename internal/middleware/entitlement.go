package middleware

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
)

type profileStore interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Profile, error)
}

// RequireRole rejects callers whose token role does not match.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals("role") != role {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Insufficient role",
			})
		}
		return c.Next()
	}
}

// RequirePlan gates payment-tier API routes. Coaches pass through; customers
// need an active trial or subscription at this instant.
func RequirePlan(profileRepo profileStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals("role") == "coach" {
			return c.Next()
		}

		profile, err := loadCallerProfile(c, profileRepo)
		if profile == nil {
			return err
		}

		if !services.ComputePlanFlags(profile, time.Now()).HasActivePlan {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You need an active subscription or trial to access this page.",
			})
		}
		return c.Next()
	}
}

// RequireCoachLink gates coach-tier API routes. Coaches pass through;
// customers need the coach relationship on their profile.
func RequireCoachLink(profileRepo profileStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Locals("role") == "coach" {
			return c.Next()
		}

		profile, err := loadCallerProfile(c, profileRepo)
		if profile == nil {
			return err
		}

		if profile.CoachID == nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "You need a coach to access this page.",
			})
		}
		return c.Next()
	}
}

// loadCallerProfile resolves the token's profile row. On failure it writes
// the response itself and returns a nil profile.
func loadCallerProfile(c *fiber.Ctx, profileRepo profileStore) (*models.Profile, error) {
	userIDStr, ok := c.Locals("user_id").(string)
	if !ok {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}
	userID, err := strconv.ParseInt(userIDStr, 10, 64)
	if err != nil {
		return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid token"})
	}

	profile, err := profileRepo.GetByUserID(c.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Profile not found"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch profile"})
	}
	return profile, nil
}
