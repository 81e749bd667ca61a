package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/services"
)

type accessProfileStore interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Profile, error)
}

// AccessHandler answers the frontend's "can I show this route" question in
// one round trip.
type AccessHandler struct {
	accessService *services.AccessService
	profileRepo   accessProfileStore
}

func NewAccessHandler(accessService *services.AccessService, profileRepo accessProfileStore) *AccessHandler {
	return &AccessHandler{
		accessService: accessService,
		profileRepo:   profileRepo,
	}
}

// CheckRoute evaluates the caller's access to a frontend path. The caller
// may be anonymous; a missing token just resolves to the unauthenticated
// case instead of failing.
func (h *AccessHandler) CheckRoute(c *fiber.Ctx) error {
	path := strings.TrimSpace(c.Query("path"))
	if path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "path query parameter is required"})
	}

	var profile *models.Profile
	if userID, err := parseProfileUserID(c); err == nil {
		profile, err = h.profileRepo.GetByUserID(c.Context(), userID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch profile"})
		}
	}

	now := time.Now()
	response := fiber.Map{
		"path":    path,
		"tier":    services.RouteTierFor(path),
		"allowed": h.accessService.CanAccessRoute(profile, path, now),
		"case":    h.accessService.ResolveCase(profile, now),
	}
	if reason := h.accessService.DenialReason(profile, path, now); reason != nil {
		response["reason"] = *reason
	}

	return c.JSON(response)
}
