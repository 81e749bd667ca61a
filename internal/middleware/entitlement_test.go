package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

type stubProfileStore struct {
	profile *models.Profile
	err     error
}

func (s *stubProfileStore) GetByUserID(_ context.Context, _ int64) (*models.Profile, error) {
	return s.profile, s.err
}

func newGateTestApp(gate fiber.Handler, role, userID string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("role", role)
		c.Locals("user_id", userID)
		return c.Next()
	})
	app.Get("/gated", gate, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true})
	})
	return app
}

func gateStatus(t *testing.T, app *fiber.App) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/gated", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestRequireRoleRejectsMismatch(t *testing.T) {
	app := newGateTestApp(RequireRole("coach"), "customer", "42")
	if status := gateStatus(t, app); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestRequireRolePassesMatch(t *testing.T) {
	app := newGateTestApp(RequireRole("coach"), "coach", "7")
	if status := gateStatus(t, app); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestRequirePlanPassesActiveSubscription(t *testing.T) {
	plan := "premium"
	expiry := time.Now().Add(24 * time.Hour)
	store := &stubProfileStore{profile: &models.Profile{
		UserID:     42,
		Plan:       &plan,
		PlanExpiry: &expiry,
	}}

	app := newGateTestApp(RequirePlan(store), "customer", "42")
	if status := gateStatus(t, app); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestRequirePlanRejectsLapsedPlan(t *testing.T) {
	plan := "premium"
	expiry := time.Now().Add(-time.Hour)
	store := &stubProfileStore{profile: &models.Profile{
		UserID:     42,
		Plan:       &plan,
		PlanExpiry: &expiry,
	}}

	app := newGateTestApp(RequirePlan(store), "customer", "42")
	if status := gateStatus(t, app); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestRequirePlanBypassesCoaches(t *testing.T) {
	store := &stubProfileStore{err: pgx.ErrNoRows}
	app := newGateTestApp(RequirePlan(store), "coach", "7")
	if status := gateStatus(t, app); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}

func TestRequirePlanReturnsNotFoundForMissingProfile(t *testing.T) {
	store := &stubProfileStore{err: pgx.ErrNoRows}
	app := newGateTestApp(RequirePlan(store), "customer", "42")
	if status := gateStatus(t, app); status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestRequireCoachLinkRejectsUnlinkedCustomer(t *testing.T) {
	store := &stubProfileStore{profile: &models.Profile{UserID: 42}}
	app := newGateTestApp(RequireCoachLink(store), "customer", "42")
	if status := gateStatus(t, app); status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", status)
	}
}

func TestRequireCoachLinkPassesLinkedCustomer(t *testing.T) {
	coachID := int64(7)
	store := &stubProfileStore{profile: &models.Profile{UserID: 42, CoachID: &coachID}}
	app := newGateTestApp(RequireCoachLink(store), "customer", "42")
	if status := gateStatus(t, app); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
}
