package services

import (
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

// PlanFlags is the derived entitlement state of one profile at one instant.
// It is recomputed on every read and never cached: a trial silently
// crossing plan_expiry between two requests is expected behavior.
type PlanFlags struct {
	HasActiveTrial        bool       `json:"has_active_trial"`
	HasActiveSubscription bool       `json:"has_active_subscription"`
	HasActivePlan         bool       `json:"has_active_plan"`
	PlanExpired           bool       `json:"plan_expired"`
	HasUsedTrial          bool       `json:"has_used_trial"`
	TrialEndsAt           *time.Time `json:"trial_ends_at,omitempty"`
}

// ComputePlanFlags maps a profile snapshot to entitlement flags. Pure and
// total: a nil profile or missing plan yields the zero "no plan" flags.
func ComputePlanFlags(profile *models.Profile, now time.Time) PlanFlags {
	if profile == nil {
		return PlanFlags{}
	}

	var flags PlanFlags

	plan := profile.Plan
	expiry := profile.PlanExpiry

	if plan != nil && *plan == models.PlanTrial {
		flags.TrialEndsAt = expiry
		if expiry != nil && expiry.After(now) {
			flags.HasActiveTrial = true
		}
	}

	if plan != nil && *plan != models.PlanTrial {
		if expiry == nil || expiry.After(now) {
			flags.HasActiveSubscription = true
		}
	}

	flags.HasActivePlan = flags.HasActiveTrial || flags.HasActiveSubscription
	flags.PlanExpired = plan != nil && expiry != nil && !expiry.After(now)
	flags.HasUsedTrial = profile.HasUsedTrial || (plan != nil && *plan == models.PlanTrial)

	return flags
}
