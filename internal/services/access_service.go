package services

import (
	"strings"
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

type AccessCase string

const (
	AccessUnauthenticated     AccessCase = "unauthenticated"
	AccessFreeNoEntitlement   AccessCase = "free-no-entitlement"
	AccessTrialActive         AccessCase = "trial-active"
	AccessSubscriptionActive  AccessCase = "subscription-active"
	AccessCoachLinkedNoSub    AccessCase = "coach-linked-no-subscription"
	AccessNeedsUpgrade        AccessCase = "needs-upgrade"
)

type RouteTier string

const (
	TierFree         RouteTier = "free"
	TierSettings     RouteTier = "settings"
	TierCoachGated   RouteTier = "coach-gated"
	TierPaymentGated RouteTier = "payment-gated"
)

// routeTiers partitions the app's route space. First matching prefix wins;
// anything unlisted is free.
var routeTiers = []struct {
	prefix string
	tier   RouteTier
}{
	{"/settings", TierSettings},
	{"/account", TierSettings},
	{"/coach", TierCoachGated},
	{"/messages", TierCoachGated},
	{"/conversations", TierCoachGated},
	{"/workouts", TierPaymentGated},
	{"/programs", TierPaymentGated},
	{"/nutrition", TierPaymentGated},
	{"/progress", TierPaymentGated},
}

const (
	denialNeedsPlan  = "You need an active subscription or trial to access this page."
	denialNeedsCoach = "You need a coach to access this page."
	denialSignIn     = "Sign in to continue."
)

// AccessService is a read-only projection over plan flags and the coach
// relationship. It performs no I/O and holds no state.
type AccessService struct{}

func NewAccessService() *AccessService {
	return &AccessService{}
}

// ResolveCase classifies the caller into one of the fixed access cases.
func (s *AccessService) ResolveCase(profile *models.Profile, now time.Time) AccessCase {
	if profile == nil {
		return AccessUnauthenticated
	}

	flags := ComputePlanFlags(profile, now)
	switch {
	case flags.HasActiveTrial:
		return AccessTrialActive
	case flags.HasActiveSubscription:
		return AccessSubscriptionActive
	case profile.CoachID != nil:
		return AccessCoachLinkedNoSub
	case flags.PlanExpired || flags.HasUsedTrial:
		return AccessNeedsUpgrade
	default:
		return AccessFreeNoEntitlement
	}
}

func RouteTierFor(path string) RouteTier {
	cleaned := "/" + strings.TrimLeft(strings.TrimSpace(path), "/")
	for _, entry := range routeTiers {
		if cleaned == entry.prefix || strings.HasPrefix(cleaned, entry.prefix+"/") {
			return entry.tier
		}
	}
	return TierFree
}

// CanAccessRoute answers "can this route be reached". With no profile every
// non-free route is denied.
func (s *AccessService) CanAccessRoute(profile *models.Profile, path string, now time.Time) bool {
	tier := RouteTierFor(path)
	if tier == TierFree {
		return true
	}
	if profile == nil {
		return false
	}

	switch tier {
	case TierSettings:
		return true
	case TierCoachGated:
		return profile.CoachID != nil
	case TierPaymentGated:
		return ComputePlanFlags(profile, now).HasActivePlan
	default:
		return true
	}
}

// DenialReason returns a human-readable reason only when access is denied,
// distinguishing the subscription upsell from the coach upsell.
func (s *AccessService) DenialReason(profile *models.Profile, path string, now time.Time) *string {
	if s.CanAccessRoute(profile, path, now) {
		return nil
	}
	if profile == nil {
		reason := denialSignIn
		return &reason
	}

	var reason string
	switch RouteTierFor(path) {
	case TierCoachGated:
		reason = denialNeedsCoach
	default:
		reason = denialNeedsPlan
	}
	return &reason
}
