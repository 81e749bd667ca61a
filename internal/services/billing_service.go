package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

var ErrTrialAlreadyUsed = errors.New("trial already used")

const trialDays = 14

type profileBillingStore interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Profile, error)
	StartTrial(ctx context.Context, userID int64, expiry time.Time) (*models.Profile, error)
	ClearPlan(ctx context.Context, userID int64) (*models.Profile, error)
	BoundPlanExpiry(ctx context.Context, userID int64, expiry time.Time) (*models.Profile, error)
}

// BillingService covers the non-gateway side of entitlements: the free
// trial, cancellation, and the entitlement snapshot clients poll.
type BillingService struct {
	profileRepo profileBillingStore
	access      *AccessService
}

func NewBillingService(profileRepo profileBillingStore, access *AccessService) *BillingService {
	return &BillingService{profileRepo: profileRepo, access: access}
}

// StartTrial grants the one-time trial. The conditional write in the
// repository is the authority: losing a race to a concurrent start, or
// having ever trialed before, both come back as ErrTrialAlreadyUsed.
func (s *BillingService) StartTrial(ctx context.Context, userID int64) (*models.Profile, error) {
	expiry := time.Now().UTC().Add(trialDays * 24 * time.Hour)
	profile, err := s.profileRepo.StartTrial(ctx, userID, expiry)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Either the trial was used or the profile does not exist.
			if _, loadErr := s.profileRepo.GetByUserID(ctx, userID); loadErr != nil {
				return nil, loadErr
			}
			return nil, ErrTrialAlreadyUsed
		}
		return nil, err
	}
	return profile, nil
}

// Cancel ends the subscription. Immediate cancellation clears the plan now;
// graceful cancellation only bounds an open-ended expiry and otherwise lets
// the stored plan_expiry run out on its own.
func (s *BillingService) Cancel(ctx context.Context, userID int64, immediate bool) (*models.Profile, error) {
	if immediate {
		return s.profileRepo.ClearPlan(ctx, userID)
	}

	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.Plan == nil {
		return profile, nil
	}
	if profile.PlanExpiry != nil {
		return profile, nil
	}

	bounded, err := s.profileRepo.BoundPlanExpiry(ctx, userID, time.Now().UTC().Add(subscriptionPeriodDays*24*time.Hour))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// A concurrent write already set an expiry; the stored row wins.
			return s.profileRepo.GetByUserID(ctx, userID)
		}
		return nil, err
	}
	return bounded, nil
}

// Entitlement is the snapshot a client renders gating decisions from.
type Entitlement struct {
	Flags      PlanFlags  `json:"flags"`
	AccessCase AccessCase `json:"access_case"`
	Plan       *string    `json:"plan,omitempty"`
	PlanExpiry *time.Time `json:"plan_expiry,omitempty"`
	CoachID    *int64     `json:"coach_id,omitempty"`
}

// Entitlement recomputes the caller's flags and access case from the
// current profile row. Nothing here is cached.
func (s *BillingService) Entitlement(ctx context.Context, userID int64) (*Entitlement, error) {
	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Entitlement{
		Flags:      ComputePlanFlags(profile, now),
		AccessCase: s.access.ResolveCase(profile, now),
		Plan:       profile.Plan,
		PlanExpiry: profile.PlanExpiry,
		CoachID:    profile.CoachID,
	}, nil
}
