package repository

import (
	"context"
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

const profileColumns = `id, user_id, role, full_name, plan, plan_expiry, has_used_trial,
	   coach_id, gateway_customer_id, onboarding_complete, created_at, updated_at`

type ProfileRepository struct {
	db DBTX
}

func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) CreateEmpty(ctx context.Context, userID int64, role string) error {
	query := `INSERT INTO profiles (user_id, role) VALUES ($1, $2)`
	_, err := r.db.Exec(ctx, query, userID, role)
	return err
}

func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int64) (*models.Profile, error) {
	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		WHERE user_id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

type UpdateProfileInput struct {
	FullName *string
}

func (r *ProfileRepository) UpdatePartial(ctx context.Context, userID int64, input UpdateProfileInput) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET full_name = COALESCE($1, full_name),
			updated_at = NOW()
		WHERE user_id = $2
		RETURNING ` + profileColumns
	return r.scanOne(r.db.QueryRow(ctx, query, input.FullName, userID))
}

func (r *ProfileRepository) CompleteOnboarding(ctx context.Context, userID int64, fullName string) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET full_name = $1,
			onboarding_complete = TRUE,
			updated_at = NOW()
		WHERE user_id = $2
		RETURNING ` + profileColumns
	return r.scanOne(r.db.QueryRow(ctx, query, fullName, userID))
}

// StartTrial is a one-shot conditional write: it only succeeds while the
// stored has_used_trial flag is still false, which makes a second trial
// attempt fail with pgx.ErrNoRows.
func (r *ProfileRepository) StartTrial(ctx context.Context, userID int64, expiry time.Time) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET plan = 'trial',
			plan_expiry = $1,
			has_used_trial = TRUE,
			updated_at = NOW()
		WHERE user_id = $2 AND has_used_trial = FALSE
		RETURNING ` + profileColumns
	return r.scanOne(r.db.QueryRow(ctx, query, expiry, userID))
}

// SetSubscription applies a gateway-confirmed subscription to the profile.
func (r *ProfileRepository) SetSubscription(
	ctx context.Context,
	userID int64,
	plan string,
	expiry *time.Time,
	gatewayCustomerID string,
) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET plan = $1,
			plan_expiry = $2,
			gateway_customer_id = $3,
			updated_at = NOW()
		WHERE user_id = $4
		RETURNING ` + profileColumns
	return r.scanOne(r.db.QueryRow(ctx, query, plan, expiry, gatewayCustomerID, userID))
}

// SetCoachPlan records the coach relationship and the derived plan label
// when an offer is accepted.
func (r *ProfileRepository) SetCoachPlan(
	ctx context.Context,
	userID int64,
	coachID int64,
	plan string,
	expiry time.Time,
) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET coach_id = $1,
			plan = $2,
			plan_expiry = $3,
			updated_at = NOW()
		WHERE user_id = $4
		RETURNING ` + profileColumns
	return r.scanOne(r.db.QueryRow(ctx, query, coachID, plan, expiry, userID))
}

// ClearPlan implements immediate cancellation. Graceful cancellation keeps
// the row untouched and lets plan_expiry run out.
func (r *ProfileRepository) ClearPlan(ctx context.Context, userID int64) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET plan = NULL,
			plan_expiry = NULL,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING ` + profileColumns
	return r.scanOne(r.db.QueryRow(ctx, query, userID))
}

// BoundPlanExpiry caps an open-ended subscription at the given time. Used
// by graceful cancellation when no period end is stored locally.
func (r *ProfileRepository) BoundPlanExpiry(ctx context.Context, userID int64, expiry time.Time) (*models.Profile, error) {
	query := `
		UPDATE profiles
		SET plan_expiry = $1,
			updated_at = NOW()
		WHERE user_id = $2 AND plan IS NOT NULL AND plan_expiry IS NULL
		RETURNING ` + profileColumns
	return r.scanOne(r.db.QueryRow(ctx, query, expiry, userID))
}

func (r *ProfileRepository) scanOne(row interface{ Scan(dest ...any) error }) (*models.Profile, error) {
	var profile models.Profile
	err := row.Scan(
		&profile.ID,
		&profile.UserID,
		&profile.Role,
		&profile.FullName,
		&profile.Plan,
		&profile.PlanExpiry,
		&profile.HasUsedTrial,
		&profile.CoachID,
		&profile.GatewayCustomerID,
		&profile.OnboardingComplete,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
