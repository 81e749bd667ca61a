package models

import "time"

// Profile carries the entitlement-bearing fields for one user. Rows are
// never deleted; an expired plan is represented by plan_expiry, not by
// clearing the row.
type Profile struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	Role               string     `json:"role"`
	FullName           *string    `json:"full_name"`
	Plan               *string    `json:"plan"`
	PlanExpiry         *time.Time `json:"plan_expiry"`
	HasUsedTrial       bool       `json:"has_used_trial"`
	CoachID            *int64     `json:"coach_id"`
	GatewayCustomerID  *string    `json:"-"`
	OnboardingComplete bool       `json:"onboarding_complete"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

const PlanTrial = "trial"
