package models

import "time"

const (
	ContractStatusActive    = "active"
	ContractStatusExpired   = "expired"
	ContractStatusCompleted = "completed"
)

const (
	PayoutStatusPending = "pending"
	PayoutStatusPaid    = "paid"
	PayoutStatusFailed  = "failed"

	PayoutTypeCompletion = "completion"
	PayoutTypeWithdrawal = "withdrawal"
)

// Contract is a realized coaching engagement. Rows are immutable once
// created except for the status flip to expired/completed; a renewal
// inserts a new row instead of mutating the old one.
type Contract struct {
	ID              int64     `json:"id"`
	OfferID         *int64    `json:"offer_id,omitempty"`
	CoachID         int64     `json:"coach_id"`
	CustomerID      int64     `json:"customer_id"`
	Status          string    `json:"status"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	PriceCents      int64     `json:"price_cents"`
	PlatformFeeRate float64   `json:"platform_fee_rate"`
	CreatedAt       time.Time `json:"created_at"`
}

// Payout is an append-only ledger entry. AmountCents is always
// PlatformFeeCents + NetAmountCents. Status advances pending->paid or
// pending->failed through the external payout processor only.
type Payout struct {
	ID               int64     `json:"id"`
	CoachID          int64     `json:"coach_id"`
	AmountCents      int64     `json:"amount_cents"`
	PlatformFeeCents int64     `json:"platform_fee_cents"`
	NetAmountCents   int64     `json:"net_amount_cents"`
	Status           string    `json:"status"`
	PayoutType       string    `json:"payout_type"`
	Reference        string    `json:"reference"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	CreatedAt        time.Time `json:"created_at"`
}

// ProgramCompletion captures the revenue split at the moment a coaching
// program completed, immune to later price changes.
type ProgramCompletion struct {
	ID               int64     `json:"id"`
	ContractID       int64     `json:"contract_id"`
	CoachID          int64     `json:"coach_id"`
	CustomerID       int64     `json:"customer_id"`
	TotalPriceCents  int64     `json:"total_price_cents"`
	CoachAmountCents int64     `json:"coach_amount_cents"`
	PlatformFeeCents int64     `json:"platform_fee_cents"`
	CreatedAt        time.Time `json:"created_at"`
}
