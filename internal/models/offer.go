package models

import "time"

const (
	OfferStatusPending   = "pending"
	OfferStatusAccepted  = "accepted"
	OfferStatusRejected  = "rejected"
	OfferStatusExpired   = "expired"
	OfferStatusCompleted = "completed"
)

// CoachOffer is a coaching proposal from a coach to a customer, rendered in
// chat via MessageID. Price is the gateway-facing decimal amount;
// DurationMonths is a legacy column that has always held weeks (see
// services.OfferPlanDays).
type CoachOffer struct {
	ID             int64     `json:"id"`
	CoachID        int64     `json:"coach_id"`
	CustomerID     int64     `json:"customer_id"`
	Price          float64   `json:"price"`
	DurationMonths int       `json:"duration_months"`
	Status         string    `json:"status"`
	MessageID      *int64    `json:"message_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
