package handlers

import (
	"strings"
)

const maxOfferDurationUnits = 52

func validateFullName(fullName *string) string {
	if fullName == nil {
		return ""
	}
	trimmed := strings.TrimSpace(*fullName)
	if trimmed == "" {
		return "full_name must not be empty"
	}
	if len(trimmed) > 120 {
		return "full_name must be 120 characters or fewer"
	}
	return ""
}

func validateCreateOfferRequest(req createOfferRequest) string {
	if req.CustomerID <= 0 {
		return "customer_id is required"
	}
	if req.Price <= 0 {
		return "price must be greater than 0"
	}
	if req.DurationMonths <= 0 {
		return "duration_months must be greater than 0"
	}
	if req.DurationMonths > maxOfferDurationUnits {
		return "duration_months is out of range"
	}
	return ""
}

func validateWithdrawalRequest(req withdrawalRequest) string {
	if req.AmountCents <= 0 {
		return "amount_cents must be greater than 0"
	}
	return ""
}
