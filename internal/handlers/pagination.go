package handlers

import "strconv"

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
