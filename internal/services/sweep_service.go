package services

import (
	"context"
	"log"
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

type offerSweeper interface {
	ExpireDue(ctx context.Context, now time.Time) ([]models.CoachOffer, error)
}

type contractSweeper interface {
	ExpireDueContracts(ctx context.Context, now time.Time) ([]models.Contract, error)
}

// SweepService runs the periodic expiry pass over pending offers and ended
// contracts. Every underlying write is conditional on current status, so
// overlapping runs (or a second replica) do no harm.
type SweepService struct {
	offers    offerSweeper
	contracts contractSweeper
	interval  time.Duration
}

func NewSweepService(offers offerSweeper, contracts contractSweeper, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweepService{offers: offers, contracts: contracts, interval: interval}
}

// Start blocks until ctx is cancelled, running one sweep immediately and
// then one per interval. Meant to run on its own goroutine.
func (s *SweepService) Start(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single sweep pass. Failures are logged, not returned:
// the next tick retries, and the conditional writes make that safe.
func (s *SweepService) RunOnce(ctx context.Context) {
	now := time.Now().UTC()

	expiredOffers, err := s.offers.ExpireDue(ctx, now)
	if err != nil {
		log.Printf("offer expiry sweep failed: %v", err)
	} else if len(expiredOffers) > 0 {
		log.Printf("expired %d stale pending offers", len(expiredOffers))
	}

	expiredContracts, err := s.contracts.ExpireDueContracts(ctx, now)
	if err != nil {
		log.Printf("contract expiry sweep failed: %v", err)
	} else if len(expiredContracts) > 0 {
		log.Printf("expired %d ended contracts", len(expiredContracts))
	}
}
