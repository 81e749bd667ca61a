package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/repository"
)

var (
	ErrInsufficientFunds = errors.New("insufficient available balance")

	// ErrPartialCompletion marks a contract that flipped to completed but is
	// missing its ledger rows. The flip is durable; RetryCompletionLedger
	// finishes the write.
	ErrPartialCompletion = errors.New("contract completed but ledger write failed")
)

const renewalPeriodDays = 30

type contractStore interface {
	Create(ctx context.Context, input repository.CreateContractInput) (*models.Contract, error)
	GetByID(ctx context.Context, contractID int64) (*models.Contract, error)
	ListForParty(ctx context.Context, partyID int64) ([]models.Contract, error)
	UpdateStatusIfCurrent(ctx context.Context, contractID int64, currentStatus, nextStatus string) (*models.Contract, error)
	ExpireEndedBefore(ctx context.Context, cutoff time.Time) ([]models.Contract, error)
}

type payoutStore interface {
	Create(ctx context.Context, input repository.CreatePayoutInput) (*models.Payout, error)
	CreateWithdrawalIfCovered(ctx context.Context, coachID, amountCents int64, reference string, periodStart, periodEnd time.Time) (*models.Payout, error)
	GetByReference(ctx context.Context, reference string) (*models.Payout, error)
	AvailableBalance(ctx context.Context, coachID int64) (int64, error)
	ListByCoachID(ctx context.Context, coachID int64) ([]models.Payout, error)
}

type completionStore interface {
	Create(ctx context.Context, input repository.CreateCompletionInput) (*models.ProgramCompletion, error)
	GetByContractID(ctx context.Context, contractID int64) (*models.ProgramCompletion, error)
}

type offerStatusStore interface {
	UpdateStatusIfCurrent(ctx context.Context, offerID int64, currentStatus, nextStatus string) (*models.CoachOffer, error)
}

type chatAnnouncer interface {
	AnnounceSystem(ctx context.Context, customerID, coachID int64, content string) error
}

// LedgerService owns contracts and the coach payout ledger. Every write is
// either conditional on current state or guarded by a unique key, so each
// operation can be retried without double-crediting a coach.
type LedgerService struct {
	contractRepo   contractStore
	payoutRepo     payoutStore
	completionRepo completionStore
	offerRepo      offerStatusStore
	announcer      chatAnnouncer
}

func NewLedgerService(
	contractRepo contractStore,
	payoutRepo payoutStore,
	completionRepo completionStore,
	offerRepo offerStatusStore,
	announcer chatAnnouncer,
) *LedgerService {
	return &LedgerService{
		contractRepo:   contractRepo,
		payoutRepo:     payoutRepo,
		completionRepo: completionRepo,
		offerRepo:      offerRepo,
		announcer:      announcer,
	}
}

// SplitRevenue divides a gross amount between coach and platform. The coach
// share is rounded once; the fee is the exact remainder, so the two always
// sum back to the total.
func SplitRevenue(totalCents int64, feeRate float64) (coachCents, feeCents int64) {
	coachCents = int64(math.Round(float64(totalCents) * (1 - feeRate)))
	feeCents = totalCents - coachCents
	return coachCents, feeCents
}

type CompletionResult struct {
	Contract         *models.Contract          `json:"contract"`
	Payout           *models.Payout            `json:"payout,omitempty"`
	Completion       *models.ProgramCompletion `json:"completion,omitempty"`
	AlreadyCompleted bool                      `json:"already_completed"`
}

// CompleteProgram settles an active contract: conditional flip to completed,
// then the completion record and the coach's payout row. Both cited parties
// must match the contract's recorded parties. The flip is the serialization
// point; once it lands, a failed ledger write surfaces as
// ErrPartialCompletion instead of being rolled back.
func (s *LedgerService) CompleteProgram(ctx context.Context, coachID, customerID, contractID int64) (*CompletionResult, error) {
	contract, err := s.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.CoachID != coachID || contract.CustomerID != customerID {
		return nil, ErrForbidden
	}
	if contract.Status == models.ContractStatusCompleted {
		return &CompletionResult{Contract: contract, AlreadyCompleted: true}, nil
	}
	if contract.Status != models.ContractStatusActive {
		return nil, ErrInvalidStateTransition
	}

	completed, err := s.contractRepo.UpdateStatusIfCurrent(ctx, contractID, models.ContractStatusActive, models.ContractStatusCompleted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			current, loadErr := s.contractRepo.GetByID(ctx, contractID)
			if loadErr != nil {
				return nil, loadErr
			}
			if current.Status == models.ContractStatusCompleted {
				return &CompletionResult{Contract: current, AlreadyCompleted: true}, nil
			}
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	payout, completion, err := s.writeCompletionLedger(ctx, completed)
	if err != nil {
		return &CompletionResult{Contract: completed}, errors.Join(ErrPartialCompletion, err)
	}

	s.closeOutOffer(ctx, completed)
	s.announceCompletion(ctx, completed)

	return &CompletionResult{Contract: completed, Payout: payout, Completion: completion}, nil
}

// RetryCompletionLedger finishes the ledger write for a contract that
// completed but hit ErrPartialCompletion. Rows that already landed are left
// alone; only the missing ones are inserted.
func (s *LedgerService) RetryCompletionLedger(ctx context.Context, coachID, contractID int64) (*CompletionResult, error) {
	contract, err := s.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.CoachID != coachID {
		return nil, ErrForbidden
	}
	if contract.Status != models.ContractStatusCompleted {
		return nil, ErrInvalidStateTransition
	}

	payout, completion, err := s.writeCompletionLedger(ctx, contract)
	if err != nil {
		return nil, errors.Join(ErrPartialCompletion, err)
	}

	return &CompletionResult{Contract: contract, Payout: payout, Completion: completion}, nil
}

// writeCompletionLedger records the split and the payout for a completed
// contract. Both inserts are keyed (unique contract_id on completions, a
// deterministic reference on the payout), so a repeat run converges on the
// same two rows.
func (s *LedgerService) writeCompletionLedger(ctx context.Context, contract *models.Contract) (*models.Payout, *models.ProgramCompletion, error) {
	coachCents, feeCents := SplitRevenue(contract.PriceCents, contract.PlatformFeeRate)

	completion, err := s.completionRepo.Create(ctx, repository.CreateCompletionInput{
		ContractID:       contract.ID,
		CoachID:          contract.CoachID,
		CustomerID:       contract.CustomerID,
		TotalPriceCents:  contract.PriceCents,
		CoachAmountCents: coachCents,
		PlatformFeeCents: feeCents,
	})
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("record completion: %w", err)
		}
		completion, err = s.completionRepo.GetByContractID(ctx, contract.ID)
		if err != nil {
			return nil, nil, fmt.Errorf("load existing completion: %w", err)
		}
	}

	payout, err := s.payoutRepo.Create(ctx, repository.CreatePayoutInput{
		CoachID:          contract.CoachID,
		AmountCents:      contract.PriceCents,
		PlatformFeeCents: feeCents,
		NetAmountCents:   coachCents,
		PayoutType:       models.PayoutTypeCompletion,
		Reference:        completionPayoutReference(contract.ID),
		PeriodStart:      contract.StartDate,
		PeriodEnd:        contract.EndDate,
	})
	if err != nil {
		if !isUniqueViolation(err) {
			return nil, nil, fmt.Errorf("record payout: %w", err)
		}
		payout, err = s.payoutRepo.GetByReference(ctx, completionPayoutReference(contract.ID))
		if err != nil {
			return nil, nil, fmt.Errorf("load existing payout: %w", err)
		}
	}

	return payout, completion, nil
}

func (s *LedgerService) closeOutOffer(ctx context.Context, contract *models.Contract) {
	if contract.OfferID == nil {
		return
	}
	if _, err := s.offerRepo.UpdateStatusIfCurrent(ctx, *contract.OfferID, models.OfferStatusAccepted, models.OfferStatusCompleted); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		log.Printf("contract %d completed but offer %d not closed out: %v", contract.ID, *contract.OfferID, err)
	}
}

func (s *LedgerService) announceCompletion(ctx context.Context, contract *models.Contract) {
	if s.announcer == nil {
		return
	}
	content := "Congratulations, your coaching program is complete!"
	if err := s.announcer.AnnounceSystem(ctx, contract.CustomerID, contract.CoachID, content); err != nil {
		log.Printf("contract %d completed but announcement failed: %v", contract.ID, err)
	}
}

// RenewContract opens a fresh engagement carrying the old contract's terms.
// The old row keeps its status; history stays append-only.
func (s *LedgerService) RenewContract(ctx context.Context, actorID, contractID int64, months int) (*models.Contract, error) {
	if months <= 0 {
		return nil, ErrInvalidInput
	}

	previous, err := s.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if previous.CoachID != actorID && previous.CustomerID != actorID {
		return nil, ErrForbidden
	}

	now := time.Now().UTC()
	renewed, err := s.contractRepo.Create(ctx, repository.CreateContractInput{
		OfferID:         previous.OfferID,
		CoachID:         previous.CoachID,
		CustomerID:      previous.CustomerID,
		StartDate:       now,
		EndDate:         now.Add(time.Duration(months*renewalPeriodDays) * 24 * time.Hour),
		PriceCents:      previous.PriceCents,
		PlatformFeeRate: previous.PlatformFeeRate,
	})
	if err != nil {
		return nil, err
	}

	s.announceRenewal(ctx, renewed, months)

	return renewed, nil
}

func (s *LedgerService) announceRenewal(ctx context.Context, contract *models.Contract, months int) {
	if s.announcer == nil {
		return
	}
	content := fmt.Sprintf("The coaching plan was renewed for %d more month(s).", months)
	if err := s.announcer.AnnounceSystem(ctx, contract.CustomerID, contract.CoachID, content); err != nil {
		log.Printf("contract %d renewed but announcement failed: %v", contract.ID, err)
	}
}

// RequestWithdrawal reserves funds from the coach's available balance. The
// balance read gives a clean error message; the lock-serialized insert in
// the repository is what actually prevents a concurrent overdraw.
func (s *LedgerService) RequestWithdrawal(ctx context.Context, coachID, amountCents int64) (*models.Payout, error) {
	if amountCents <= 0 {
		return nil, ErrInvalidInput
	}

	balance, err := s.payoutRepo.AvailableBalance(ctx, coachID)
	if err != nil {
		return nil, err
	}
	if balance < amountCents {
		return nil, ErrInsufficientFunds
	}

	now := time.Now().UTC()
	payout, err := s.payoutRepo.CreateWithdrawalIfCovered(ctx, coachID, amountCents, uuid.NewString(), now, now)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsufficientFunds
		}
		return nil, err
	}

	return payout, nil
}

func (s *LedgerService) AvailableBalance(ctx context.Context, coachID int64) (int64, error) {
	return s.payoutRepo.AvailableBalance(ctx, coachID)
}

func (s *LedgerService) ListPayouts(ctx context.Context, coachID int64) ([]models.Payout, error) {
	return s.payoutRepo.ListByCoachID(ctx, coachID)
}

func (s *LedgerService) ListContracts(ctx context.Context, actorID int64) ([]models.Contract, error) {
	return s.contractRepo.ListForParty(ctx, actorID)
}

func (s *LedgerService) GetContract(ctx context.Context, actorID, contractID int64) (*models.Contract, error) {
	contract, err := s.contractRepo.GetByID(ctx, contractID)
	if err != nil {
		return nil, err
	}
	if contract.CoachID != actorID && contract.CustomerID != actorID {
		return nil, ErrForbidden
	}
	return contract, nil
}

// ExpireDueContracts flips ended contracts and tells each customer their
// chat access lapsed. Announcements are best-effort; the sweep never retries
// a contract it already flipped.
func (s *LedgerService) ExpireDueContracts(ctx context.Context, now time.Time) ([]models.Contract, error) {
	expired, err := s.contractRepo.ExpireEndedBefore(ctx, now)
	if err != nil {
		return nil, err
	}

	if s.announcer != nil {
		for i := range expired {
			contract := &expired[i]
			content := "Your coaching plan has ended. Renew to keep working with your coach."
			if err := s.announcer.AnnounceSystem(ctx, contract.CustomerID, contract.CoachID, content); err != nil {
				log.Printf("contract %d expired but announcement failed: %v", contract.ID, err)
			}
		}
	}

	return expired, nil
}

func completionPayoutReference(contractID int64) string {
	return fmt.Sprintf("contract-%d-completion", contractID)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
