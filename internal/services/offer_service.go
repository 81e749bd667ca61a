package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/repository"
)

var (
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrCustomerNotFound       = errors.New("customer not found")
)

const (
	// daysPerOfferDurationUnit: the duration_months column has always been
	// filled with weeks, so plan length is duration_months * 7 days. Fixing
	// the unit needs product sign-off; until then this is the single place
	// the arithmetic lives.
	daysPerOfferDurationUnit = 7

	offerPendingTTL = 14 * 24 * time.Hour

	platformFeeRate = 0.20
)

// OfferPlanDays converts an offer duration to plan days.
func OfferPlanDays(durationMonths int) int {
	return durationMonths * daysPerOfferDurationUnit
}

func offerPlanLabel(durationMonths int) string {
	return fmt.Sprintf("%d-week plan", durationMonths)
}

// centsFromDecimal rounds a gateway decimal amount to minor units exactly
// once, at the point of comparison or creation.
func centsFromDecimal(price float64) int64 {
	return int64(math.Round(price * 100))
}

type userReader interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

type OfferService struct {
	db               *pgxpool.Pool
	offerRepo        *repository.OfferRepository
	profileRepo      *repository.ProfileRepository
	contractRepo     *repository.ContractRepository
	conversationRepo *repository.ConversationRepository
	messageRepo      *repository.MessageRepository
	userRepo         userReader
}

func NewOfferService(
	db *pgxpool.Pool,
	offerRepo *repository.OfferRepository,
	profileRepo *repository.ProfileRepository,
	contractRepo *repository.ContractRepository,
	conversationRepo *repository.ConversationRepository,
	messageRepo *repository.MessageRepository,
	userRepo userReader,
) *OfferService {
	return &OfferService{
		db:               db,
		offerRepo:        offerRepo,
		profileRepo:      profileRepo,
		contractRepo:     contractRepo,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		userRepo:         userRepo,
	}
}

type CreateOfferInput struct {
	CustomerID     int64
	Price          float64
	DurationMonths int
	Message        string
}

// CreateOffer inserts the offer and posts its chat card in one transaction,
// so an offer row never exists without the message that renders it.
func (s *OfferService) CreateOffer(
	ctx context.Context,
	coachID int64,
	input CreateOfferInput,
) (*models.CoachOffer, error) {
	if coachID <= 0 || input.CustomerID <= 0 || input.Price <= 0 || input.DurationMonths <= 0 {
		return nil, ErrInvalidInput
	}
	if input.CustomerID == coachID {
		return nil, ErrInvalidInput
	}

	customer, err := s.userRepo.GetByID(ctx, input.CustomerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	if customer.Role != "customer" {
		return nil, ErrInvalidInput
	}

	content := strings.TrimSpace(input.Message)
	if content == "" {
		content = fmt.Sprintf("New coaching offer: %s for %.2f", offerPlanLabel(input.DurationMonths), input.Price)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txOfferRepo := repository.NewOfferRepository(tx)
	txConversationRepo := repository.NewConversationRepository(tx)
	txMessageRepo := repository.NewMessageRepository(tx)

	offer, err := txOfferRepo.Create(ctx, repository.CreateOfferInput{
		CoachID:        coachID,
		CustomerID:     input.CustomerID,
		Price:          input.Price,
		DurationMonths: input.DurationMonths,
	})
	if err != nil {
		return nil, err
	}

	conversation, err := txConversationRepo.CreateOrGet(ctx, input.CustomerID, coachID)
	if err != nil {
		return nil, err
	}

	message, err := txMessageRepo.CreateOfferCard(ctx, conversation.ID, coachID, content, offer.ID)
	if err != nil {
		return nil, err
	}

	if err := txOfferRepo.SetMessageID(ctx, offer.ID, message.ID); err != nil {
		return nil, err
	}
	offer.MessageID = &message.ID

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return offer, nil
}

func (s *OfferService) GetOffer(ctx context.Context, actorID int64, offerID int64) (*models.CoachOffer, error) {
	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.CoachID != actorID && offer.CustomerID != actorID {
		return nil, ErrForbidden
	}
	return offer, nil
}

func (s *OfferService) ListOffers(ctx context.Context, actorID int64) ([]models.CoachOffer, error) {
	return s.offerRepo.ListForParty(ctx, actorID)
}

type AcceptResult struct {
	Offer           *models.CoachOffer
	Contract        *models.Contract
	AlreadyAccepted bool
}

// Accept applies the financial state change of an accepted offer: offer
// flip, customer profile update and contract insert run in one transaction
// guarded by the conditional pending->accepted write, so two concurrent
// acceptances produce exactly one contract. The social side effects
// (conversation, welcome message) are best-effort afterwards.
func (s *OfferService) Accept(ctx context.Context, offerID int64) (*AcceptResult, error) {
	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.Status == models.OfferStatusAccepted || offer.Status == models.OfferStatusCompleted {
		return &AcceptResult{Offer: offer, AlreadyAccepted: true}, nil
	}
	if offer.Status != models.OfferStatusPending {
		return nil, ErrInvalidStateTransition
	}

	now := time.Now().UTC()
	planDays := OfferPlanDays(offer.DurationMonths)
	expiry := now.Add(time.Duration(planDays) * 24 * time.Hour)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	txOfferRepo := repository.NewOfferRepository(tx)
	txProfileRepo := repository.NewProfileRepository(tx)
	txContractRepo := repository.NewContractRepository(tx)

	accepted, err := txOfferRepo.UpdateStatusIfCurrent(ctx, offerID, models.OfferStatusPending, models.OfferStatusAccepted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the race; the durable row decides.
			current, loadErr := s.offerRepo.GetByID(ctx, offerID)
			if loadErr != nil {
				return nil, loadErr
			}
			if current.Status == models.OfferStatusAccepted || current.Status == models.OfferStatusCompleted {
				return &AcceptResult{Offer: current, AlreadyAccepted: true}, nil
			}
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	if _, err := txProfileRepo.SetCoachPlan(ctx, offer.CustomerID, offer.CoachID, offerPlanLabel(offer.DurationMonths), expiry); err != nil {
		return nil, err
	}

	contract, err := txContractRepo.Create(ctx, repository.CreateContractInput{
		OfferID:         &offer.ID,
		CoachID:         offer.CoachID,
		CustomerID:      offer.CustomerID,
		StartDate:       now,
		EndDate:         expiry,
		PriceCents:      centsFromDecimal(offer.Price),
		PlatformFeeRate: platformFeeRate,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	s.announceActivation(ctx, accepted)

	return &AcceptResult{Offer: accepted, Contract: contract}, nil
}

// announceActivation opens the communication channel and posts the welcome
// message. Both steps are skippable on failure: acceptance of the financial
// state takes priority over the social side effects.
func (s *OfferService) announceActivation(ctx context.Context, offer *models.CoachOffer) {
	conversation, err := s.conversationRepo.CreateOrGet(ctx, offer.CustomerID, offer.CoachID)
	if err != nil {
		log.Printf("offer %d accepted but conversation setup failed: %v", offer.ID, err)
		return
	}
	content := fmt.Sprintf("Your %s is active. Say hello to your coach!", offerPlanLabel(offer.DurationMonths))
	if _, err := s.messageRepo.CreateSystem(ctx, conversation.ID, content); err != nil {
		log.Printf("offer %d accepted but welcome message failed: %v", offer.ID, err)
	}
}

// Reject flips the offer to rejected (kept at rest for auditability), posts
// the decline notice and removes the offer card from chat.
func (s *OfferService) Reject(ctx context.Context, actorID int64, offerID int64) (*models.CoachOffer, error) {
	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}
	if offer.CoachID != actorID && offer.CustomerID != actorID {
		return nil, ErrForbidden
	}
	if offer.Status == models.OfferStatusRejected {
		return offer, nil
	}
	if offer.Status != models.OfferStatusPending {
		return nil, ErrInvalidStateTransition
	}

	rejected, err := s.offerRepo.UpdateStatusIfCurrent(ctx, offerID, models.OfferStatusPending, models.OfferStatusRejected)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, err
	}

	s.postDeclineNotice(ctx, rejected)

	if rejected.MessageID != nil {
		if err := s.messageRepo.Delete(ctx, *rejected.MessageID); err != nil {
			return nil, fmt.Errorf("offer %d rejected but card removal failed: %w", offerID, err)
		}
	}

	return rejected, nil
}

// RejectByMessage is the entry point when only the chat message is known.
// The message is deleted first so the realtime UI drops the card
// immediately; a failed status flip afterwards is reported so the caller
// retries instead of leaving an orphaned pending offer.
func (s *OfferService) RejectByMessage(ctx context.Context, actorID int64, messageID int64) (*models.CoachOffer, error) {
	offer, err := s.offerRepo.GetByMessageID(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if offer.CoachID != actorID && offer.CustomerID != actorID {
		return nil, ErrForbidden
	}
	if offer.Status == models.OfferStatusRejected {
		return offer, nil
	}
	if offer.Status != models.OfferStatusPending {
		return nil, ErrInvalidStateTransition
	}

	if err := s.messageRepo.Delete(ctx, messageID); err != nil {
		return nil, err
	}

	rejected, err := s.offerRepo.UpdateStatusIfCurrent(ctx, offer.ID, models.OfferStatusPending, models.OfferStatusRejected)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvalidStateTransition
		}
		return nil, fmt.Errorf("offer card %d removed but offer %d not rejected: %w", messageID, offer.ID, err)
	}

	s.postDeclineNotice(ctx, rejected)

	return rejected, nil
}

func (s *OfferService) postDeclineNotice(ctx context.Context, offer *models.CoachOffer) {
	conversation, err := s.conversationRepo.CreateOrGet(ctx, offer.CustomerID, offer.CoachID)
	if err != nil {
		log.Printf("offer %d rejected but decline notice failed: %v", offer.ID, err)
		return
	}
	if _, err := s.messageRepo.CreateSystem(ctx, conversation.ID, "The coaching offer was declined."); err != nil {
		log.Printf("offer %d rejected but decline notice failed: %v", offer.ID, err)
	}
}

// ExpireDue flips stale pending offers to expired. Conditioned on current
// status, so the sweep is safe to run on any cadence.
func (s *OfferService) ExpireDue(ctx context.Context, now time.Time) ([]models.CoachOffer, error) {
	return s.offerRepo.ExpirePendingBefore(ctx, now.Add(-offerPendingTTL))
}
