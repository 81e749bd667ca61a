package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

var (
	ErrGateway        = errors.New("payment sync failed")
	ErrSyncInFlight   = errors.New("a sync for this session is already running")
	ErrAmountMismatch = errors.New("session amount does not match the offer")
)

const (
	offerReferencePrefix    = "offer:"
	syncGuardTTL            = 2 * time.Minute
	subscriptionPeriodDays  = 30
	defaultSubscriptionPlan = "premium"
)

// syncGuard is the Sync Duplicate Guard: a per-process fence keyed by
// session id. It is owned by the checkout service (not ambient state) and
// cleared on completion so a later legitimate retry is never blocked; the
// TTL is a backstop against an entry leaking on a crashed call.
type syncGuard struct {
	mu       sync.Mutex
	inflight map[string]time.Time
}

func newSyncGuard() *syncGuard {
	return &syncGuard{inflight: make(map[string]time.Time)}
}

func (g *syncGuard) begin(sessionID string, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if startedAt, ok := g.inflight[sessionID]; ok && now.Sub(startedAt) < syncGuardTTL {
		return false
	}
	g.inflight[sessionID] = now
	return true
}

func (g *syncGuard) end(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.inflight, sessionID)
}

// OfferNotifier receives the fire-and-forget "offer status updated" event
// after a reconciliation actually changed state.
type OfferNotifier interface {
	NotifyOfferStatus(offerID int64, status string, participantIDs ...int64)
}

type offerAccepter interface {
	Accept(ctx context.Context, offerID int64) (*AcceptResult, error)
	GetOffer(ctx context.Context, actorID int64, offerID int64) (*models.CoachOffer, error)
}

type offerLoader interface {
	GetByID(ctx context.Context, offerID int64) (*models.CoachOffer, error)
}

type profileSubscriptionStore interface {
	GetByUserID(ctx context.Context, userID int64) (*models.Profile, error)
	SetSubscription(ctx context.Context, userID int64, plan string, expiry *time.Time, gatewayCustomerID string) (*models.Profile, error)
}

type CheckoutService struct {
	gateway     CheckoutGateway
	profileRepo profileSubscriptionStore
	offerRepo   offerLoader
	offers      offerAccepter
	notifier    OfferNotifier
	guard       *syncGuard
	appBaseURL  string
}

func NewCheckoutService(
	gateway CheckoutGateway,
	profileRepo profileSubscriptionStore,
	offerRepo offerLoader,
	offers offerAccepter,
	notifier OfferNotifier,
	appBaseURL string,
) *CheckoutService {
	return &CheckoutService{
		gateway:     gateway,
		profileRepo: profileRepo,
		offerRepo:   offerRepo,
		offers:      offers,
		notifier:    notifier,
		guard:       newSyncGuard(),
		appBaseURL:  strings.TrimRight(appBaseURL, "/"),
	}
}

// SyncResult reports the outcome of one reconciliation. StatusChanged is
// false on the idempotent no-op path (session already settled).
type SyncResult struct {
	StatusChanged bool   `json:"status_changed"`
	Kind          string `json:"kind"`
	OfferID       int64  `json:"offer_id,omitempty"`
	OfferStatus   string `json:"offer_status,omitempty"`
	Plan          string `json:"plan,omitempty"`
}

// SyncCheckoutSession fetches the session's authoritative state from the
// gateway and applies at most one domain transition keyed by the session's
// client reference. Gateway failures surface before any domain write, so
// re-invoking with the same session id is always safe.
func (s *CheckoutService) SyncCheckoutSession(ctx context.Context, sessionID string) (*SyncResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, ErrInvalidInput
	}

	if !s.guard.begin(sessionID, time.Now()) {
		return nil, ErrSyncInFlight
	}
	defer s.guard.end(sessionID)

	session, err := s.gateway.GetCheckoutSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}

	if offerID, ok := parseOfferReference(session.ClientReferenceID); ok {
		return s.syncOffer(ctx, session, offerID)
	}
	return s.syncSubscription(ctx, session)
}

func (s *CheckoutService) syncOffer(ctx context.Context, session *CheckoutSession, offerID int64) (*SyncResult, error) {
	offer, err := s.offerRepo.GetByID(ctx, offerID)
	if err != nil {
		return nil, err
	}

	// Already settled: success without re-applying, and no event. Re-running
	// reconciliation must not double-create contracts or duplicate payouts.
	if offer.Status == models.OfferStatusAccepted || offer.Status == models.OfferStatusCompleted {
		return &SyncResult{Kind: "offer", OfferID: offer.ID, OfferStatus: offer.Status}, nil
	}

	if !sessionPaid(session) {
		return &SyncResult{Kind: "offer", OfferID: offer.ID, OfferStatus: offer.Status}, nil
	}

	// The gateway is authoritative for the amount; the offer row is
	// authoritative for the price. Both are rounded to cents once, here.
	if centsFromDecimal(session.Price) != centsFromDecimal(offer.Price) {
		return nil, ErrAmountMismatch
	}

	result, err := s.offers.Accept(ctx, offerID)
	if err != nil {
		return nil, err
	}

	out := &SyncResult{
		StatusChanged: !result.AlreadyAccepted,
		Kind:          "offer",
		OfferID:       result.Offer.ID,
		OfferStatus:   result.Offer.Status,
	}
	if out.StatusChanged && s.notifier != nil {
		s.notifier.NotifyOfferStatus(result.Offer.ID, result.Offer.Status, result.Offer.CustomerID, result.Offer.CoachID)
	}
	return out, nil
}

func (s *CheckoutService) syncSubscription(ctx context.Context, session *CheckoutSession) (*SyncResult, error) {
	userID, err := strconv.ParseInt(strings.TrimSpace(session.ClientReferenceID), 10, 64)
	if err != nil || userID <= 0 {
		return nil, ErrInvalidInput
	}

	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if !sessionPaid(session) {
		return &SyncResult{Kind: "subscription"}, nil
	}

	plan := session.Plan
	if plan == "" {
		plan = defaultSubscriptionPlan
	}

	// Second pass for a session that already landed: identical end state,
	// reported as a no-op.
	if profile.Plan != nil && *profile.Plan == plan &&
		profile.GatewayCustomerID != nil && *profile.GatewayCustomerID == session.CustomerID {
		return &SyncResult{Kind: "subscription", Plan: plan}, nil
	}

	expiry := time.Now().UTC().Add(subscriptionPeriodDays * 24 * time.Hour)
	if _, err := s.profileRepo.SetSubscription(ctx, userID, plan, &expiry, session.CustomerID); err != nil {
		return nil, err
	}

	return &SyncResult{StatusChanged: true, Kind: "subscription", Plan: plan}, nil
}

// CreateSubscriptionCheckout builds the gateway session for a subscription
// purchase. The redirect URLs carry session_id plus the status
// discriminator the frontend strips after one sync.
func (s *CheckoutService) CreateSubscriptionCheckout(
	ctx context.Context,
	userID int64,
	plan string,
	price float64,
) (*CheckoutSession, error) {
	if userID <= 0 || price <= 0 {
		return nil, ErrInvalidInput
	}
	if plan == "" {
		plan = defaultSubscriptionPlan
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, CreateCheckoutSessionInput{
		ClientReferenceID: strconv.FormatInt(userID, 10),
		Price:             price,
		Currency:          "usd",
		Plan:              plan,
		SuccessURL:        s.appBaseURL + "/payment?session_id={CHECKOUT_SESSION_ID}&status=success",
		CancelURL:         s.appBaseURL + "/payment?status=cancel",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return session, nil
}

// CreateOfferCheckout builds the gateway session for paying a pending
// offer. The amount comes from the offer row, never from the client.
func (s *CheckoutService) CreateOfferCheckout(
	ctx context.Context,
	customerID int64,
	offerID int64,
) (*CheckoutSession, error) {
	offer, err := s.offers.GetOffer(ctx, customerID, offerID)
	if err != nil {
		return nil, err
	}
	if offer.CustomerID != customerID {
		return nil, ErrForbidden
	}
	if offer.Status != models.OfferStatusPending {
		return nil, ErrInvalidStateTransition
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, CreateCheckoutSessionInput{
		ClientReferenceID: offerReference(offer.ID),
		Price:             offer.Price,
		Currency:          "usd",
		SuccessURL:        s.appBaseURL + "/messages?session_id={CHECKOUT_SESSION_ID}&offer_status=paid",
		CancelURL:         s.appBaseURL + "/messages?offer_status=cancel",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return session, nil
}

func offerReference(offerID int64) string {
	return offerReferencePrefix + strconv.FormatInt(offerID, 10)
}

func parseOfferReference(reference string) (int64, bool) {
	trimmed := strings.TrimSpace(reference)
	if !strings.HasPrefix(trimmed, offerReferencePrefix) {
		return 0, false
	}
	offerID, err := strconv.ParseInt(strings.TrimPrefix(trimmed, offerReferencePrefix), 10, 64)
	if err != nil || offerID <= 0 {
		return 0, false
	}
	return offerID, true
}

func sessionPaid(session *CheckoutSession) bool {
	return session.Status == "complete" && session.PaymentStatus == "paid"
}
