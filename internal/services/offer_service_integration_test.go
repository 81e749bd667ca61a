package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/repository"
)

var (
	testDBOnce sync.Once
	testDBPool *pgxpool.Pool
	testDBErr  error
)

func TestOfferServiceCreateAndAcceptFlow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationOfferService(pool)

	customerID := createTestAccount(t, ctx, pool, "customer")
	coachID := createTestAccount(t, ctx, pool, "coach")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, customerID, coachID) })

	offer, err := service.CreateOffer(ctx, coachID, CreateOfferInput{
		CustomerID:     customerID,
		Price:          120.50,
		DurationMonths: 8,
	})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}
	if offer.Status != models.OfferStatusPending {
		t.Fatalf("expected pending offer, got %q", offer.Status)
	}
	if offer.MessageID == nil {
		t.Fatalf("expected the offer card linked to the offer")
	}

	card, err := repository.NewMessageRepository(pool).GetByID(ctx, *offer.MessageID)
	if err != nil {
		t.Fatalf("load offer card: %v", err)
	}
	if card.OfferID == nil || *card.OfferID != offer.ID {
		t.Fatalf("card not linked back to offer: %+v", card)
	}

	result, err := service.Accept(ctx, offer.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if result.AlreadyAccepted {
		t.Fatalf("first accept is not a replay")
	}
	if result.Contract == nil || result.Contract.Status != models.ContractStatusActive {
		t.Fatalf("expected active contract, got %+v", result.Contract)
	}
	if result.Contract.PriceCents != 12050 {
		t.Fatalf("expected 12050 cents, got %d", result.Contract.PriceCents)
	}

	profile, err := repository.NewProfileRepository(pool).GetByUserID(ctx, customerID)
	if err != nil {
		t.Fatalf("load profile: %v", err)
	}
	if profile.CoachID == nil || *profile.CoachID != coachID {
		t.Fatalf("expected coach link on profile, got %+v", profile.CoachID)
	}
	if profile.Plan == nil || *profile.Plan != "8-week plan" {
		t.Fatalf("unexpected plan: %v", profile.Plan)
	}
	if profile.PlanExpiry == nil {
		t.Fatalf("expected plan expiry set")
	}
	wantExpiry := time.Now().UTC().Add(56 * 24 * time.Hour)
	if diff := profile.PlanExpiry.Sub(wantExpiry); diff > time.Minute || diff < -time.Minute {
		t.Fatalf("plan expiry off by %v (8 units are weeks, not months)", diff)
	}

	replay, err := service.Accept(ctx, offer.ID)
	if err != nil {
		t.Fatalf("Accept replay: %v", err)
	}
	if !replay.AlreadyAccepted {
		t.Fatalf("second accept must be a no-op")
	}
	if replay.Contract != nil {
		t.Fatalf("replay must not create another contract")
	}

	contracts, err := repository.NewContractRepository(pool).ListForParty(ctx, customerID)
	if err != nil {
		t.Fatalf("list contracts: %v", err)
	}
	if len(contracts) != 1 {
		t.Fatalf("expected exactly one contract, got %d", len(contracts))
	}
}

func TestOfferServiceRejectKeepsTheRow(t *testing.T) {
	ctx := context.Background()
	pool := integrationTestPool(t)
	service := newIntegrationOfferService(pool)

	customerID := createTestAccount(t, ctx, pool, "customer")
	coachID := createTestAccount(t, ctx, pool, "coach")
	t.Cleanup(func() { cleanupTestUsers(t, ctx, pool, customerID, coachID) })

	offer, err := service.CreateOffer(ctx, coachID, CreateOfferInput{
		CustomerID:     customerID,
		Price:          80,
		DurationMonths: 4,
	})
	if err != nil {
		t.Fatalf("CreateOffer: %v", err)
	}

	rejected, err := service.Reject(ctx, customerID, offer.ID)
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != models.OfferStatusRejected {
		t.Fatalf("expected rejected offer, got %q", rejected.Status)
	}

	stored, err := repository.NewOfferRepository(pool).GetByID(ctx, offer.ID)
	if err != nil {
		t.Fatalf("rejected offer must stay queryable: %v", err)
	}
	if stored.Status != models.OfferStatusRejected {
		t.Fatalf("unexpected stored status: %q", stored.Status)
	}

	if _, err := service.Accept(ctx, offer.ID); err != ErrInvalidStateTransition {
		t.Fatalf("rejected offers cannot be accepted, got %v", err)
	}
}

func integrationTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	testDBOnce.Do(func() {
		_ = godotenv.Load(".env")
		_ = godotenv.Load(filepath.Join("..", "..", ".env"))

		dbURL := os.Getenv("DB_URL")
		if dbURL == "" {
			testDBErr = fmt.Errorf("DB_URL is not set")
			return
		}

		cfg, err := pgxpool.ParseConfig(dbURL)
		if err != nil {
			testDBErr = err
			return
		}

		testDBPool, testDBErr = pgxpool.NewWithConfig(context.Background(), cfg)
		if testDBErr != nil {
			return
		}
		testDBErr = testDBPool.Ping(context.Background())
	})

	if testDBErr != nil {
		t.Skipf("skipping integration test: %v", testDBErr)
	}
	return testDBPool
}

func newIntegrationOfferService(pool *pgxpool.Pool) *OfferService {
	return NewOfferService(
		pool,
		repository.NewOfferRepository(pool),
		repository.NewProfileRepository(pool),
		repository.NewContractRepository(pool),
		repository.NewConversationRepository(pool),
		repository.NewMessageRepository(pool),
		repository.NewUserRepository(pool),
	)
}

func createTestAccount(t *testing.T, ctx context.Context, pool *pgxpool.Pool, role string) int64 {
	t.Helper()

	userRepo := repository.NewUserRepository(pool)
	user := &models.User{
		Email:        fmt.Sprintf("offer-test-%s-%d@example.com", role, time.Now().UnixNano()),
		PasswordHash: "test-hash",
		Role:         role,
	}
	if err := userRepo.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser(%s): %v", role, err)
	}

	if err := repository.NewProfileRepository(pool).CreateEmpty(ctx, user.ID, role); err != nil {
		t.Fatalf("CreateEmpty profile: %v", err)
	}

	return user.ID
}

func cleanupTestUsers(t *testing.T, ctx context.Context, pool *pgxpool.Pool, userIDs ...int64) {
	t.Helper()

	if len(userIDs) == 0 {
		return
	}

	if _, err := pool.Exec(ctx, "DELETE FROM program_completions WHERE customer_id = ANY($1) OR coach_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup completions: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM payouts WHERE coach_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup payouts: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM contracts WHERE customer_id = ANY($1) OR coach_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup contracts: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM messages WHERE conversation_id IN (SELECT id FROM conversations WHERE customer_id = ANY($1) OR coach_id = ANY($1))", userIDs); err != nil {
		t.Fatalf("cleanup messages: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM coach_offers WHERE customer_id = ANY($1) OR coach_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup offers: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM conversations WHERE customer_id = ANY($1) OR coach_id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup conversations: %v", err)
	}
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE id = ANY($1)", userIDs); err != nil {
		t.Fatalf("cleanup users: %v", err)
	}
}
