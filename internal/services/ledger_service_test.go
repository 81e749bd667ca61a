package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/repository"
)

type stubContractStore struct {
	contracts    map[int64]*models.Contract
	createResult *models.Contract
	createErr    error
	lastCreate   repository.CreateContractInput
	updateResult *models.Contract
	updateErr    error
	updateCalls  int
	expired      []models.Contract
	expireErr    error
}

func (s *stubContractStore) Create(_ context.Context, input repository.CreateContractInput) (*models.Contract, error) {
	s.lastCreate = input
	return s.createResult, s.createErr
}

func (s *stubContractStore) GetByID(_ context.Context, contractID int64) (*models.Contract, error) {
	contract, ok := s.contracts[contractID]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return contract, nil
}

func (s *stubContractStore) ListForParty(_ context.Context, _ int64) ([]models.Contract, error) {
	out := make([]models.Contract, 0, len(s.contracts))
	for _, contract := range s.contracts {
		out = append(out, *contract)
	}
	return out, nil
}

func (s *stubContractStore) UpdateStatusIfCurrent(_ context.Context, _ int64, _, _ string) (*models.Contract, error) {
	s.updateCalls++
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	return s.updateResult, nil
}

func (s *stubContractStore) ExpireEndedBefore(_ context.Context, _ time.Time) ([]models.Contract, error) {
	return s.expired, s.expireErr
}

type stubPayoutStore struct {
	createResult   *models.Payout
	createErr      error
	createCalls    int
	lastCreate     repository.CreatePayoutInput
	byReference    *models.Payout
	byReferenceErr error
	withdrawal     *models.Payout
	withdrawalErr  error
	balance        int64
	balanceErr     error
	lastWithdrawal int64
}

func (s *stubPayoutStore) Create(_ context.Context, input repository.CreatePayoutInput) (*models.Payout, error) {
	s.createCalls++
	s.lastCreate = input
	return s.createResult, s.createErr
}

func (s *stubPayoutStore) CreateWithdrawalIfCovered(_ context.Context, _ int64, amountCents int64, _ string, _, _ time.Time) (*models.Payout, error) {
	s.lastWithdrawal = amountCents
	return s.withdrawal, s.withdrawalErr
}

func (s *stubPayoutStore) GetByReference(_ context.Context, _ string) (*models.Payout, error) {
	if s.byReferenceErr != nil {
		return nil, s.byReferenceErr
	}
	if s.byReference == nil {
		return nil, pgx.ErrNoRows
	}
	return s.byReference, nil
}

func (s *stubPayoutStore) AvailableBalance(_ context.Context, _ int64) (int64, error) {
	return s.balance, s.balanceErr
}

func (s *stubPayoutStore) ListByCoachID(_ context.Context, _ int64) ([]models.Payout, error) {
	return nil, nil
}

type stubCompletionStore struct {
	createResult *models.ProgramCompletion
	createErr    error
	createCalls  int
	lastCreate   repository.CreateCompletionInput
	getResult    *models.ProgramCompletion
	getErr       error
}

func (s *stubCompletionStore) Create(_ context.Context, input repository.CreateCompletionInput) (*models.ProgramCompletion, error) {
	s.createCalls++
	s.lastCreate = input
	return s.createResult, s.createErr
}

func (s *stubCompletionStore) GetByContractID(_ context.Context, _ int64) (*models.ProgramCompletion, error) {
	return s.getResult, s.getErr
}

type stubOfferStatusStore struct {
	result *models.CoachOffer
	err    error
	calls  int
}

func (s *stubOfferStatusStore) UpdateStatusIfCurrent(_ context.Context, _ int64, _, _ string) (*models.CoachOffer, error) {
	s.calls++
	return s.result, s.err
}

type stubAnnouncer struct {
	contents []string
	err      error
}

func (s *stubAnnouncer) AnnounceSystem(_ context.Context, _, _ int64, content string) error {
	s.contents = append(s.contents, content)
	return s.err
}

func activeContract() *models.Contract {
	offerID := int64(5)
	return &models.Contract{
		ID:              1,
		OfferID:         &offerID,
		CoachID:         7,
		CustomerID:      42,
		Status:          models.ContractStatusActive,
		StartDate:       time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2030, 3, 1, 0, 0, 0, 0, time.UTC),
		PriceCents:      10000,
		PlatformFeeRate: 0.20,
	}
}

func completedCopy(contract *models.Contract) *models.Contract {
	copied := *contract
	copied.Status = models.ContractStatusCompleted
	return &copied
}

func TestSplitRevenue(t *testing.T) {
	cases := []struct {
		total     int64
		feeRate   float64
		wantCoach int64
		wantFee   int64
	}{
		{10000, 0.20, 8000, 2000},
		{9999, 0.20, 7999, 2000},
		{1, 0.20, 1, 0},
		{0, 0.20, 0, 0},
		{12050, 0.20, 9640, 2410},
	}

	for _, tc := range cases {
		coach, fee := SplitRevenue(tc.total, tc.feeRate)
		if coach != tc.wantCoach || fee != tc.wantFee {
			t.Fatalf("SplitRevenue(%d, %v) = (%d, %d), want (%d, %d)", tc.total, tc.feeRate, coach, fee, tc.wantCoach, tc.wantFee)
		}
		if coach+fee != tc.total {
			t.Fatalf("split of %d does not sum back: %d + %d", tc.total, coach, fee)
		}
	}
}

func TestCompleteProgramWritesLedger(t *testing.T) {
	contract := activeContract()
	completed := completedCopy(contract)
	contracts := &stubContractStore{
		contracts:    map[int64]*models.Contract{1: contract},
		updateResult: completed,
	}
	payouts := &stubPayoutStore{createResult: &models.Payout{ID: 10, NetAmountCents: 8000}}
	completions := &stubCompletionStore{createResult: &models.ProgramCompletion{ID: 20, ContractID: 1}}
	offers := &stubOfferStatusStore{result: &models.CoachOffer{ID: 5, Status: models.OfferStatusCompleted}}
	announcer := &stubAnnouncer{}

	service := NewLedgerService(contracts, payouts, completions, offers, announcer)

	result, err := service.CompleteProgram(context.Background(), 7, 42, 1)
	if err != nil {
		t.Fatalf("CompleteProgram: %v", err)
	}
	if result.AlreadyCompleted {
		t.Fatalf("first completion is not a replay")
	}
	if completions.lastCreate.CoachAmountCents != 8000 || completions.lastCreate.PlatformFeeCents != 2000 {
		t.Fatalf("unexpected split: %+v", completions.lastCreate)
	}
	if payouts.lastCreate.NetAmountCents != 8000 || payouts.lastCreate.PayoutType != models.PayoutTypeCompletion {
		t.Fatalf("unexpected payout: %+v", payouts.lastCreate)
	}
	if payouts.lastCreate.Reference != "contract-1-completion" {
		t.Fatalf("unexpected payout reference: %q", payouts.lastCreate.Reference)
	}
	if offers.calls != 1 {
		t.Fatalf("expected offer close-out, got %d calls", offers.calls)
	}
	if len(announcer.contents) != 1 {
		t.Fatalf("expected completion announcement, got %+v", announcer.contents)
	}
}

func TestCompleteProgramForbiddenForOtherCoach(t *testing.T) {
	contracts := &stubContractStore{contracts: map[int64]*models.Contract{1: activeContract()}}
	service := NewLedgerService(contracts, &stubPayoutStore{}, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	if _, err := service.CompleteProgram(context.Background(), 99, 42, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestCompleteProgramRejectsWrongCustomer(t *testing.T) {
	contracts := &stubContractStore{contracts: map[int64]*models.Contract{1: activeContract()}}
	payouts := &stubPayoutStore{}
	service := NewLedgerService(contracts, payouts, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	if _, err := service.CompleteProgram(context.Background(), 7, 43, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for the wrong customer, got %v", err)
	}
	if contracts.updateCalls != 0 || payouts.createCalls != 0 {
		t.Fatalf("party mismatch must not touch the contract or the ledger")
	}
}

func TestCompleteProgramAlreadyCompletedIsIdempotent(t *testing.T) {
	contract := completedCopy(activeContract())
	contracts := &stubContractStore{contracts: map[int64]*models.Contract{1: contract}}
	payouts := &stubPayoutStore{}
	completions := &stubCompletionStore{}

	service := NewLedgerService(contracts, payouts, completions, &stubOfferStatusStore{}, nil)

	result, err := service.CompleteProgram(context.Background(), 7, 42, 1)
	if err != nil {
		t.Fatalf("CompleteProgram: %v", err)
	}
	if !result.AlreadyCompleted {
		t.Fatalf("expected replay flag")
	}
	if payouts.createCalls != 0 || completions.createCalls != 0 {
		t.Fatalf("replay must not write the ledger again")
	}
}

func TestCompleteProgramRejectsExpiredContract(t *testing.T) {
	contract := activeContract()
	contract.Status = models.ContractStatusExpired
	contracts := &stubContractStore{contracts: map[int64]*models.Contract{1: contract}}

	service := NewLedgerService(contracts, &stubPayoutStore{}, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	if _, err := service.CompleteProgram(context.Background(), 7, 42, 1); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestCompleteProgramPartialLedgerFailure(t *testing.T) {
	contract := activeContract()
	contracts := &stubContractStore{
		contracts:    map[int64]*models.Contract{1: contract},
		updateResult: completedCopy(contract),
	}
	completions := &stubCompletionStore{createResult: &models.ProgramCompletion{ID: 20}}
	payouts := &stubPayoutStore{createErr: errors.New("connection reset")}

	service := NewLedgerService(contracts, payouts, completions, &stubOfferStatusStore{}, nil)

	result, err := service.CompleteProgram(context.Background(), 7, 42, 1)
	if !errors.Is(err, ErrPartialCompletion) {
		t.Fatalf("expected ErrPartialCompletion, got %v", err)
	}
	if result == nil || result.Contract == nil || result.Contract.Status != models.ContractStatusCompleted {
		t.Fatalf("the flip is durable and must be reported: %+v", result)
	}
}

func TestRetryCompletionLedgerToleratesExistingRows(t *testing.T) {
	contract := completedCopy(activeContract())
	contracts := &stubContractStore{contracts: map[int64]*models.Contract{1: contract}}
	completions := &stubCompletionStore{
		createErr: &pgconn.PgError{Code: "23505"},
		getResult: &models.ProgramCompletion{ID: 20, ContractID: 1, CoachAmountCents: 8000},
	}
	payouts := &stubPayoutStore{createResult: &models.Payout{ID: 10}}

	service := NewLedgerService(contracts, payouts, completions, &stubOfferStatusStore{}, nil)

	result, err := service.RetryCompletionLedger(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("RetryCompletionLedger: %v", err)
	}
	if result.Completion == nil || result.Completion.ID != 20 {
		t.Fatalf("expected the existing completion row, got %+v", result.Completion)
	}
	if payouts.createCalls != 1 {
		t.Fatalf("expected the missing payout to be written")
	}
}

func TestRetryCompletionLedgerReloadsExistingPayout(t *testing.T) {
	contract := completedCopy(activeContract())
	contracts := &stubContractStore{contracts: map[int64]*models.Contract{1: contract}}
	completions := &stubCompletionStore{createResult: &models.ProgramCompletion{ID: 20, ContractID: 1}}
	payouts := &stubPayoutStore{
		createErr:   &pgconn.PgError{Code: "23505"},
		byReference: &models.Payout{ID: 10, NetAmountCents: 8000, Reference: "contract-1-completion"},
	}

	service := NewLedgerService(contracts, payouts, completions, &stubOfferStatusStore{}, nil)

	result, err := service.RetryCompletionLedger(context.Background(), 7, 1)
	if err != nil {
		t.Fatalf("RetryCompletionLedger: %v", err)
	}
	if result.Payout == nil || result.Payout.ID != 10 {
		t.Fatalf("expected the existing payout row in the result, got %+v", result.Payout)
	}
}

func TestRetryCompletionLedgerRequiresCompletedContract(t *testing.T) {
	contracts := &stubContractStore{contracts: map[int64]*models.Contract{1: activeContract()}}
	service := NewLedgerService(contracts, &stubPayoutStore{}, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	if _, err := service.RetryCompletionLedger(context.Background(), 7, 1); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestRenewContractCarriesTerms(t *testing.T) {
	previous := completedCopy(activeContract())
	contracts := &stubContractStore{
		contracts:    map[int64]*models.Contract{1: previous},
		createResult: &models.Contract{ID: 2, CoachID: 7, CustomerID: 42, Status: models.ContractStatusActive},
	}

	service := NewLedgerService(contracts, &stubPayoutStore{}, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	renewed, err := service.RenewContract(context.Background(), 42, 1, 2)
	if err != nil {
		t.Fatalf("RenewContract: %v", err)
	}
	if renewed.ID != 2 {
		t.Fatalf("expected new contract row, got %+v", renewed)
	}
	if contracts.lastCreate.PriceCents != previous.PriceCents {
		t.Fatalf("renewal must carry the price, got %d", contracts.lastCreate.PriceCents)
	}
	if contracts.lastCreate.PlatformFeeRate != previous.PlatformFeeRate {
		t.Fatalf("renewal must carry the fee rate, got %v", contracts.lastCreate.PlatformFeeRate)
	}
	got := contracts.lastCreate.EndDate.Sub(contracts.lastCreate.StartDate)
	want := time.Duration(2*renewalPeriodDays) * 24 * time.Hour
	if got != want {
		t.Fatalf("expected %v period, got %v", want, got)
	}

	if _, err := service.RenewContract(context.Background(), 99, 1, 2); !errors.Is(err, ErrForbidden) {
		t.Fatalf("strangers cannot renew, got %v", err)
	}
	if _, err := service.RenewContract(context.Background(), 42, 1, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for zero months, got %v", err)
	}
}

func TestRequestWithdrawal(t *testing.T) {
	payouts := &stubPayoutStore{
		balance:    8000,
		withdrawal: &models.Payout{ID: 11, AmountCents: 5000, PayoutType: models.PayoutTypeWithdrawal},
	}
	service := NewLedgerService(&stubContractStore{}, payouts, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	payout, err := service.RequestWithdrawal(context.Background(), 7, 5000)
	if err != nil {
		t.Fatalf("RequestWithdrawal: %v", err)
	}
	if payout.ID != 11 {
		t.Fatalf("unexpected payout: %+v", payout)
	}
	if payouts.lastWithdrawal != 5000 {
		t.Fatalf("unexpected amount: %d", payouts.lastWithdrawal)
	}
}

func TestRequestWithdrawalInsufficientBalance(t *testing.T) {
	payouts := &stubPayoutStore{balance: 3000}
	service := NewLedgerService(&stubContractStore{}, payouts, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	if _, err := service.RequestWithdrawal(context.Background(), 7, 5000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestRequestWithdrawalLosesRace(t *testing.T) {
	// The advisory read passes but the conditional insert matches nothing:
	// a concurrent withdrawal spent the balance first.
	payouts := &stubPayoutStore{balance: 8000, withdrawalErr: pgx.ErrNoRows}
	service := NewLedgerService(&stubContractStore{}, payouts, &stubCompletionStore{}, &stubOfferStatusStore{}, nil)

	if _, err := service.RequestWithdrawal(context.Background(), 7, 5000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds on the race, got %v", err)
	}
}

func TestExpireDueContractsAnnounces(t *testing.T) {
	expired := []models.Contract{
		{ID: 1, CoachID: 7, CustomerID: 42, Status: models.ContractStatusExpired},
		{ID: 2, CoachID: 7, CustomerID: 43, Status: models.ContractStatusExpired},
	}
	contracts := &stubContractStore{expired: expired}
	announcer := &stubAnnouncer{}

	service := NewLedgerService(contracts, &stubPayoutStore{}, &stubCompletionStore{}, &stubOfferStatusStore{}, announcer)

	flipped, err := service.ExpireDueContracts(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("ExpireDueContracts: %v", err)
	}
	if len(flipped) != 2 {
		t.Fatalf("expected 2 expired contracts, got %d", len(flipped))
	}
	if len(announcer.contents) != 2 {
		t.Fatalf("expected one announcement per contract, got %d", len(announcer.contents))
	}
}
