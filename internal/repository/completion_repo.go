package repository

import (
	"context"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

const completionColumns = `id, contract_id, coach_id, customer_id, total_price_cents,
	   coach_amount_cents, platform_fee_cents, created_at`

type CreateCompletionInput struct {
	ContractID       int64
	CoachID          int64
	CustomerID       int64
	TotalPriceCents  int64
	CoachAmountCents int64
	PlatformFeeCents int64
}

type CompletionRepository struct {
	db DBTX
}

func NewCompletionRepository(db DBTX) *CompletionRepository {
	return &CompletionRepository{db: db}
}

// Create relies on the unique index on contract_id: retrying the ledger
// write for an already-recorded completion fails instead of duplicating
// the split.
func (r *CompletionRepository) Create(ctx context.Context, input CreateCompletionInput) (*models.ProgramCompletion, error) {
	query := `
		INSERT INTO program_completions (contract_id, coach_id, customer_id, total_price_cents, coach_amount_cents, platform_fee_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + completionColumns
	return r.scanOne(r.db.QueryRow(
		ctx,
		query,
		input.ContractID,
		input.CoachID,
		input.CustomerID,
		input.TotalPriceCents,
		input.CoachAmountCents,
		input.PlatformFeeCents,
	))
}

func (r *CompletionRepository) GetByContractID(ctx context.Context, contractID int64) (*models.ProgramCompletion, error) {
	query := `
		SELECT ` + completionColumns + `
		FROM program_completions
		WHERE contract_id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, contractID))
}

func (r *CompletionRepository) scanOne(row interface{ Scan(dest ...any) error }) (*models.ProgramCompletion, error) {
	var completion models.ProgramCompletion
	err := row.Scan(
		&completion.ID,
		&completion.ContractID,
		&completion.CoachID,
		&completion.CustomerID,
		&completion.TotalPriceCents,
		&completion.CoachAmountCents,
		&completion.PlatformFeeCents,
		&completion.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &completion, nil
}
