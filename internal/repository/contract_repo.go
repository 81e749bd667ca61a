package repository

import (
	"context"
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

const contractColumns = `id, offer_id, coach_id, customer_id, status, start_date, end_date,
	   price_cents, platform_fee_rate, created_at`

type CreateContractInput struct {
	OfferID         *int64
	CoachID         int64
	CustomerID      int64
	StartDate       time.Time
	EndDate         time.Time
	PriceCents      int64
	PlatformFeeRate float64
}

type ContractRepository struct {
	db DBTX
}

func NewContractRepository(db DBTX) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) Create(ctx context.Context, input CreateContractInput) (*models.Contract, error) {
	query := `
		INSERT INTO contracts (offer_id, coach_id, customer_id, status, start_date, end_date, price_cents, platform_fee_rate)
		VALUES ($1, $2, $3, 'active', $4, $5, $6, $7)
		RETURNING ` + contractColumns
	return r.scanOne(r.db.QueryRow(
		ctx,
		query,
		input.OfferID,
		input.CoachID,
		input.CustomerID,
		input.StartDate,
		input.EndDate,
		input.PriceCents,
		input.PlatformFeeRate,
	))
}

func (r *ContractRepository) GetByID(ctx context.Context, contractID int64) (*models.Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, contractID))
}

func (r *ContractRepository) ListForParty(ctx context.Context, partyID int64) ([]models.Contract, error) {
	query := `
		SELECT ` + contractColumns + `
		FROM contracts
		WHERE coach_id = $1 OR customer_id = $1
		ORDER BY created_at DESC, id DESC
	`
	return r.list(ctx, query, partyID)
}

// UpdateStatusIfCurrent is the conditional write guarding completion and
// expiry races; pgx.ErrNoRows means the contract already left currentStatus.
func (r *ContractRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	contractID int64,
	currentStatus string,
	nextStatus string,
) (*models.Contract, error) {
	query := `
		UPDATE contracts
		SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING ` + contractColumns
	return r.scanOne(r.db.QueryRow(ctx, query, contractID, currentStatus, nextStatus))
}

// ExpireEndedBefore flips every active contract whose end_date has passed.
// Re-running the sweep matches nothing the second time.
func (r *ContractRepository) ExpireEndedBefore(ctx context.Context, cutoff time.Time) ([]models.Contract, error) {
	query := `
		UPDATE contracts
		SET status = 'expired'
		WHERE status = 'active' AND end_date < $1
		RETURNING ` + contractColumns
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expired := make([]models.Contract, 0)
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *contract)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return expired, nil
}

func (r *ContractRepository) list(ctx context.Context, query string, args ...any) ([]models.Contract, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contracts := make([]models.Contract, 0)
	for rows.Next() {
		contract, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, *contract)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return contracts, nil
}

func (r *ContractRepository) scanOne(row interface{ Scan(dest ...any) error }) (*models.Contract, error) {
	return scanContract(row)
}

func scanContract(row interface{ Scan(dest ...any) error }) (*models.Contract, error) {
	var contract models.Contract
	err := row.Scan(
		&contract.ID,
		&contract.OfferID,
		&contract.CoachID,
		&contract.CustomerID,
		&contract.Status,
		&contract.StartDate,
		&contract.EndDate,
		&contract.PriceCents,
		&contract.PlatformFeeRate,
		&contract.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &contract, nil
}
