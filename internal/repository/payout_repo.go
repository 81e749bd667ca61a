package repository

import (
	"context"
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

const payoutColumns = `id, coach_id, amount_cents, platform_fee_cents, net_amount_cents,
	   status, payout_type, reference, period_start, period_end, created_at`

// availableBalanceExpr is the ledger's definition of withdrawable funds:
// net earnings already paid out by the processor, minus everything a
// withdrawal has claimed (pending or paid).
const availableBalanceExpr = `
	COALESCE((
		SELECT SUM(net_amount_cents) FROM payouts
		WHERE coach_id = $1 AND payout_type = 'completion' AND status = 'paid'
	), 0)
	-
	COALESCE((
		SELECT SUM(amount_cents) FROM payouts
		WHERE coach_id = $1 AND payout_type = 'withdrawal' AND status IN ('pending', 'paid')
	), 0)`

type CreatePayoutInput struct {
	CoachID          int64
	AmountCents      int64
	PlatformFeeCents int64
	NetAmountCents   int64
	PayoutType       string
	Reference        string
	PeriodStart      time.Time
	PeriodEnd        time.Time
}

type PayoutRepository struct {
	db DBTX
}

func NewPayoutRepository(db DBTX) *PayoutRepository {
	return &PayoutRepository{db: db}
}

func (r *PayoutRepository) Create(ctx context.Context, input CreatePayoutInput) (*models.Payout, error) {
	query := `
		INSERT INTO payouts (coach_id, amount_cents, platform_fee_cents, net_amount_cents, status, payout_type, reference, period_start, period_end)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6, $7, $8)
		RETURNING ` + payoutColumns
	return r.scanOne(r.db.QueryRow(
		ctx,
		query,
		input.CoachID,
		input.AmountCents,
		input.PlatformFeeCents,
		input.NetAmountCents,
		input.PayoutType,
		input.Reference,
		input.PeriodStart,
		input.PeriodEnd,
	))
}

// CreateWithdrawalIfCovered inserts the withdrawal row only while the
// ledger still covers the amount. The per-coach advisory lock serializes
// concurrent requests; once a request holds the lock, the balance check
// runs on a snapshot that includes every committed withdrawal, so the
// second of two racing requests matches nothing and gets pgx.ErrNoRows.
func (r *PayoutRepository) CreateWithdrawalIfCovered(
	ctx context.Context,
	coachID int64,
	amountCents int64,
	reference string,
	periodStart time.Time,
	periodEnd time.Time,
) (*models.Payout, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, coachID); err != nil {
		return nil, err
	}

	query := `
		INSERT INTO payouts (coach_id, amount_cents, platform_fee_cents, net_amount_cents, status, payout_type, reference, period_start, period_end)
		SELECT $1, $2, 0, $2, 'pending', 'withdrawal', $3, $4, $5
		WHERE (` + availableBalanceExpr + `) >= $2
		RETURNING ` + payoutColumns
	payout, err := r.scanOne(tx.QueryRow(ctx, query, coachID, amountCents, reference, periodStart, periodEnd))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return payout, nil
}

func (r *PayoutRepository) GetByReference(ctx context.Context, reference string) (*models.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE reference = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, reference))
}

func (r *PayoutRepository) AvailableBalance(ctx context.Context, coachID int64) (int64, error) {
	query := `SELECT ` + availableBalanceExpr
	var balance int64
	if err := r.db.QueryRow(ctx, query, coachID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *PayoutRepository) ListByCoachID(ctx context.Context, coachID int64) ([]models.Payout, error) {
	query := `
		SELECT ` + payoutColumns + `
		FROM payouts
		WHERE coach_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, coachID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	payouts := make([]models.Payout, 0)
	for rows.Next() {
		var payout models.Payout
		if err := rows.Scan(
			&payout.ID,
			&payout.CoachID,
			&payout.AmountCents,
			&payout.PlatformFeeCents,
			&payout.NetAmountCents,
			&payout.Status,
			&payout.PayoutType,
			&payout.Reference,
			&payout.PeriodStart,
			&payout.PeriodEnd,
			&payout.CreatedAt,
		); err != nil {
			return nil, err
		}
		payouts = append(payouts, payout)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payouts, nil
}

// UpdateStatusIfCurrent advances a payout through the external processor's
// states. Local code never reverses paid or failed.
func (r *PayoutRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	payoutID int64,
	currentStatus string,
	nextStatus string,
) (*models.Payout, error) {
	query := `
		UPDATE payouts
		SET status = $3
		WHERE id = $1 AND status = $2
		RETURNING ` + payoutColumns
	return r.scanOne(r.db.QueryRow(ctx, query, payoutID, currentStatus, nextStatus))
}

func (r *PayoutRepository) scanOne(row interface{ Scan(dest ...any) error }) (*models.Payout, error) {
	var payout models.Payout
	err := row.Scan(
		&payout.ID,
		&payout.CoachID,
		&payout.AmountCents,
		&payout.PlatformFeeCents,
		&payout.NetAmountCents,
		&payout.Status,
		&payout.PayoutType,
		&payout.Reference,
		&payout.PeriodStart,
		&payout.PeriodEnd,
		&payout.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payout, nil
}
