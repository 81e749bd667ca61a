package repository

import (
	"context"
	"time"

	"github.com/nusretIsmayilov/Trainwisestudio-sub003/internal/models"
)

const offerColumns = `id, coach_id, customer_id, price, duration_months, status, message_id, created_at, updated_at`

type CreateOfferInput struct {
	CoachID        int64
	CustomerID     int64
	Price          float64
	DurationMonths int
}

type OfferRepository struct {
	db DBTX
}

func NewOfferRepository(db DBTX) *OfferRepository {
	return &OfferRepository{db: db}
}

func (r *OfferRepository) Create(ctx context.Context, input CreateOfferInput) (*models.CoachOffer, error) {
	query := `
		INSERT INTO coach_offers (coach_id, customer_id, price, duration_months, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING ` + offerColumns
	return r.scanOne(r.db.QueryRow(ctx, query, input.CoachID, input.CustomerID, input.Price, input.DurationMonths))
}

func (r *OfferRepository) GetByID(ctx context.Context, offerID int64) (*models.CoachOffer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM coach_offers
		WHERE id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, offerID))
}

func (r *OfferRepository) GetByMessageID(ctx context.Context, messageID int64) (*models.CoachOffer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM coach_offers
		WHERE message_id = $1
	`
	return r.scanOne(r.db.QueryRow(ctx, query, messageID))
}

func (r *OfferRepository) ListForParty(ctx context.Context, partyID int64) ([]models.CoachOffer, error) {
	query := `
		SELECT ` + offerColumns + `
		FROM coach_offers
		WHERE coach_id = $1 OR customer_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, partyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	offers := make([]models.CoachOffer, 0)
	for rows.Next() {
		var offer models.CoachOffer
		if err := rows.Scan(
			&offer.ID,
			&offer.CoachID,
			&offer.CustomerID,
			&offer.Price,
			&offer.DurationMonths,
			&offer.Status,
			&offer.MessageID,
			&offer.CreatedAt,
			&offer.UpdatedAt,
		); err != nil {
			return nil, err
		}
		offers = append(offers, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return offers, nil
}

func (r *OfferRepository) SetMessageID(ctx context.Context, offerID int64, messageID int64) error {
	_, err := r.db.Exec(ctx, `
		UPDATE coach_offers
		SET message_id = $2, updated_at = NOW()
		WHERE id = $1
	`, offerID, messageID)
	return err
}

// UpdateStatusIfCurrent performs the conditional single-row write that every
// offer transition races through. pgx.ErrNoRows means the row was no longer
// in currentStatus.
func (r *OfferRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	offerID int64,
	currentStatus string,
	nextStatus string,
) (*models.CoachOffer, error) {
	query := `
		UPDATE coach_offers
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + offerColumns
	return r.scanOne(r.db.QueryRow(ctx, query, offerID, currentStatus, nextStatus))
}

// ExpirePendingBefore flips every pending offer created before the cutoff to
// expired. Safe to re-run; already-expired rows no longer match.
func (r *OfferRepository) ExpirePendingBefore(ctx context.Context, cutoff time.Time) ([]models.CoachOffer, error) {
	query := `
		UPDATE coach_offers
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'pending' AND created_at < $1
		RETURNING ` + offerColumns
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expired := make([]models.CoachOffer, 0)
	for rows.Next() {
		var offer models.CoachOffer
		if err := rows.Scan(
			&offer.ID,
			&offer.CoachID,
			&offer.CustomerID,
			&offer.Price,
			&offer.DurationMonths,
			&offer.Status,
			&offer.MessageID,
			&offer.CreatedAt,
			&offer.UpdatedAt,
		); err != nil {
			return nil, err
		}
		expired = append(expired, offer)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return expired, nil
}

func (r *OfferRepository) scanOne(row interface{ Scan(dest ...any) error }) (*models.CoachOffer, error) {
	var offer models.CoachOffer
	err := row.Scan(
		&offer.ID,
		&offer.CoachID,
		&offer.CustomerID,
		&offer.Price,
		&offer.DurationMonths,
		&offer.Status,
		&offer.MessageID,
		&offer.CreatedAt,
		&offer.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &offer, nil
}
