package repository

import (
	"context"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// CardRepository manages punch cards.
type CardRepository interface {
	Create(ctx context.Context, card *domain.PunchCard) error
	UpdateProgress(ctx context.Context, card *domain.PunchCard) error
	GetDetail(ctx context.Context, merchantID, id string) (*domain.CardDetail, error)
	GetDetailForUpdate(ctx context.Context, merchantID, id string) (*domain.CardDetail, error)
	FindOpenForUpdate(ctx context.Context, userID, programID string) (*domain.PunchCard, error)
}

type cardRepository struct {
	db DBTX
}

// NewCardRepository instantiates repository.
func NewCardRepository(db DBTX) CardRepository {
	return &cardRepository{db: db}
}

const cardColumns = `c.id, c.user_id, c.program_id, c.merchant_id, c.current_punches, c.status,
               c.redeemed_at, c.created_at, c.updated_at`

func (r *cardRepository) Create(ctx context.Context, card *domain.PunchCard) error {
	const query = `
        INSERT INTO punch_cards (id, user_id, program_id, merchant_id, current_punches, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		card.ID,
		card.UserID,
		card.ProgramID,
		card.MerchantID,
		card.CurrentPunches,
		card.Status,
	).Scan(&card.CreatedAt, &card.UpdatedAt)
}

func (r *cardRepository) UpdateProgress(ctx context.Context, card *domain.PunchCard) error {
	const query = `
        UPDATE punch_cards SET current_punches=$1, status=$2, redeemed_at=$3, updated_at=NOW()
        WHERE id=$4
        RETURNING updated_at`
	return r.db.QueryRow(ctx, query,
		card.CurrentPunches,
		card.Status,
		card.RedeemedAt,
		card.ID,
	).Scan(&card.UpdatedAt)
}

func (r *cardRepository) GetDetail(ctx context.Context, merchantID, id string) (*domain.CardDetail, error) {
	return r.fetchDetail(ctx, detailQuery, merchantID, id)
}

func (r *cardRepository) GetDetailForUpdate(ctx context.Context, merchantID, id string) (*domain.CardDetail, error) {
	return r.fetchDetail(ctx, detailQuery+` FOR UPDATE OF c`, merchantID, id)
}

const detailQuery = `
        SELECT ` + cardColumns + `,
               p.id, p.name, p.reward_description, p.required_punches, m.name
        FROM punch_cards c
        JOIN programs p ON p.id = c.program_id
        JOIN merchants m ON m.id = c.merchant_id
        WHERE c.id=$1 AND c.merchant_id=$2`

func (r *cardRepository) fetchDetail(ctx context.Context, query, merchantID, id string) (*domain.CardDetail, error) {
	var d domain.CardDetail
	if err := r.db.QueryRow(ctx, query, id, merchantID).Scan(
		&d.Card.ID,
		&d.Card.UserID,
		&d.Card.ProgramID,
		&d.Card.MerchantID,
		&d.Card.CurrentPunches,
		&d.Card.Status,
		&d.Card.RedeemedAt,
		&d.Card.CreatedAt,
		&d.Card.UpdatedAt,
		&d.Program.ID,
		&d.Program.Name,
		&d.Program.RewardDescription,
		&d.Program.RequiredPunches,
		&d.MerchantName,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

// FindOpenForUpdate returns the user's newest unredeemed card in the program,
// or pgx.ErrNoRows.
func (r *cardRepository) FindOpenForUpdate(ctx context.Context, userID, programID string) (*domain.PunchCard, error) {
	query := `
        SELECT ` + cardColumns + `
        FROM punch_cards c
        WHERE c.user_id=$1 AND c.program_id=$2 AND c.status <> $3
        ORDER BY c.created_at DESC
        LIMIT 1
        FOR UPDATE`
	var card domain.PunchCard
	if err := r.db.QueryRow(ctx, query, userID, programID, domain.CardStatusRewardRedeemed).Scan(
		&card.ID,
		&card.UserID,
		&card.ProgramID,
		&card.MerchantID,
		&card.CurrentPunches,
		&card.Status,
		&card.RedeemedAt,
		&card.CreatedAt,
		&card.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &card, nil
}
