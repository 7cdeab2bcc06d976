package repository

import (
	"context"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// PunchRepository appends punch history.
type PunchRepository interface {
	Create(ctx context.Context, punch *domain.Punch) error
}

type punchRepository struct {
	db DBTX
}

// NewPunchRepository instantiates repository.
func NewPunchRepository(db DBTX) PunchRepository {
	return &punchRepository{db: db}
}

func (r *punchRepository) Create(ctx context.Context, punch *domain.Punch) error {
	const query = `
        INSERT INTO punches (id, card_id, merchant_id)
        VALUES ($1,$2,$3)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query, punch.ID, punch.CardID, punch.MerchantID).Scan(&punch.CreatedAt)
}
