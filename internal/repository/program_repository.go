package repository

import (
	"context"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// ProgramRepository reads reward programs.
type ProgramRepository interface {
	GetByID(ctx context.Context, merchantID, id string) (*domain.Program, error)
	ListActive(ctx context.Context, merchantID string) ([]domain.Program, error)
}

type programRepository struct {
	db DBTX
}

// NewProgramRepository instantiates repository.
func NewProgramRepository(db DBTX) ProgramRepository {
	return &programRepository{db: db}
}

func (r *programRepository) GetByID(ctx context.Context, merchantID, id string) (*domain.Program, error) {
	const query = `
        SELECT id, merchant_id, name, reward_description, required_punches, is_active, created_at, updated_at
        FROM programs WHERE id=$1 AND merchant_id=$2`
	var p domain.Program
	if err := r.db.QueryRow(ctx, query, id, merchantID).Scan(
		&p.ID,
		&p.MerchantID,
		&p.Name,
		&p.RewardDescription,
		&p.RequiredPunches,
		&p.IsActive,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *programRepository) ListActive(ctx context.Context, merchantID string) ([]domain.Program, error) {
	const query = `
        SELECT id, merchant_id, name, reward_description, required_punches, is_active, created_at, updated_at
        FROM programs WHERE merchant_id=$1 AND is_active=TRUE
        ORDER BY name`
	rows, err := r.db.Query(ctx, query, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Program
	for rows.Next() {
		var p domain.Program
		if err := rows.Scan(&p.ID, &p.MerchantID, &p.Name, &p.RewardDescription, &p.RequiredPunches, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
