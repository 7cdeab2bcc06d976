package repository

import (
	"context"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// BundleRepository manages purchased bundles.
type BundleRepository interface {
	GetDetail(ctx context.Context, merchantID, id string) (*domain.BundleDetail, error)
	GetDetailForUpdate(ctx context.Context, merchantID, id string) (*domain.BundleDetail, error)
	UpdateRemaining(ctx context.Context, bundle *domain.BundleDetail) error
}

type bundleRepository struct {
	db DBTX
}

// NewBundleRepository instantiates repository.
func NewBundleRepository(db DBTX) BundleRepository {
	return &bundleRepository{db: db}
}

const bundleDetailQuery = `
        SELECT b.id, b.user_id, b.catalog_id, b.merchant_id, bc.item_name,
               b.total_quantity, b.remaining_quantity, b.status, b.updated_at
        FROM bundles b
        JOIN bundle_catalogs bc ON bc.id = b.catalog_id
        WHERE b.id=$1 AND b.merchant_id=$2`

func (r *bundleRepository) GetDetail(ctx context.Context, merchantID, id string) (*domain.BundleDetail, error) {
	return r.fetchSingle(ctx, bundleDetailQuery, merchantID, id)
}

func (r *bundleRepository) GetDetailForUpdate(ctx context.Context, merchantID, id string) (*domain.BundleDetail, error) {
	return r.fetchSingle(ctx, bundleDetailQuery+` FOR UPDATE OF b`, merchantID, id)
}

func (r *bundleRepository) fetchSingle(ctx context.Context, query, merchantID, id string) (*domain.BundleDetail, error) {
	var b domain.BundleDetail
	if err := r.db.QueryRow(ctx, query, id, merchantID).Scan(
		&b.ID,
		&b.UserID,
		&b.CatalogID,
		&b.MerchantID,
		&b.ItemName,
		&b.TotalQuantity,
		&b.RemainingQuantity,
		&b.Status,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *bundleRepository) UpdateRemaining(ctx context.Context, bundle *domain.BundleDetail) error {
	const query = `
        UPDATE bundles SET remaining_quantity=$1, status=$2, updated_at=NOW()
        WHERE id=$3
        RETURNING updated_at`
	return r.db.QueryRow(ctx, query, bundle.RemainingQuantity, bundle.Status, bundle.ID).Scan(&bundle.UpdatedAt)
}
