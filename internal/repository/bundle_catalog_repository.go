package repository

import (
	"context"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// BundleCatalogRepository reads the bundle offers a merchant sells.
type BundleCatalogRepository interface {
	ListActive(ctx context.Context, merchantID string) ([]domain.BundleCatalogSummary, error)
}

type bundleCatalogRepository struct {
	db DBTX
}

// NewBundleCatalogRepository instantiates repository.
func NewBundleCatalogRepository(db DBTX) BundleCatalogRepository {
	return &bundleCatalogRepository{db: db}
}

func (r *bundleCatalogRepository) ListActive(ctx context.Context, merchantID string) ([]domain.BundleCatalogSummary, error) {
	const query = `
        SELECT id, item_name, quantity, price_cents
        FROM bundle_catalogs WHERE merchant_id=$1 AND is_active=TRUE
        ORDER BY item_name`
	rows, err := r.db.Query(ctx, query, merchantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.BundleCatalogSummary
	for rows.Next() {
		var c domain.BundleCatalogSummary
		if err := rows.Scan(&c.ID, &c.ItemName, &c.Quantity, &c.PriceCents); err != nil {
			return nil, err
		}
		result = append(result, c)
	}
	return result, rows.Err()
}
