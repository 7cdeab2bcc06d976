package domain

import "time"

// BundleStatus enumerates prepaid bundle states.
type BundleStatus string

const (
	BundleStatusActive    BundleStatus = "ACTIVE"
	BundleStatusExhausted BundleStatus = "EXHAUSTED"
)

// BundleCatalogSummary is a bundle offer a merchant sells.
type BundleCatalogSummary struct {
	ID         string `json:"id"`
	ItemName   string `json:"item_name"`
	Quantity   int    `json:"quantity"`
	PriceCents int64  `json:"price_cents"`
}

// BundleDetail is a customer's purchased bundle.
type BundleDetail struct {
	ID                string       `json:"id"`
	UserID            string       `json:"user_id"`
	CatalogID         string       `json:"catalog_id"`
	MerchantID        string       `json:"merchant_id"`
	ItemName          string       `json:"item_name"`
	TotalQuantity     int          `json:"total_quantity"`
	RemainingQuantity int          `json:"remaining_quantity"`
	Status            BundleStatus `json:"status"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// AcceptsQuantity reports whether quantity units can be consumed.
func (b BundleDetail) AcceptsQuantity(quantity int) bool {
	return quantity >= 1 && quantity <= b.RemainingQuantity
}

// BundleUseResult is returned by a consumed bundle.
type BundleUseResult struct {
	ItemName string `json:"item_name"`
}
