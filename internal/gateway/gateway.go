// Package gateway declares the remote loyalty operations the scan terminal consumes.
//
// Failures are *errorutil.DomainError values carrying an optional human readable
// Message. Lookups of a single card or bundle report absence with a NOT_FOUND
// DomainError (see errorutil.IsNotFound); a card or bundle owned by another
// merchant is reported the same way.
package gateway

import (
	"context"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
)

// Lookups are the read-only calls used to populate a decision step.
type Lookups interface {
	FetchActivePrograms(ctx context.Context, merchantID string) ([]domain.ProgramSummary, error)
	FetchActiveBundleCatalogs(ctx context.Context, merchantID string) ([]domain.BundleCatalogSummary, error)
	FetchCardDetail(ctx context.Context, cardID string) (*domain.CardDetail, error)
	FetchBundleDetail(ctx context.Context, bundleID string) (*domain.BundleDetail, error)
}

// Actions are the irrevocable mutating calls.
type Actions interface {
	RecordPunch(ctx context.Context, userID, programID string) (domain.PunchResult, error)
	RedeemPunchCard(ctx context.Context, cardID string) (domain.RedemptionResult, error)
	UseBundle(ctx context.Context, bundleID string, quantity int) (domain.BundleUseResult, error)
}

// Gateway is the full remote surface.
type Gateway interface {
	Lookups
	Actions
}
