package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/internal/gateway"
	"github.com/spec-kit/loyalty-scanner/internal/persistence"
	"github.com/spec-kit/loyalty-scanner/internal/repository"
	apperrors "github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

// Locker serializes actions on one entity.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Cache stores lookup results.
type Cache interface {
	Get(ctx context.Context, key string, dst interface{}) error
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// LoyaltyDependencies groups collaborators for LoyaltyService.
type LoyaltyDependencies struct {
	Store  repository.Store
	Lock   Locker
	Cache  Cache
	Logger *zap.Logger
}

// LoyaltyService executes loyalty lookups and actions for one merchant. It is
// the terminal's gateway.Gateway.
type LoyaltyService struct {
	store      repository.Store
	lock       Locker
	cache      Cache
	logger     *zap.Logger
	merchantID string
	now        func() time.Time
}

var _ gateway.Gateway = (*LoyaltyService)(nil)

// NewLoyaltyService builds the service.
func NewLoyaltyService(merchantID string, deps LoyaltyDependencies) *LoyaltyService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoyaltyService{
		store:      deps.Store,
		lock:       deps.Lock,
		cache:      deps.Cache,
		logger:     logger.Named("loyalty"),
		merchantID: merchantID,
		now:        time.Now,
	}
}

// FetchActivePrograms lists the merchant's active programs, served from cache when warm.
func (s *LoyaltyService) FetchActivePrograms(ctx context.Context, merchantID string) ([]domain.ProgramSummary, error) {
	key := programsKey(merchantID)
	var cached []domain.ProgramSummary
	if s.cache != nil {
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, persistence.ErrCacheMiss) {
			s.logger.Warn("program cache read failed", zap.Error(err))
		}
	}

	programs, err := s.store.Repos().Programs.ListActive(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list programs: %w", err)
	}
	summaries := make([]domain.ProgramSummary, 0, len(programs))
	for _, p := range programs {
		summaries = append(summaries, p.Summary())
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summaries); err != nil {
			s.logger.Warn("program cache write failed", zap.Error(err))
		}
	}
	return summaries, nil
}

// FetchActiveBundleCatalogs lists the bundle offers the merchant sells.
func (s *LoyaltyService) FetchActiveBundleCatalogs(ctx context.Context, merchantID string) ([]domain.BundleCatalogSummary, error) {
	catalogs, err := s.store.Repos().BundleCatalogs.ListActive(ctx, merchantID)
	if err != nil {
		return nil, fmt.Errorf("list bundle catalogs: %w", err)
	}
	return catalogs, nil
}

// FetchCardDetail returns a card with its program. Cards of other merchants are
// reported as not found.
func (s *LoyaltyService) FetchCardDetail(ctx context.Context, cardID string) (*domain.CardDetail, error) {
	if !validID(cardID) {
		return nil, apperrors.NewNotFound("punch card", nil)
	}
	detail, err := s.store.Repos().Cards.GetDetail(ctx, s.merchantID, cardID)
	if err != nil {
		return nil, notFoundOr(err, "punch card")
	}
	return detail, nil
}

// FetchBundleDetail returns a bundle. Bundles of other merchants are reported
// as not found.
func (s *LoyaltyService) FetchBundleDetail(ctx context.Context, bundleID string) (*domain.BundleDetail, error) {
	if !validID(bundleID) {
		return nil, apperrors.NewNotFound("bundle", nil)
	}
	detail, err := s.store.Repos().Bundles.GetDetail(ctx, s.merchantID, bundleID)
	if err != nil {
		return nil, notFoundOr(err, "bundle")
	}
	return detail, nil
}

// RecordPunch adds one punch to the user's open card in programID, opening a
// card when none exists.
func (s *LoyaltyService) RecordPunch(ctx context.Context, userID, programID string) (domain.PunchResult, error) {
	if userID == "" {
		return domain.PunchResult{}, apperrors.NewValidationError("user_id required", nil)
	}
	if !validID(programID) {
		return domain.PunchResult{}, apperrors.NewNotFound("program", nil)
	}
	release, err := s.acquire(ctx, "punch:"+programID+":"+userID)
	if err != nil {
		return domain.PunchResult{}, err
	}
	defer release()

	var (
		result       domain.PunchResult
		staleProgram bool
	)
	err = s.store.InTx(ctx, func(repos repository.Repositories) error {
		program, err := repos.Programs.GetByID(ctx, s.merchantID, programID)
		if err != nil {
			staleProgram = errors.Is(err, pgx.ErrNoRows)
			return notFoundOr(err, "program")
		}
		if !program.IsActive {
			staleProgram = true
			return apperrors.NewUnprocessable("Program is not active", nil)
		}

		card, err := repos.Cards.FindOpenForUpdate(ctx, userID, programID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			card = &domain.PunchCard{
				ID:         uuid.NewString(),
				UserID:     userID,
				ProgramID:  programID,
				MerchantID: s.merchantID,
				Status:     domain.CardStatusActive,
			}
			if err := repos.Cards.Create(ctx, card); err != nil {
				return fmt.Errorf("create card: %w", err)
			}
		case err != nil:
			return fmt.Errorf("find card: %w", err)
		}

		if card.CurrentPunches >= program.RequiredPunches {
			return apperrors.NewUnprocessable("Reward is ready; redeem it before punching again", nil)
		}
		card.CurrentPunches++
		if card.CurrentPunches >= program.RequiredPunches {
			card.Status = domain.CardStatusRewardReady
			result.RewardAchieved = true
		}
		if err := repos.Cards.UpdateProgress(ctx, card); err != nil {
			return fmt.Errorf("update card: %w", err)
		}
		punch := &domain.Punch{ID: uuid.NewString(), CardID: card.ID, MerchantID: s.merchantID}
		if err := repos.Punches.Create(ctx, punch); err != nil {
			return fmt.Errorf("insert punch: %w", err)
		}
		return nil
	})
	if staleProgram {
		s.invalidatePrograms(ctx)
	}
	if err != nil {
		return domain.PunchResult{}, err
	}
	s.logger.Info("punch recorded",
		zap.String("program_id", programID),
		zap.Bool("reward_achieved", result.RewardAchieved))
	return result, nil
}

// RedeemPunchCard redeems a card that reached its program's threshold.
func (s *LoyaltyService) RedeemPunchCard(ctx context.Context, cardID string) (domain.RedemptionResult, error) {
	if !validID(cardID) {
		return domain.RedemptionResult{}, apperrors.NewNotFound("punch card", nil)
	}
	release, err := s.acquire(ctx, "card:"+cardID)
	if err != nil {
		return domain.RedemptionResult{}, err
	}
	defer release()

	var result domain.RedemptionResult
	err = s.store.InTx(ctx, func(repos repository.Repositories) error {
		detail, err := repos.Cards.GetDetailForUpdate(ctx, s.merchantID, cardID)
		if err != nil {
			return notFoundOr(err, "punch card")
		}
		if detail.Card.Status == domain.CardStatusRewardRedeemed {
			return apperrors.NewConflict("Reward already redeemed", nil)
		}
		if detail.Card.CurrentPunches < detail.Program.RequiredPunches {
			return apperrors.NewUnprocessable("Not enough punches to redeem", map[string]any{
				"current_punches":  detail.Card.CurrentPunches,
				"required_punches": detail.Program.RequiredPunches,
			})
		}
		redeemedAt := s.now().UTC()
		detail.Card.Status = domain.CardStatusRewardRedeemed
		detail.Card.RedeemedAt = &redeemedAt
		if err := repos.Cards.UpdateProgress(ctx, &detail.Card); err != nil {
			return fmt.Errorf("update card: %w", err)
		}
		result.MerchantName = detail.MerchantName
		return nil
	})
	if err != nil {
		return domain.RedemptionResult{}, err
	}
	s.logger.Info("reward redeemed", zap.String("card_id", cardID))
	return result, nil
}

// UseBundle consumes quantity units of a bundle.
func (s *LoyaltyService) UseBundle(ctx context.Context, bundleID string, quantity int) (domain.BundleUseResult, error) {
	if quantity < 1 {
		return domain.BundleUseResult{}, apperrors.NewValidationError("quantity must be at least 1", nil)
	}
	if !validID(bundleID) {
		return domain.BundleUseResult{}, apperrors.NewNotFound("bundle", nil)
	}
	release, err := s.acquire(ctx, "bundle:"+bundleID)
	if err != nil {
		return domain.BundleUseResult{}, err
	}
	defer release()

	var result domain.BundleUseResult
	err = s.store.InTx(ctx, func(repos repository.Repositories) error {
		bundle, err := repos.Bundles.GetDetailForUpdate(ctx, s.merchantID, bundleID)
		if err != nil {
			return notFoundOr(err, "bundle")
		}
		if bundle.Status == domain.BundleStatusExhausted || !bundle.AcceptsQuantity(quantity) {
			return apperrors.NewUnprocessable("Bundle has insufficient remaining quantity", map[string]any{
				"remaining_quantity": bundle.RemainingQuantity,
			})
		}
		bundle.RemainingQuantity -= quantity
		if bundle.RemainingQuantity == 0 {
			bundle.Status = domain.BundleStatusExhausted
		}
		if err := repos.Bundles.UpdateRemaining(ctx, bundle); err != nil {
			return fmt.Errorf("update bundle: %w", err)
		}
		result.ItemName = bundle.ItemName
		return nil
	})
	if err != nil {
		return domain.BundleUseResult{}, err
	}
	s.logger.Info("bundle used", zap.String("bundle_id", bundleID), zap.Int("quantity", quantity))
	return result, nil
}

func (s *LoyaltyService) acquire(ctx context.Context, key string) (func(), error) {
	if s.lock == nil {
		return func() {}, nil
	}
	release, err := s.lock.Acquire(ctx, key)
	if errors.Is(err, persistence.ErrLockHeld) {
		return nil, apperrors.NewConflict("Another terminal is processing this item", nil)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	return release, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func notFoundOr(err error, resource string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.NewNotFound(resource, nil)
	}
	return err
}

func programsKey(merchantID string) string {
	return "programs:" + merchantID
}

// invalidatePrograms drops the cached program list after a punch hit a program
// the list still offered.
func (s *LoyaltyService) invalidatePrograms(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, programsKey(s.merchantID)); err != nil {
		s.logger.Warn("program cache invalidation failed", zap.Error(err))
	}
}
