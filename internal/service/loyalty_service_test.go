package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/loyalty-scanner/internal/domain"
	"github.com/spec-kit/loyalty-scanner/internal/persistence"
	"github.com/spec-kit/loyalty-scanner/internal/repository"
	apperrors "github.com/spec-kit/loyalty-scanner/pkg/util/errorutil"
)

// memStore keeps rows in maps; InTx runs fn directly.
type memStore struct {
	programs map[string]*domain.Program
	catalogs []domain.BundleCatalogSummary
	cards    map[string]*domain.PunchCard
	bundles  map[string]*domain.BundleDetail
	punches  []domain.Punch
	merchant string
	listed   int
}

func newMemStore(merchant string) *memStore {
	return &memStore{
		programs: map[string]*domain.Program{},
		cards:    map[string]*domain.PunchCard{},
		bundles:  map[string]*domain.BundleDetail{},
		merchant: merchant,
	}
}

func (s *memStore) Repos() repository.Repositories {
	return repository.Repositories{
		Programs:       memPrograms{s},
		BundleCatalogs: memCatalogs{s},
		Cards:          memCards{s},
		Bundles:        memBundles{s},
		Punches:        memPunches{s},
	}
}

func (s *memStore) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	return fn(s.Repos())
}

type memPrograms struct{ s *memStore }

func (r memPrograms) GetByID(ctx context.Context, merchantID, id string) (*domain.Program, error) {
	p, ok := r.s.programs[id]
	if !ok || p.MerchantID != merchantID {
		return nil, pgx.ErrNoRows
	}
	return p, nil
}

func (r memPrograms) ListActive(ctx context.Context, merchantID string) ([]domain.Program, error) {
	r.s.listed++
	var out []domain.Program
	for _, p := range r.s.programs {
		if p.MerchantID == merchantID && p.IsActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

type memCatalogs struct{ s *memStore }

func (r memCatalogs) ListActive(ctx context.Context, merchantID string) ([]domain.BundleCatalogSummary, error) {
	return r.s.catalogs, nil
}

type memCards struct{ s *memStore }

func (r memCards) Create(ctx context.Context, card *domain.PunchCard) error {
	c := *card
	r.s.cards[card.ID] = &c
	return nil
}

func (r memCards) UpdateProgress(ctx context.Context, card *domain.PunchCard) error {
	c := *card
	r.s.cards[card.ID] = &c
	return nil
}

func (r memCards) GetDetail(ctx context.Context, merchantID, id string) (*domain.CardDetail, error) {
	c, ok := r.s.cards[id]
	if !ok || c.MerchantID != merchantID {
		return nil, pgx.ErrNoRows
	}
	p := r.s.programs[c.ProgramID]
	return &domain.CardDetail{Card: *c, Program: p.Summary(), MerchantName: "Corner Cafe"}, nil
}

func (r memCards) GetDetailForUpdate(ctx context.Context, merchantID, id string) (*domain.CardDetail, error) {
	return r.GetDetail(ctx, merchantID, id)
}

func (r memCards) FindOpenForUpdate(ctx context.Context, userID, programID string) (*domain.PunchCard, error) {
	for _, c := range r.s.cards {
		if c.UserID == userID && c.ProgramID == programID && c.Status != domain.CardStatusRewardRedeemed {
			cp := *c
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

type memBundles struct{ s *memStore }

func (r memBundles) GetDetail(ctx context.Context, merchantID, id string) (*domain.BundleDetail, error) {
	b, ok := r.s.bundles[id]
	if !ok || b.MerchantID != merchantID {
		return nil, pgx.ErrNoRows
	}
	cp := *b
	return &cp, nil
}

func (r memBundles) GetDetailForUpdate(ctx context.Context, merchantID, id string) (*domain.BundleDetail, error) {
	return r.GetDetail(ctx, merchantID, id)
}

func (r memBundles) UpdateRemaining(ctx context.Context, bundle *domain.BundleDetail) error {
	cp := *bundle
	r.s.bundles[bundle.ID] = &cp
	return nil
}

type memPunches struct{ s *memStore }

func (r memPunches) Create(ctx context.Context, punch *domain.Punch) error {
	r.s.punches = append(r.s.punches, *punch)
	return nil
}

type memCache struct {
	values map[string][]domain.ProgramSummary
}

func (c *memCache) Get(ctx context.Context, key string, dst interface{}) error {
	v, ok := c.values[key]
	if !ok {
		return persistence.ErrCacheMiss
	}
	*(dst.(*[]domain.ProgramSummary)) = v
	return nil
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}) error {
	c.values[key] = value.([]domain.ProgramSummary)
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	delete(c.values, key)
	return nil
}

type heldLock struct{}

func (heldLock) Acquire(ctx context.Context, key string) (func(), error) {
	return nil, persistence.ErrLockHeld
}

const merchantID = "6f1c1d2e-0000-4000-8000-000000000001"

func newLoyalty(t *testing.T) (*LoyaltyService, *memStore) {
	t.Helper()
	store := newMemStore(merchantID)
	svc := NewLoyaltyService(merchantID, LoyaltyDependencies{
		Store: store,
		Lock:  persistence.NewActionLock(nil, 0),
	})
	return svc, store
}

func addProgram(s *memStore, required int, active bool) string {
	id := uuid.NewString()
	s.programs[id] = &domain.Program{ID: id, MerchantID: merchantID, Name: "Coffee", RequiredPunches: required, IsActive: active}
	return id
}

func TestRecordPunchOpensCardAndReachesReward(t *testing.T) {
	svc, store := newLoyalty(t)
	programID := addProgram(store, 2, true)

	res, err := svc.RecordPunch(context.Background(), "u-1", programID)
	if err != nil {
		t.Fatalf("RecordPunch() error = %v", err)
	}
	if res.RewardAchieved {
		t.Fatal("reward achieved after first punch")
	}
	res, err = svc.RecordPunch(context.Background(), "u-1", programID)
	if err != nil {
		t.Fatalf("RecordPunch() error = %v", err)
	}
	if !res.RewardAchieved {
		t.Fatal("reward not achieved at threshold")
	}
	if len(store.cards) != 1 || len(store.punches) != 2 {
		t.Fatalf("cards=%d punches=%d", len(store.cards), len(store.punches))
	}
	for _, c := range store.cards {
		if c.Status != domain.CardStatusRewardReady || c.CurrentPunches != 2 {
			t.Fatalf("unexpected card %+v", c)
		}
	}

	_, err = svc.RecordPunch(context.Background(), "u-1", programID)
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.Message == "" {
		t.Fatalf("punch on ready card error = %v", err)
	}
}

func TestRecordPunchRejections(t *testing.T) {
	svc, store := newLoyalty(t)
	inactive := addProgram(store, 5, false)
	foreign := uuid.NewString()
	store.programs[foreign] = &domain.Program{ID: foreign, MerchantID: "other", RequiredPunches: 5, IsActive: true}

	tests := []struct {
		name      string
		userID    string
		programID string
		notFound  bool
	}{
		{name: "missing user", programID: inactive},
		{name: "malformed program id", userID: "u", programID: "p-1", notFound: true},
		{name: "foreign program", userID: "u", programID: foreign, notFound: true},
		{name: "inactive program", userID: "u", programID: inactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.RecordPunch(context.Background(), tt.userID, tt.programID)
			if err == nil {
				t.Fatal("expected error")
			}
			if apperrors.IsNotFound(err) != tt.notFound {
				t.Fatalf("IsNotFound(%v) = %v, want %v", err, !tt.notFound, tt.notFound)
			}
		})
	}
}

func TestRedeemPunchCard(t *testing.T) {
	svc, store := newLoyalty(t)
	programID := addProgram(store, 3, true)
	ready := uuid.NewString()
	store.cards[ready] = &domain.PunchCard{ID: ready, UserID: "u", ProgramID: programID, MerchantID: merchantID, CurrentPunches: 3, Status: domain.CardStatusRewardReady}
	short := uuid.NewString()
	store.cards[short] = &domain.PunchCard{ID: short, UserID: "u", ProgramID: programID, MerchantID: merchantID, CurrentPunches: 1, Status: domain.CardStatusActive}

	res, err := svc.RedeemPunchCard(context.Background(), ready)
	if err != nil {
		t.Fatalf("RedeemPunchCard() error = %v", err)
	}
	if res.MerchantName != "Corner Cafe" {
		t.Fatalf("merchant = %q", res.MerchantName)
	}
	if c := store.cards[ready]; c.Status != domain.CardStatusRewardRedeemed || c.RedeemedAt == nil {
		t.Fatalf("card not redeemed %+v", c)
	}

	if _, err := svc.RedeemPunchCard(context.Background(), ready); apperrors.UserMessage(err, "") != "Reward already redeemed" {
		t.Fatalf("second redeem error = %v", err)
	}
	if _, err := svc.RedeemPunchCard(context.Background(), short); apperrors.UserMessage(err, "") != "Not enough punches to redeem" {
		t.Fatalf("short card error = %v", err)
	}
	if _, err := svc.RedeemPunchCard(context.Background(), uuid.NewString()); !apperrors.IsNotFound(err) {
		t.Fatalf("missing card error = %v", err)
	}
}

func TestUseBundle(t *testing.T) {
	svc, store := newLoyalty(t)
	id := uuid.NewString()
	store.bundles[id] = &domain.BundleDetail{ID: id, MerchantID: merchantID, ItemName: "Coffee", TotalQuantity: 5, RemainingQuantity: 3, Status: domain.BundleStatusActive}

	tests := []struct {
		name      string
		quantity  int
		wantErr   bool
		remaining int
		status    domain.BundleStatus
	}{
		{name: "zero", quantity: 0, wantErr: true, remaining: 3, status: domain.BundleStatusActive},
		{name: "above remaining", quantity: 4, wantErr: true, remaining: 3, status: domain.BundleStatusActive},
		{name: "partial", quantity: 2, remaining: 1, status: domain.BundleStatusActive},
		{name: "exhaust", quantity: 1, remaining: 0, status: domain.BundleStatusExhausted},
		{name: "after exhausted", quantity: 1, wantErr: true, remaining: 0, status: domain.BundleStatusExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.UseBundle(context.Background(), id, tt.quantity)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UseBundle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && res.ItemName != "Coffee" {
				t.Fatalf("item = %q", res.ItemName)
			}
			b := store.bundles[id]
			if b.RemainingQuantity != tt.remaining || b.Status != tt.status {
				t.Fatalf("bundle = %d %s", b.RemainingQuantity, b.Status)
			}
		})
	}
}

func TestLookupsAreMerchantScoped(t *testing.T) {
	svc, store := newLoyalty(t)
	programID := addProgram(store, 3, true)
	foreignCard := uuid.NewString()
	store.cards[foreignCard] = &domain.PunchCard{ID: foreignCard, ProgramID: programID, MerchantID: "other"}
	foreignBundle := uuid.NewString()
	store.bundles[foreignBundle] = &domain.BundleDetail{ID: foreignBundle, MerchantID: "other"}

	if _, err := svc.FetchCardDetail(context.Background(), foreignCard); !apperrors.IsNotFound(err) {
		t.Fatalf("foreign card error = %v", err)
	}
	if _, err := svc.FetchBundleDetail(context.Background(), foreignBundle); !apperrors.IsNotFound(err) {
		t.Fatalf("foreign bundle error = %v", err)
	}
	if _, err := svc.FetchCardDetail(context.Background(), "not-a-uuid"); !apperrors.IsNotFound(err) {
		t.Fatalf("malformed id error = %v", err)
	}
}

func TestFetchActiveProgramsUsesCache(t *testing.T) {
	store := newMemStore(merchantID)
	addProgram(store, 3, true)
	addProgram(store, 3, false)
	svc := NewLoyaltyService(merchantID, LoyaltyDependencies{
		Store: store,
		Cache: &memCache{values: map[string][]domain.ProgramSummary{}},
	})

	for i := 0; i < 2; i++ {
		programs, err := svc.FetchActivePrograms(context.Background(), merchantID)
		if err != nil {
			t.Fatalf("FetchActivePrograms() error = %v", err)
		}
		if len(programs) != 1 {
			t.Fatalf("got %d programs, want 1", len(programs))
		}
	}
	if store.listed != 1 {
		t.Fatalf("store listed %d times, want 1", store.listed)
	}
}

func TestPunchOnRetiredProgramInvalidatesCache(t *testing.T) {
	store := newMemStore(merchantID)
	programID := addProgram(store, 3, true)
	cache := &memCache{values: map[string][]domain.ProgramSummary{}}
	svc := NewLoyaltyService(merchantID, LoyaltyDependencies{
		Store: store,
		Lock:  persistence.NewActionLock(nil, 0),
		Cache: cache,
	})

	if programs, err := svc.FetchActivePrograms(context.Background(), merchantID); err != nil || len(programs) != 1 {
		t.Fatalf("FetchActivePrograms() = %v, %v", programs, err)
	}
	store.programs[programID].IsActive = false

	_, err := svc.RecordPunch(context.Background(), "user-1", programID)
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.HTTPStatus != http.StatusUnprocessableEntity {
		t.Fatalf("RecordPunch() error = %v, want 422", err)
	}
	if _, ok := cache.values["programs:"+merchantID]; ok {
		t.Fatal("stale program list still cached")
	}
	programs, err := svc.FetchActivePrograms(context.Background(), merchantID)
	if err != nil || len(programs) != 0 {
		t.Fatalf("FetchActivePrograms() = %v, %v", programs, err)
	}
}

func TestActionLockHeld(t *testing.T) {
	store := newMemStore(merchantID)
	svc := NewLoyaltyService(merchantID, LoyaltyDependencies{Store: store, Lock: heldLock{}})

	_, err := svc.UseBundle(context.Background(), uuid.NewString(), 1)
	var de *apperrors.DomainError
	if !errors.As(err, &de) || de.Code != apperrors.CodeConflict {
		t.Fatalf("error = %v, want conflict", err)
	}
}
