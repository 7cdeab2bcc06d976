package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repositories groups the loyalty repositories bound to one DBTX.
type Repositories struct {
	Programs       ProgramRepository
	BundleCatalogs BundleCatalogRepository
	Cards          CardRepository
	Bundles        BundleRepository
	Punches        PunchRepository
}

// NewRepositories binds every repository to db.
func NewRepositories(db DBTX) Repositories {
	return Repositories{
		Programs:       NewProgramRepository(db),
		BundleCatalogs: NewBundleCatalogRepository(db),
		Cards:          NewCardRepository(db),
		Bundles:        NewBundleRepository(db),
		Punches:        NewPunchRepository(db),
	}
}

// Store hands out repositories, optionally inside a transaction.
type Store interface {
	Repos() Repositories
	InTx(ctx context.Context, fn func(Repositories) error) error
}

type pgStore struct {
	pool  *pgxpool.Pool
	repos Repositories
}

// NewStore builds a Store on a pgx pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool, repos: NewRepositories(pool)}
}

func (s *pgStore) Repos() Repositories { return s.repos }

// InTx commits when fn returns nil and rolls back otherwise.
func (s *pgStore) InTx(ctx context.Context, fn func(Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(NewRepositories(tx))
	})
}
