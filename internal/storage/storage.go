// Package storage holds the persistence contracts the matching core and the
// ride service depend on, with a Postgres and an in-memory implementation.
package storage

import (
	"context"

	"ridepool/internal/domain"
	"ridepool/internal/types"
)

type RideStore interface {
	// Create inserts the ride. When the ride carries an idempotency key that
	// already exists, the stored ride is returned instead and nothing is
	// written.
	Create(ctx context.Context, r *domain.Ride) (*domain.Ride, error)

	// GetPending returns PENDING rides ordered by creation time ascending.
	// Inside a transaction the rides are locked; rides locked by another
	// transaction are skipped.
	GetPending(ctx context.Context) ([]*domain.Ride, error)

	GetByID(ctx context.Context, id types.ID) (*domain.Ride, error)
	GetByIDForUpdate(ctx context.Context, id types.ID) (*domain.Ride, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Ride, error)

	// GetInGroup returns the rides currently referencing the group in join
	// order.
	GetInGroup(ctx context.Context, groupID types.ID) ([]*domain.Ride, error)

	Update(ctx context.Context, r *domain.Ride) error
}

type GroupStore interface {
	// GetActiveForUpdate returns the ACTIVE groups of a cell in creation
	// order, exclusively locked until the surrounding transaction ends. An
	// empty cell selects every cell.
	GetActiveForUpdate(ctx context.Context, cell string) ([]*domain.RideGroup, error)

	// GetActive is the unlocked listing used by admin reads.
	GetActive(ctx context.Context) ([]*domain.RideGroup, error)

	Create(ctx context.Context, g *domain.RideGroup) error
	GetByID(ctx context.Context, id types.ID) (*domain.RideGroup, error)
	GetByIDForUpdate(ctx context.Context, id types.ID) (*domain.RideGroup, error)
	Update(ctx context.Context, g *domain.RideGroup) error
}

type CabStore interface {
	Create(ctx context.Context, c *domain.Cab) error

	// GetAvailable returns available cabs ordered by id.
	GetAvailable(ctx context.Context) ([]*domain.Cab, error)

	GetByID(ctx context.Context, id types.ID) (*domain.Cab, error)
	CountAvailable(ctx context.Context) (int, error)

	// Claim marks an available cab as taken. It reports false when the cab
	// was already unavailable.
	Claim(ctx context.Context, id types.ID) (bool, error)

	// Free marks the cab available again.
	Free(ctx context.Context, id types.ID) error
}

// Repos bundles the stores bound to one transaction.
type Repos struct {
	Rides  RideStore
	Groups GroupStore
	Cabs   CabStore
}

// UnitOfWork runs fn atomically. Everything fn writes through repos is
// committed when fn returns nil and discarded otherwise.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// Store is a full backend: plain reads plus transactional writes.
type Store interface {
	UnitOfWork
	Repos() Repos
	Ping(ctx context.Context) error
}
