// README: Contract tests run against every backend; Postgres is opt-in.
package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridepool/internal/domain"
	"ridepool/internal/types"
)

func newRide(createdAt time.Time) *domain.Ride {
	return &domain.Ride{
		ID:             types.NewID(),
		UserID:         "user-1",
		Pickup:         types.Point{Lat: 19.0896, Lng: 72.8656},
		Dropoff:        types.Point{Lat: 19.1176, Lng: 72.8490},
		Status:         domain.RidePending,
		SeatsRequested: 1,
		LuggageCount:   1,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}
}

func newCab(id string, available bool) *domain.Cab {
	return &domain.Cab{
		ID:          types.ID(id),
		VehicleType: domain.VehicleSedan,
		MaxSeats:    4,
		MaxLuggage:  3,
		Location:    types.Point{Lat: 19.09, Lng: 72.86},
		Available:   available,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	base := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("create is idempotent on key", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		key := "key-" + string(types.NewID())

		first := newRide(base)
		first.IdempotencyKey = &key
		got, err := s.Repos().Rides.Create(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)

		second := newRide(base.Add(time.Second))
		second.IdempotencyKey = &key
		got, err = s.Repos().Rides.Create(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID, "duplicate key returns the original")

		_, err = s.Repos().Rides.GetByID(ctx, second.ID)
		assert.True(t, errors.Is(err, domain.ErrNotFound))

		byKey, err := s.Repos().Rides.GetByIdempotencyKey(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, first.ID, byKey.ID)
	})

	t.Run("pending ordered by creation", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		late := newRide(base.Add(2 * time.Second))
		early := newRide(base.Add(1 * time.Second))
		done := newRide(base)
		done.Status = domain.RideCancelled
		for _, r := range []*domain.Ride{late, early, done} {
			_, err := s.Repos().Rides.Create(ctx, r)
			require.NoError(t, err)
		}

		pending, err := s.Repos().Rides.GetPending(ctx)
		require.NoError(t, err)
		ids := make([]types.ID, 0, len(pending))
		for _, r := range pending {
			ids = append(ids, r.ID)
		}
		assert.Equal(t, []types.ID{early.ID, late.ID}, filterIDs(ids, early.ID, late.ID))
		assert.NotContains(t, ids, done.ID)
	})

	t.Run("failed transaction leaves no trace", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cab := newCab("cab-rollback-"+string(types.NewID()), true)
		require.NoError(t, s.Repos().Cabs.Create(ctx, cab))

		boom := errors.New("boom")
		err := s.InTx(ctx, func(ctx context.Context, repos Repos) error {
			ok, err := repos.Cabs.Claim(ctx, cab.ID)
			require.NoError(t, err)
			require.True(t, ok)
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.Repos().Cabs.GetByID(ctx, cab.ID)
		require.NoError(t, err)
		assert.True(t, got.Available)
	})

	t.Run("claim only once", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		cab := newCab("cab-claim-"+string(types.NewID()), true)
		require.NoError(t, s.Repos().Cabs.Create(ctx, cab))

		ok, err := s.Repos().Cabs.Claim(ctx, cab.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Repos().Cabs.Claim(ctx, cab.ID)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.Repos().Cabs.Free(ctx, cab.ID))
		got, err := s.Repos().Cabs.GetByID(ctx, cab.ID)
		require.NoError(t, err)
		assert.True(t, got.Available)
	})

	t.Run("group members in join order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		g := &domain.RideGroup{
			ID:        types.NewID(),
			Status:    domain.GroupActive,
			Cell:      "cell-" + string(types.NewID()),
			CreatedAt: base,
			UpdatedAt: base,
		}
		err := s.InTx(ctx, func(ctx context.Context, repos Repos) error {
			if err := repos.Groups.Create(ctx, g); err != nil {
				return err
			}
			for i := 0; i < 3; i++ {
				r := newRide(base.Add(time.Duration(-i) * time.Minute))
				matched := base.Add(time.Duration(i) * time.Second)
				r.Status = domain.RideMatched
				r.GroupID = g.ID.Ptr()
				r.MatchedAt = &matched
				if _, err := repos.Rides.Create(ctx, r); err != nil {
					return err
				}
			}
			return nil
		})
		require.NoError(t, err)

		members, err := s.Repos().Rides.GetInGroup(ctx, g.ID)
		require.NoError(t, err)
		require.Len(t, members, 3)
		for i := 1; i < len(members); i++ {
			assert.True(t, members[i-1].MatchedAt.Before(*members[i].MatchedAt))
		}

		active, err := s.Repos().Groups.GetActiveForUpdate(ctx, g.Cell)
		require.NoError(t, err)
		require.Len(t, active, 1)
		assert.Equal(t, g.ID, active[0].ID)

		g.Status = domain.GroupInactive
		require.NoError(t, s.Repos().Groups.Update(ctx, g))
		active, err = s.Repos().Groups.GetActiveForUpdate(ctx, g.Cell)
		require.NoError(t, err)
		assert.Empty(t, active)
	})

	t.Run("cell groups stay locked until commit", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		g := &domain.RideGroup{
			ID:        types.NewID(),
			Status:    domain.GroupActive,
			Cell:      "cell-" + string(types.NewID()),
			CreatedAt: base,
			UpdatedAt: base,
		}
		require.NoError(t, s.Repos().Groups.Create(ctx, g))

		locked := make(chan struct{})
		release := make(chan struct{})
		firstDone := make(chan error, 1)
		go func() {
			firstDone <- s.InTx(ctx, func(ctx context.Context, repos Repos) error {
				groups, err := repos.Groups.GetActiveForUpdate(ctx, g.Cell)
				if err != nil {
					return err
				}
				close(locked)
				<-release
				groups[0].SeatsOccupied = 2
				return repos.Groups.Update(ctx, groups[0])
			})
		}()
		select {
		case <-locked:
		case err := <-firstDone:
			t.Fatalf("first transaction ended early: %v", err)
		}

		type readResult struct {
			groups []*domain.RideGroup
			err    error
		}
		second := make(chan readResult, 1)
		go func() {
			var res readResult
			res.err = s.InTx(ctx, func(ctx context.Context, repos Repos) error {
				var err error
				res.groups, err = repos.Groups.GetActiveForUpdate(ctx, g.Cell)
				return err
			})
			second <- res
		}()

		select {
		case <-second:
			t.Fatal("second transaction read the cell while it was locked")
		case <-time.After(150 * time.Millisecond):
		}

		close(release)
		require.NoError(t, <-firstDone)
		res := <-second
		require.NoError(t, res.err)
		require.Len(t, res.groups, 1)
		assert.Equal(t, 2, res.groups[0].SeatsOccupied, "second transaction sees the committed occupancy")
	})

	t.Run("missing rows are ErrNotFound", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		_, err := s.Repos().Rides.GetByID(ctx, types.NewID())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Repos().Groups.GetByID(ctx, types.NewID())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		_, err = s.Repos().Cabs.GetByID(ctx, types.NewID())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		err = s.Repos().Rides.Update(ctx, newRide(base))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

// filterIDs keeps the ids of interest in the order they appear.
func filterIDs(ids []types.ID, keep ...types.ID) []types.ID {
	want := make(map[types.ID]bool, len(keep))
	for _, id := range keep {
		want[id] = true
	}
	var out []types.ID
	for _, id := range ids {
		if want[id] {
			out = append(out, id)
		}
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemory_ReturnsCopies(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()
	r := newRide(time.Now())
	_, err := s.Repos().Rides.Create(ctx, r)
	require.NoError(t, err)

	got, err := s.Repos().Rides.GetByID(ctx, r.ID)
	require.NoError(t, err)
	got.Status = domain.RideCancelled

	again, err := s.Repos().Rides.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RidePending, again.Status)
}

func TestMemory_CancelledContextAbortsCommit(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Repos().Cabs.Create(context.Background(), newCab("c1", true)))

	ctx, cancel := context.WithCancel(context.Background())
	err := s.InTx(ctx, func(ctx context.Context, repos Repos) error {
		_, err := repos.Cabs.Claim(ctx, "c1")
		cancel()
		return err
	})
	require.Error(t, err)

	n, err := s.Repos().Cabs.CountAvailable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
