// README: Ride service: submission, lookup, trip lifecycle and cancellation.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ridepool/internal/domain"
	"ridepool/internal/events"
	"ridepool/internal/observability"
	"ridepool/internal/storage"
	"ridepool/internal/types"
)

type Service struct {
	store     storage.Store
	publisher events.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

func NewService(store storage.Store, publisher events.Publisher, log zerolog.Logger) *Service {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		store:     store,
		publisher: publisher,
		log:       log.With().Str("component", "rides").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Submit stores a new PENDING ride. A repeated idempotency key returns the
// ride created first and created=false.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (r *domain.Ride, created bool, err error) {
	if err := cmd.Validate(); err != nil {
		return nil, false, err
	}

	var key *string
	if cmd.IdempotencyKey != "" {
		k := cmd.IdempotencyKey
		key = &k
		existing, err := s.store.Repos().Rides.GetByIdempotencyKey(ctx, k)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, false, fmt.Errorf("ride.Service.Submit: %w", err)
		}
	}

	now := s.now()
	ride := &domain.Ride{
		ID:             types.NewID(),
		UserID:         cmd.UserID,
		Pickup:         cmd.Pickup,
		Dropoff:        cmd.Dropoff,
		Status:         domain.RidePending,
		SeatsRequested: cmd.Seats,
		LuggageCount:   cmd.Luggage,
		IdempotencyKey: key,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	stored, err := s.store.Repos().Rides.Create(ctx, ride)
	if err != nil {
		return nil, false, fmt.Errorf("ride.Service.Submit: %w", err)
	}
	// A concurrent submit with the same key may have won the insert.
	return stored, stored.ID == ride.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*domain.Ride, error) {
	return s.store.Repos().Rides.GetByID(ctx, id)
}

// Cancel moves a PENDING or MATCHED ride to CANCELLED. A grouped ride gives
// its seats and luggage back; the last member leaving deactivates the group
// and frees its cab.
func (s *Service) Cancel(ctx context.Context, id types.ID) (*domain.Ride, error) {
	var out *domain.Ride
	var groupID *types.ID
	err := s.store.InTx(ctx, func(ctx context.Context, repos storage.Repos) error {
		r, err := repos.Rides.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(r.Status, domain.RideCancelled) {
			return fmt.Errorf("%w: cannot cancel ride in status %s", domain.ErrInvalidTransition, r.Status)
		}
		groupID = r.GroupID
		if err := s.leaveGroup(ctx, repos, r); err != nil {
			return err
		}
		if err := r.TransitionTo(domain.RideCancelled); err != nil {
			return err
		}
		r.UpdatedAt = s.now()
		if err := repos.Rides.Update(ctx, r); err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ride.Service.Cancel: %w", err)
	}

	observability.RidesCancelled.Inc()
	s.emit(ctx, events.Event{Type: events.RideCancelled, RideID: out.ID, GroupID: groupID, OccurredAt: out.UpdatedAt})
	return out, nil
}

// StartTrip moves a MATCHED ride to ON_TRIP.
func (s *Service) StartTrip(ctx context.Context, id types.ID) (*domain.Ride, error) {
	var out *domain.Ride
	err := s.store.InTx(ctx, func(ctx context.Context, repos storage.Repos) error {
		r, err := repos.Rides.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := r.TransitionTo(domain.RideOnTrip); err != nil {
			return err
		}
		r.UpdatedAt = s.now()
		out = r
		return repos.Rides.Update(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("ride.Service.StartTrip: %w", err)
	}
	return out, nil
}

// CompleteTrip moves an ON_TRIP ride to COMPLETED and drops it from its
// group.
func (s *Service) CompleteTrip(ctx context.Context, id types.ID) (*domain.Ride, error) {
	var out *domain.Ride
	err := s.store.InTx(ctx, func(ctx context.Context, repos storage.Repos) error {
		r, err := repos.Rides.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !domain.CanTransition(r.Status, domain.RideCompleted) {
			return fmt.Errorf("%w: cannot complete ride in status %s", domain.ErrInvalidTransition, r.Status)
		}
		if err := s.leaveGroup(ctx, repos, r); err != nil {
			return err
		}
		if err := r.TransitionTo(domain.RideCompleted); err != nil {
			return err
		}
		r.UpdatedAt = s.now()
		out = r
		return repos.Rides.Update(ctx, r)
	})
	if err != nil {
		return nil, fmt.Errorf("ride.Service.CompleteTrip: %w", err)
	}
	return out, nil
}

// leaveGroup releases r's share of its group and clears the reference.
func (s *Service) leaveGroup(ctx context.Context, repos storage.Repos, r *domain.Ride) error {
	if r.GroupID == nil {
		return nil
	}
	g, err := repos.Groups.GetByIDForUpdate(ctx, *r.GroupID)
	if err != nil {
		return err
	}
	members, err := repos.Rides.GetInGroup(ctx, g.ID)
	if err != nil {
		return err
	}
	g.Rebuild(members)
	g.RemovePassenger(r)
	if g.Size() == 0 {
		g.Status = domain.GroupInactive
		if g.CabID != nil {
			if err := repos.Cabs.Free(ctx, *g.CabID); err != nil {
				return err
			}
		}
		s.log.Info().Str("group_id", string(g.ID)).Msg("group emptied, cab released")
	}
	g.UpdatedAt = s.now()
	if err := repos.Groups.Update(ctx, g); err != nil {
		return err
	}
	r.GroupID = nil
	return nil
}

// ActiveGroups lists ACTIVE groups with their member rides in join order.
func (s *Service) ActiveGroups(ctx context.Context) ([]GroupView, error) {
	repos := s.store.Repos()
	groups, err := repos.Groups.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("ride.Service.ActiveGroups: %w", err)
	}
	out := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		rides, err := repos.Rides.GetInGroup(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("ride.Service.ActiveGroups: %w", err)
		}
		g.Rebuild(rides)
		out = append(out, GroupView{Group: g, Rides: rides})
	}
	return out, nil
}

func (s *Service) emit(ctx context.Context, ev events.Event) {
	if err := s.publisher.Publish(ctx, ev); err != nil {
		observability.EventsFailed.Inc()
		s.log.Warn().Err(err).Str("ride_id", string(ev.RideID)).Str("type", string(ev.Type)).Msg("publish ride event")
	}
}
