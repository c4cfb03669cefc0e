// README: Greedy batch matcher; one call is one atomic matching cycle.
package matching

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ridepool/internal/domain"
	"ridepool/internal/events"
	"ridepool/internal/modules/location"
	"ridepool/internal/modules/pricing"
	"ridepool/internal/observability"
	"ridepool/internal/storage"
	"ridepool/internal/types"
)

type Matcher struct {
	store     storage.UnitOfWork
	pricing   *pricing.Service
	publisher events.Publisher
	cfg       Config
	log       zerolog.Logger
	now       func() time.Time
}

func NewMatcher(store storage.UnitOfWork, pricingSvc *pricing.Service, publisher events.Publisher, cfg Config, log zerolog.Logger) *Matcher {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Matcher{
		store:     store,
		pricing:   pricingSvc,
		publisher: publisher,
		cfg:       cfg,
		log:       log.With().Str("component", "matcher").Logger(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// candidate is a group in a cell's working list with its capacity limits.
type candidate struct {
	group      *domain.RideGroup
	maxSeats   int
	maxLuggage int
	dirty      bool
}

// cycleState is the per-cycle snapshot shared by every cell.
type cycleState struct {
	repos storage.Repos
	now   time.Time
	surge float64
	cabs  []*domain.Cab
	res   *CycleResult
}

// RunCycle matches all pending rides in one transaction. The caller must
// hold the matching lock. Match events are not sent here; hand the result
// to Publish once the lock is released.
func (m *Matcher) RunCycle(ctx context.Context) (CycleResult, error) {
	var res CycleResult
	start := m.now()
	err := m.store.InTx(ctx, func(ctx context.Context, repos storage.Repos) error {
		res = CycleResult{StartedAt: start}
		return m.cycle(ctx, repos, &res)
	})
	if err != nil {
		return CycleResult{}, fmt.Errorf("matching.Matcher.RunCycle: %w", err)
	}
	res.Duration = m.now().Sub(start)

	observability.PendingRides.Set(float64(res.Pending))
	observability.RidesMatched.Add(float64(res.Matched))
	observability.GroupsCreated.Add(float64(res.GroupsCreated))
	if res.Pending > 0 {
		observability.LastSurge.Set(res.Surge)
	}
	return res, nil
}

func (m *Matcher) cycle(ctx context.Context, repos storage.Repos, res *CycleResult) error {
	pending, err := repos.Rides.GetPending(ctx)
	if err != nil {
		return err
	}
	res.Pending = len(pending)
	if len(pending) == 0 {
		return nil
	}

	// Demand and supply are snapshotted once; every price this cycle uses
	// the same surge.
	available, err := repos.Cabs.CountAvailable(ctx)
	if err != nil {
		return err
	}
	res.AvailableCabs = available
	res.Surge = pricing.Surge(len(pending), available)

	cabs, err := repos.Cabs.GetAvailable(ctx)
	if err != nil {
		return err
	}
	st := &cycleState{repos: repos, now: res.StartedAt, surge: res.Surge, cabs: cabs, res: res}

	order, byCell := binByCell(pending, m.cfg.Resolution)
	res.Cells = len(order)
	for _, cell := range order {
		if err := m.matchCell(ctx, st, cell, byCell[cell]); err != nil {
			return fmt.Errorf("cell %s: %w", cell, err)
		}
	}
	return nil
}

// binByCell groups rides by pickup cell, keeping first-seen cell order and
// ride order within each cell.
func binByCell(rides []*domain.Ride, resolution int) ([]string, map[string][]*domain.Ride) {
	var order []string
	byCell := make(map[string][]*domain.Ride)
	for _, r := range rides {
		cell := location.CellOfPoint(r.Pickup, resolution)
		if _, seen := byCell[cell]; !seen {
			order = append(order, cell)
		}
		byCell[cell] = append(byCell[cell], r)
	}
	return order, byCell
}

func (m *Matcher) matchCell(ctx context.Context, st *cycleState, cell string, rides []*domain.Ride) error {
	working, err := m.loadCandidates(ctx, st.repos, cell)
	if err != nil {
		return err
	}

	for _, ride := range rides {
		placed := false
		for _, c := range working {
			if !c.group.CanAccommodate(ride.SeatsRequested, ride.LuggageCount, c.maxSeats, c.maxLuggage) {
				continue
			}
			if !DetourOK(c.group.Pickups(), c.group.Dropoffs(), ride.Pickup, ride.Dropoff, m.cfg.DetourTolerance) {
				continue
			}
			c.group.AddPassenger(ride)
			c.dirty = true
			if err := m.matchRide(ctx, st, ride, c, false); err != nil {
				return err
			}
			placed = true
			break
		}
		if placed {
			continue
		}

		c, err := m.openGroup(ctx, st, cell, ride)
		if err != nil {
			return err
		}
		if c == nil {
			st.res.Unmatched++
			continue
		}
		working = append(working, c)
		if err := m.matchRide(ctx, st, ride, c, true); err != nil {
			return err
		}
	}

	for _, c := range working {
		if !c.dirty {
			continue
		}
		c.group.UpdatedAt = st.now
		if err := st.repos.Groups.Update(ctx, c.group); err != nil {
			return err
		}
	}
	return nil
}

// loadCandidates locks the cell's active groups and rebuilds each one's
// join history from its member rides.
func (m *Matcher) loadCandidates(ctx context.Context, repos storage.Repos, cell string) ([]*candidate, error) {
	groups, err := repos.Groups.GetActiveForUpdate(ctx, cell)
	if err != nil {
		return nil, err
	}
	out := make([]*candidate, 0, len(groups))
	for _, g := range groups {
		members, err := repos.Rides.GetInGroup(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		g.Rebuild(members)

		var cab *domain.Cab
		if g.CabID != nil {
			if cab, err = repos.Cabs.GetByID(ctx, *g.CabID); err != nil {
				return nil, err
			}
		}
		seats, luggage := domain.Capacity(cab)
		out = append(out, &candidate{group: g, maxSeats: seats, maxLuggage: luggage})
	}
	return out, nil
}

// openGroup claims the first available cab, in id order, that can carry the
// ride and creates a group around it. It returns nil when no cab fits.
func (m *Matcher) openGroup(ctx context.Context, st *cycleState, cell string, ride *domain.Ride) (*candidate, error) {
	for i := 0; i < len(st.cabs); i++ {
		cab := st.cabs[i]
		if ride.SeatsRequested > cab.MaxSeats || ride.LuggageCount > cab.MaxLuggage {
			continue
		}
		ok, err := st.repos.Cabs.Claim(ctx, cab.ID)
		if err != nil {
			return nil, err
		}
		st.cabs = append(st.cabs[:i], st.cabs[i+1:]...)
		if !ok {
			// Taken outside this cycle since the snapshot.
			i--
			continue
		}

		g := &domain.RideGroup{
			ID:        types.NewID(),
			CabID:     cab.ID.Ptr(),
			Status:    domain.GroupActive,
			Cell:      cell,
			CreatedAt: st.now,
			UpdatedAt: st.now,
		}
		g.AddPassenger(ride)
		if err := st.repos.Groups.Create(ctx, g); err != nil {
			return nil, err
		}
		st.res.GroupsCreated++
		return &candidate{group: g, maxSeats: cab.MaxSeats, maxLuggage: cab.MaxLuggage}, nil
	}
	return nil, nil
}

// matchRide moves a ride that was just added to c's group to MATCHED and
// prices it at its join position.
func (m *Matcher) matchRide(ctx context.Context, st *cycleState, ride *domain.Ride, c *candidate, newGroup bool) error {
	if err := ride.TransitionTo(domain.RideMatched); err != nil {
		return err
	}
	position := c.group.Size()
	quote := m.pricing.Quote(ride.Pickup, ride.Dropoff, position, st.surge)
	matchedAt := st.now

	ride.GroupID = c.group.ID.Ptr()
	ride.Price = &quote.Amount
	ride.MatchedAt = &matchedAt
	ride.UpdatedAt = st.now
	if err := st.repos.Rides.Update(ctx, ride); err != nil {
		return err
	}

	st.res.Matched++
	st.res.Assignments = append(st.res.Assignments, Assignment{
		RideID:   ride.ID,
		GroupID:  c.group.ID,
		CabID:    c.group.CabID,
		Position: position,
		Price:    quote.Amount,
		NewGroup: newGroup,
	})
	return nil
}

// Publish emits one ride.matched event per committed assignment. Failures
// are logged and counted; the matches stand.
func (m *Matcher) Publish(ctx context.Context, res CycleResult) {
	if len(res.Assignments) == 0 {
		return
	}
	evs := make([]events.Event, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		price := a.Price
		evs = append(evs, events.Event{
			Type:       events.RideMatched,
			RideID:     a.RideID,
			GroupID:    a.GroupID.Ptr(),
			CabID:      a.CabID,
			Position:   a.Position,
			Price:      &price,
			NewGroup:   a.NewGroup,
			OccurredAt: res.StartedAt,
		})
	}
	if err := m.publisher.Publish(ctx, evs...); err != nil {
		observability.EventsFailed.Add(float64(len(evs)))
		m.log.Warn().Err(err).Int("events", len(evs)).Msg("publish match events")
	}
}
