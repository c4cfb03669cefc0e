package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridepool/internal/domain"
	"ridepool/internal/events"
	"ridepool/internal/modules/matching"
	"ridepool/internal/modules/pricing"
	"ridepool/internal/storage"
	"ridepool/internal/types"
)

var (
	airport = types.Point{Lat: 19.0896, Lng: 72.8656}
	andheri = types.Point{Lat: 19.1176, Lng: 72.8490}
	nearby  = types.Point{Lat: 19.1180, Lng: 72.8500}
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, evs ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evs...)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) ofType(t events.Type) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	t     *testing.T
	store *storage.Memory
	pub   *recordingPublisher
	svc   *Service
	m     *matching.Matcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, store: storage.NewMemory(), pub: &recordingPublisher{}}
	f.svc = NewService(f.store, f.pub, zerolog.Nop())
	f.m = matching.NewMatcher(f.store, pricing.NewService(pricing.Rate{BaseFare: 50, RatePerKm: 15}), f.pub, matching.DefaultConfig(), zerolog.Nop())
	return f
}

func (f *fixture) addCab(id string) {
	f.t.Helper()
	seats, luggage := domain.DefaultCapacity(domain.VehicleSedan)
	require.NoError(f.t, f.store.Repos().Cabs.Create(context.Background(), &domain.Cab{
		ID: types.ID(id), VehicleType: domain.VehicleSedan, MaxSeats: seats, MaxLuggage: luggage, Location: airport, Available: true,
	}))
}

func (f *fixture) submit(dropoff types.Point) *domain.Ride {
	f.t.Helper()
	r, created, err := f.svc.Submit(context.Background(), SubmitCommand{
		UserID: "u-1", Pickup: airport, Dropoff: dropoff, Seats: 1, Luggage: 1,
	})
	require.NoError(f.t, err)
	require.True(f.t, created)
	return r
}

func (f *fixture) match() {
	f.t.Helper()
	_, err := f.m.RunCycle(context.Background())
	require.NoError(f.t, err)
}

func (f *fixture) group(id types.ID) *domain.RideGroup {
	f.t.Helper()
	g, err := f.store.Repos().Groups.GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return g
}

func (f *fixture) cabAvailable(id string) bool {
	f.t.Helper()
	c, err := f.store.Repos().Cabs.GetByID(context.Background(), types.ID(id))
	require.NoError(f.t, err)
	return c.Available
}

func TestSubmitCommand_Validate(t *testing.T) {
	valid := SubmitCommand{UserID: "u", Pickup: airport, Dropoff: andheri, Seats: 1}

	tests := []struct {
		name    string
		mutate  func(c *SubmitCommand)
		wantErr bool
	}{
		{"valid", func(c *SubmitCommand) {}, false},
		{"max seats", func(c *SubmitCommand) { c.Seats = MaxSeats }, false},
		{"missing user", func(c *SubmitCommand) { c.UserID = " " }, true},
		{"zero seats", func(c *SubmitCommand) { c.Seats = 0 }, true},
		{"too many seats", func(c *SubmitCommand) { c.Seats = MaxSeats + 1 }, true},
		{"negative luggage", func(c *SubmitCommand) { c.Luggage = -1 }, true},
		{"too much luggage", func(c *SubmitCommand) { c.Luggage = MaxLuggage + 1 }, true},
		{"bad pickup", func(c *SubmitCommand) { c.Pickup = types.Point{Lat: 91} }, true},
		{"bad dropoff", func(c *SubmitCommand) { c.Dropoff = types.Point{Lng: -181} }, true},
		{"long key", func(c *SubmitCommand) { c.IdempotencyKey = string(make([]byte, MaxIdempotencyKey+1)) }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSubmit_CreatesPendingRide(t *testing.T) {
	f := newFixture(t)
	r := f.submit(andheri)

	assert.Equal(t, domain.RidePending, r.Status)
	assert.Nil(t, r.GroupID)
	assert.Nil(t, r.Price)

	got, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, r.ID, got.ID)
}

func TestSubmit_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	cmd := SubmitCommand{UserID: "u", Pickup: airport, Dropoff: andheri, Seats: 2, IdempotencyKey: "req-1"}

	first, created, err := f.svc.Submit(context.Background(), cmd)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.svc.Submit(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	pending, err := f.store.Repos().Rides.GetPending(context.Background())
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestSubmit_RejectsInvalid(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.svc.Submit(context.Background(), SubmitCommand{UserID: "u", Pickup: airport, Dropoff: andheri})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancel_Pending(t *testing.T) {
	f := newFixture(t)
	r := f.submit(andheri)

	got, err := f.svc.Cancel(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RideCancelled, got.Status)
	assert.Nil(t, got.GroupID)

	evs := f.pub.ofType(events.RideCancelled)
	require.Len(t, evs, 1)
	assert.Equal(t, r.ID, evs[0].RideID)
	assert.Nil(t, evs[0].GroupID)
}

func TestCancel_MatchedReleasesCapacity(t *testing.T) {
	f := newFixture(t)
	f.addCab("cab-1")
	a := f.submit(andheri)
	b := f.submit(nearby)
	f.match()

	ra, err := f.svc.Get(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RideMatched, ra.Status)
	groupID := *ra.GroupID
	require.Equal(t, 2, f.group(groupID).SeatsOccupied)

	_, err = f.svc.Cancel(context.Background(), a.ID)
	require.NoError(t, err)

	g := f.group(groupID)
	assert.Equal(t, domain.GroupActive, g.Status)
	assert.Equal(t, 1, g.SeatsOccupied)
	assert.Equal(t, 1, g.LuggageOccupied)
	assert.Equal(t, 1, g.Size())
	assert.False(t, f.cabAvailable("cab-1"))

	evs := f.pub.ofType(events.RideCancelled)
	require.Len(t, evs, 1)
	require.NotNil(t, evs[0].GroupID)
	assert.Equal(t, groupID, *evs[0].GroupID)

	// Last member leaving deactivates the group and frees the cab.
	_, err = f.svc.Cancel(context.Background(), b.ID)
	require.NoError(t, err)
	g = f.group(groupID)
	assert.Equal(t, domain.GroupInactive, g.Status)
	assert.Equal(t, 0, g.SeatsOccupied)
	assert.True(t, f.cabAvailable("cab-1"))

	views, err := f.svc.ActiveGroups(context.Background())
	require.NoError(t, err)
	assert.Empty(t, views)
}

func TestCancel_TerminalRejected(t *testing.T) {
	f := newFixture(t)
	r := f.submit(andheri)
	_, err := f.svc.Cancel(context.Background(), r.ID)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), r.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, f.pub.ofType(events.RideCancelled), 1)
}

func TestCancel_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Cancel(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCancel_PublishFailureStillCommits(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker down")
	r := f.submit(andheri)

	_, err := f.svc.Cancel(context.Background(), r.ID)
	require.NoError(t, err)

	got, err := f.svc.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RideCancelled, got.Status)
}

func TestTripLifecycle(t *testing.T) {
	f := newFixture(t)
	f.addCab("cab-1")
	r := f.submit(andheri)

	_, err := f.svc.StartTrip(context.Background(), r.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending ride cannot start")

	f.match()

	started, err := f.svc.StartTrip(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RideOnTrip, started.Status)
	require.NotNil(t, started.GroupID)
	groupID := *started.GroupID

	_, err = f.svc.Cancel(context.Background(), r.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "on-trip ride cannot be cancelled")

	done, err := f.svc.CompleteTrip(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RideCompleted, done.Status)
	assert.Nil(t, done.GroupID)
	assert.NotNil(t, done.Price)

	assert.Equal(t, domain.GroupInactive, f.group(groupID).Status)
	assert.True(t, f.cabAvailable("cab-1"))

	_, err = f.svc.CompleteTrip(context.Background(), r.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestActiveGroups(t *testing.T) {
	f := newFixture(t)
	f.addCab("cab-1")
	a := f.submit(andheri)
	time.Sleep(time.Millisecond)
	b := f.submit(nearby)
	f.match()

	views, err := f.svc.ActiveGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, 2, views[0].Group.Size())
	require.Len(t, views[0].Rides, 2)
	assert.Equal(t, a.ID, views[0].Rides[0].ID)
	assert.Equal(t, b.ID, views[0].Rides[1].ID)
}
