// README: In-memory backend; whole-store mutex, copy-on-commit transactions.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"ridepool/internal/domain"
	"ridepool/internal/types"
)

type memState struct {
	seq     int64
	rides   map[types.ID]*domain.Ride
	rideSeq map[types.ID]int64
	keys    map[string]types.ID
	groups  map[types.ID]*domain.RideGroup
	grpSeq  map[types.ID]int64
	cabs    map[types.ID]*domain.Cab
}

func newMemState() *memState {
	return &memState{
		rides:   make(map[types.ID]*domain.Ride),
		rideSeq: make(map[types.ID]int64),
		keys:    make(map[string]types.ID),
		groups:  make(map[types.ID]*domain.RideGroup),
		grpSeq:  make(map[types.ID]int64),
		cabs:    make(map[types.ID]*domain.Cab),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	c.seq = s.seq
	for id, r := range s.rides {
		c.rides[id] = r.Clone()
	}
	for id, n := range s.rideSeq {
		c.rideSeq[id] = n
	}
	for k, id := range s.keys {
		c.keys[k] = id
	}
	for id, g := range s.groups {
		c.groups[id] = g.Clone()
	}
	for id, n := range s.grpSeq {
		c.grpSeq[id] = n
	}
	for id, cab := range s.cabs {
		cp := *cab
		c.cabs[id] = &cp
	}
	return c
}

func (s *memState) next() int64 {
	s.seq++
	return s.seq
}

// Memory is a Store kept in process memory. A transaction holds the store
// mutex for its whole duration, so transactions are serialised and the
// per-cell locks of GetActiveForUpdate are implied.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) InTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, memRepos(&memView{tx: work})); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storage.Memory.InTx: %w", err)
	}
	m.state = work
	return nil
}

func (m *Memory) Repos() Repos {
	return memRepos(&memView{m: m})
}

func (m *Memory) Ping(context.Context) error {
	return nil
}

func memRepos(v *memView) Repos {
	return Repos{
		Rides:  &memRides{v},
		Groups: &memGroups{v},
		Cabs:   &memCabs{v},
	}
}

// memView applies operations either to a transaction's working copy or,
// outside a transaction, to the live state under the store mutex.
type memView struct {
	m  *Memory
	tx *memState
}

func (v *memView) with(fn func(s *memState) error) error {
	if v.tx != nil {
		return fn(v.tx)
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return fn(v.m.state)
}

// ---------------------------------------------------------------------------
// Rides
// ---------------------------------------------------------------------------

type memRides struct{ v *memView }

func (r *memRides) Create(_ context.Context, ride *domain.Ride) (*domain.Ride, error) {
	var out *domain.Ride
	err := r.v.with(func(s *memState) error {
		if ride.IdempotencyKey != nil {
			if id, ok := s.keys[*ride.IdempotencyKey]; ok {
				out = s.rides[id].Clone()
				return nil
			}
		}
		if _, ok := s.rides[ride.ID]; ok {
			return fmt.Errorf("storage.memRides.Create: ride %s: %w", ride.ID, domain.ErrConflict)
		}
		s.rides[ride.ID] = ride.Clone()
		s.rideSeq[ride.ID] = s.next()
		if ride.IdempotencyKey != nil {
			s.keys[*ride.IdempotencyKey] = ride.ID
		}
		out = ride.Clone()
		return nil
	})
	return out, err
}

func (r *memRides) GetPending(_ context.Context) ([]*domain.Ride, error) {
	var out []*domain.Ride
	err := r.v.with(func(s *memState) error {
		for _, ride := range s.rides {
			if ride.Status == domain.RidePending {
				out = append(out, ride.Clone())
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.Before(out[j].CreatedAt)
			}
			return s.rideSeq[out[i].ID] < s.rideSeq[out[j].ID]
		})
		return nil
	})
	return out, err
}

func (r *memRides) GetByID(_ context.Context, id types.ID) (*domain.Ride, error) {
	var out *domain.Ride
	err := r.v.with(func(s *memState) error {
		ride, ok := s.rides[id]
		if !ok {
			return fmt.Errorf("storage.memRides.GetByID: ride %s: %w", id, domain.ErrNotFound)
		}
		out = ride.Clone()
		return nil
	})
	return out, err
}

func (r *memRides) GetByIDForUpdate(ctx context.Context, id types.ID) (*domain.Ride, error) {
	return r.GetByID(ctx, id)
}

func (r *memRides) GetByIdempotencyKey(_ context.Context, key string) (*domain.Ride, error) {
	var out *domain.Ride
	err := r.v.with(func(s *memState) error {
		id, ok := s.keys[key]
		if !ok {
			return fmt.Errorf("storage.memRides.GetByIdempotencyKey: %w", domain.ErrNotFound)
		}
		out = s.rides[id].Clone()
		return nil
	})
	return out, err
}

func (r *memRides) GetInGroup(_ context.Context, groupID types.ID) ([]*domain.Ride, error) {
	var out []*domain.Ride
	err := r.v.with(func(s *memState) error {
		for _, ride := range s.rides {
			if ride.GroupID != nil && *ride.GroupID == groupID {
				out = append(out, ride.Clone())
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if ma, mb := matchedAt(a), matchedAt(b); !ma.Equal(mb) {
				return ma.Before(mb)
			}
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return s.rideSeq[a.ID] < s.rideSeq[b.ID]
		})
		return nil
	})
	return out, err
}

func (r *memRides) Update(_ context.Context, ride *domain.Ride) error {
	return r.v.with(func(s *memState) error {
		if _, ok := s.rides[ride.ID]; !ok {
			return fmt.Errorf("storage.memRides.Update: ride %s: %w", ride.ID, domain.ErrNotFound)
		}
		s.rides[ride.ID] = ride.Clone()
		return nil
	})
}

// ---------------------------------------------------------------------------
// Groups
// ---------------------------------------------------------------------------

type memGroups struct{ v *memView }

func (g *memGroups) active(s *memState, cell string) []*domain.RideGroup {
	var out []*domain.RideGroup
	for _, grp := range s.groups {
		if grp.Status != domain.GroupActive {
			continue
		}
		if cell != "" && grp.Cell != cell {
			continue
		}
		out = append(out, grp.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return s.grpSeq[out[i].ID] < s.grpSeq[out[j].ID]
	})
	return out
}

func (g *memGroups) GetActiveForUpdate(_ context.Context, cell string) ([]*domain.RideGroup, error) {
	var out []*domain.RideGroup
	err := g.v.with(func(s *memState) error {
		out = g.active(s, cell)
		return nil
	})
	return out, err
}

func (g *memGroups) GetActive(ctx context.Context) ([]*domain.RideGroup, error) {
	return g.GetActiveForUpdate(ctx, "")
}

func (g *memGroups) Create(_ context.Context, grp *domain.RideGroup) error {
	return g.v.with(func(s *memState) error {
		if _, ok := s.groups[grp.ID]; ok {
			return fmt.Errorf("storage.memGroups.Create: group %s: %w", grp.ID, domain.ErrConflict)
		}
		s.groups[grp.ID] = grp.Clone()
		s.grpSeq[grp.ID] = s.next()
		return nil
	})
}

func (g *memGroups) GetByID(_ context.Context, id types.ID) (*domain.RideGroup, error) {
	var out *domain.RideGroup
	err := g.v.with(func(s *memState) error {
		grp, ok := s.groups[id]
		if !ok {
			return fmt.Errorf("storage.memGroups.GetByID: group %s: %w", id, domain.ErrNotFound)
		}
		out = grp.Clone()
		return nil
	})
	return out, err
}

func (g *memGroups) GetByIDForUpdate(ctx context.Context, id types.ID) (*domain.RideGroup, error) {
	return g.GetByID(ctx, id)
}

func (g *memGroups) Update(_ context.Context, grp *domain.RideGroup) error {
	return g.v.with(func(s *memState) error {
		if _, ok := s.groups[grp.ID]; !ok {
			return fmt.Errorf("storage.memGroups.Update: group %s: %w", grp.ID, domain.ErrNotFound)
		}
		s.groups[grp.ID] = grp.Clone()
		return nil
	})
}

// ---------------------------------------------------------------------------
// Cabs
// ---------------------------------------------------------------------------

type memCabs struct{ v *memView }

func (c *memCabs) Create(_ context.Context, cab *domain.Cab) error {
	return c.v.with(func(s *memState) error {
		if _, ok := s.cabs[cab.ID]; ok {
			return fmt.Errorf("storage.memCabs.Create: cab %s: %w", cab.ID, domain.ErrConflict)
		}
		cp := *cab
		s.cabs[cab.ID] = &cp
		return nil
	})
}

func (c *memCabs) GetAvailable(_ context.Context) ([]*domain.Cab, error) {
	var out []*domain.Cab
	err := c.v.with(func(s *memState) error {
		for _, cab := range s.cabs {
			if cab.Available {
				cp := *cab
				out = append(out, &cp)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (c *memCabs) GetByID(_ context.Context, id types.ID) (*domain.Cab, error) {
	var out *domain.Cab
	err := c.v.with(func(s *memState) error {
		cab, ok := s.cabs[id]
		if !ok {
			return fmt.Errorf("storage.memCabs.GetByID: cab %s: %w", id, domain.ErrNotFound)
		}
		cp := *cab
		out = &cp
		return nil
	})
	return out, err
}

func (c *memCabs) CountAvailable(_ context.Context) (int, error) {
	n := 0
	err := c.v.with(func(s *memState) error {
		for _, cab := range s.cabs {
			if cab.Available {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (c *memCabs) Claim(_ context.Context, id types.ID) (bool, error) {
	claimed := false
	err := c.v.with(func(s *memState) error {
		cab, ok := s.cabs[id]
		if !ok {
			return fmt.Errorf("storage.memCabs.Claim: cab %s: %w", id, domain.ErrNotFound)
		}
		if cab.Available {
			cab.Available = false
			claimed = true
		}
		return nil
	})
	return claimed, err
}

func (c *memCabs) Free(_ context.Context, id types.ID) error {
	return c.v.with(func(s *memState) error {
		cab, ok := s.cabs[id]
		if !ok {
			return fmt.Errorf("storage.memCabs.Free: cab %s: %w", id, domain.ErrNotFound)
		}
		cab.Available = true
		return nil
	})
}

func matchedAt(r *domain.Ride) time.Time {
	if r.MatchedAt != nil {
		return *r.MatchedAt
	}
	return r.CreatedAt
}
