// README: RideGroup aggregate: a pooled set of rides sharing one cab.
package domain

import (
	"time"

	"ridepool/internal/types"
)

type GroupStatus string

const (
	GroupActive   GroupStatus = "ACTIVE"
	GroupInactive GroupStatus = "INACTIVE"
)

// Capacity used for groups that have no cab attached.
const (
	DefaultMaxSeats   = 4
	DefaultMaxLuggage = 3
)

// Leg is one member's pickup/dropoff pair in join order.
type Leg struct {
	RideID  types.ID
	Pickup  types.Point
	Dropoff types.Point
}

type RideGroup struct {
	ID              types.ID
	CabID           *types.ID
	SeatsOccupied   int
	LuggageOccupied int
	Status          GroupStatus
	Cell            string
	History         []Leg
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CanAccommodate reports whether seats and luggage fit in the remaining
// capacity of the group.
func (g *RideGroup) CanAccommodate(seats, luggage, maxSeats, maxLuggage int) bool {
	return g.SeatsOccupied+seats <= maxSeats && g.LuggageOccupied+luggage <= maxLuggage
}

// AddPassenger books the ride's seats and luggage and appends its leg.
func (g *RideGroup) AddPassenger(r *Ride) {
	g.SeatsOccupied += r.SeatsRequested
	g.LuggageOccupied += r.LuggageCount
	g.History = append(g.History, Leg{RideID: r.ID, Pickup: r.Pickup, Dropoff: r.Dropoff})
}

// RemovePassenger releases the ride's seats and luggage, floored at zero,
// and drops its leg from the history.
func (g *RideGroup) RemovePassenger(r *Ride) {
	g.SeatsOccupied = max(0, g.SeatsOccupied-r.SeatsRequested)
	g.LuggageOccupied = max(0, g.LuggageOccupied-r.LuggageCount)
	kept := g.History[:0]
	for _, leg := range g.History {
		if leg.RideID != r.ID {
			kept = append(kept, leg)
		}
	}
	g.History = kept
}

// Rebuild resets the leg history from the member rides given in join
// order, skipping cancelled ones.
func (g *RideGroup) Rebuild(members []*Ride) {
	g.History = g.History[:0]
	for _, r := range members {
		if r.Status == RideCancelled {
			continue
		}
		g.History = append(g.History, Leg{RideID: r.ID, Pickup: r.Pickup, Dropoff: r.Dropoff})
	}
}

// Size is the number of members currently in the group.
func (g *RideGroup) Size() int {
	return len(g.History)
}

// Pickups and Dropoffs return the member stops in join order.
func (g *RideGroup) Pickups() []types.Point {
	out := make([]types.Point, len(g.History))
	for i, leg := range g.History {
		out[i] = leg.Pickup
	}
	return out
}

func (g *RideGroup) Dropoffs() []types.Point {
	out := make([]types.Point, len(g.History))
	for i, leg := range g.History {
		out[i] = leg.Dropoff
	}
	return out
}

func (g *RideGroup) Clone() *RideGroup {
	if g == nil {
		return nil
	}
	c := *g
	if g.CabID != nil {
		id := *g.CabID
		c.CabID = &id
	}
	c.History = append([]Leg(nil), g.History...)
	return &c
}
