// README: Ride aggregate and its lifecycle state machine.
package domain

import (
	"fmt"
	"time"

	"ridepool/internal/types"
)

type RideStatus string

const (
	RidePending   RideStatus = "PENDING"
	RideMatched   RideStatus = "MATCHED"
	RideOnTrip    RideStatus = "ON_TRIP"
	RideCompleted RideStatus = "COMPLETED"
	RideCancelled RideStatus = "CANCELLED"
)

type Ride struct {
	ID             types.ID
	UserID         string
	Pickup         types.Point
	Dropoff        types.Point
	Status         RideStatus
	SeatsRequested int
	LuggageCount   int
	GroupID        *types.ID
	IdempotencyKey *string
	Price          *float64
	CreatedAt      time.Time
	MatchedAt      *time.Time
	UpdatedAt      time.Time
}

// AllowedTransitions is the ride lifecycle as code. Statuses without an
// entry are terminal.
var AllowedTransitions = map[RideStatus][]RideStatus{
	RidePending: {RideMatched, RideCancelled},
	RideMatched: {RideOnTrip, RideCancelled},
	RideOnTrip:  {RideCompleted},
}

func CanTransition(from, to RideStatus) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the ride to next or returns ErrInvalidTransition
// leaving the ride untouched.
func (r *Ride) TransitionTo(next RideStatus) error {
	if !CanTransition(r.Status, next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.Status, next)
	}
	r.Status = next
	return nil
}

// IsTerminal reports whether no further transition is possible.
func (s RideStatus) IsTerminal() bool {
	_, ok := AllowedTransitions[s]
	return !ok
}

func (s RideStatus) Valid() bool {
	switch s {
	case RidePending, RideMatched, RideOnTrip, RideCompleted, RideCancelled:
		return true
	}
	return false
}

// Clone returns a deep copy so stores can hand out rides without aliasing.
func (r *Ride) Clone() *Ride {
	if r == nil {
		return nil
	}
	c := *r
	if r.GroupID != nil {
		g := *r.GroupID
		c.GroupID = &g
	}
	if r.IdempotencyKey != nil {
		k := *r.IdempotencyKey
		c.IdempotencyKey = &k
	}
	if r.Price != nil {
		p := *r.Price
		c.Price = &p
	}
	if r.MatchedAt != nil {
		m := *r.MatchedAt
		c.MatchedAt = &m
	}
	return &c
}
