// Package events publishes ride lifecycle events after the state change has
// been committed.
package events

import (
	"context"
	"time"

	"ridepool/internal/types"
)

type Type string

const (
	RideMatched   Type = "ride.matched"
	RideCancelled Type = "ride.cancelled"
)

type Event struct {
	Type       Type      `json:"type"`
	RideID     types.ID  `json:"ride_id"`
	GroupID    *types.ID `json:"group_id,omitempty"`
	CabID      *types.ID `json:"cab_id,omitempty"`
	Position   int       `json:"position,omitempty"`
	Price      *float64  `json:"price,omitempty"`
	NewGroup   bool      `json:"new_group,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, evs ...Event) error
	Close() error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(context.Context, ...Event) error { return nil }
func (Noop) Close() error                              { return nil }
