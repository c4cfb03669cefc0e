// README: Ride commands and read models.
package ride

import (
	"fmt"
	"strings"

	"ridepool/internal/domain"
	"ridepool/internal/types"
)

// Request bounds.
const (
	MaxSeats          = 6
	MaxLuggage        = 10
	MaxIdempotencyKey = 64
)

type SubmitCommand struct {
	UserID         string
	Pickup         types.Point
	Dropoff        types.Point
	Seats          int
	Luggage        int
	IdempotencyKey string
}

// Validate checks the request against the field bounds and wraps
// domain.ErrValidation describing every failed field.
func (c SubmitCommand) Validate() error {
	var problems []string
	if strings.TrimSpace(c.UserID) == "" {
		problems = append(problems, "user_id is required")
	}
	if !c.Pickup.Valid() {
		problems = append(problems, "pickup coordinates out of range")
	}
	if !c.Dropoff.Valid() {
		problems = append(problems, "dropoff coordinates out of range")
	}
	if c.Seats < 1 || c.Seats > MaxSeats {
		problems = append(problems, fmt.Sprintf("seats_requested must be between 1 and %d", MaxSeats))
	}
	if c.Luggage < 0 || c.Luggage > MaxLuggage {
		problems = append(problems, fmt.Sprintf("luggage_count must be between 0 and %d", MaxLuggage))
	}
	if len(c.IdempotencyKey) > MaxIdempotencyKey {
		problems = append(problems, fmt.Sprintf("idempotency_key longer than %d", MaxIdempotencyKey))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// GroupView is an active group with its current members.
type GroupView struct {
	Group *domain.RideGroup
	Rides []*domain.Ride
}
