// README: Matching configuration and cycle outcome types.
package matching

import (
	"time"

	"ridepool/internal/modules/location"
	"ridepool/internal/types"
)

type Config struct {
	Resolution      int
	DetourTolerance float64
}

func DefaultConfig() Config {
	return Config{Resolution: location.DefaultResolution, DetourTolerance: DefaultDetourTolerance}
}

// Assignment records one ride placed in a group during a cycle.
type Assignment struct {
	RideID   types.ID
	GroupID  types.ID
	CabID    *types.ID
	Position int
	Price    float64
	NewGroup bool
}

type CycleResult struct {
	Pending       int
	AvailableCabs int
	Surge         float64
	Cells         int
	Matched       int
	GroupsCreated int
	Unmatched     int
	Assignments   []Assignment
	StartedAt     time.Time
	Duration      time.Duration
}
