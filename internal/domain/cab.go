// README: Cab fleet entity.
package domain

import (
	"time"

	"ridepool/internal/types"
)

type VehicleType string

const (
	VehicleSedan VehicleType = "SEDAN"
	VehicleSUV   VehicleType = "SUV"
	VehicleVan   VehicleType = "VAN"
)

type Cab struct {
	ID          types.ID
	VehicleType VehicleType
	MaxSeats    int
	MaxLuggage  int
	Location    types.Point
	Available   bool
	CreatedAt   time.Time
}

// Capacity returns the seat and luggage limits that apply to a group
// riding in cab. A nil cab gets the default capacity.
func Capacity(cab *Cab) (seats, luggage int) {
	if cab == nil {
		return DefaultMaxSeats, DefaultMaxLuggage
	}
	return cab.MaxSeats, cab.MaxLuggage
}

// DefaultCapacity is the seat/luggage layout seeded for each vehicle type.
func DefaultCapacity(t VehicleType) (seats, luggage int) {
	switch t {
	case VehicleSUV:
		return 6, 5
	case VehicleVan:
		return 8, 8
	default:
		return 4, 3
	}
}

func (t VehicleType) Valid() bool {
	switch t {
	case VehicleSedan, VehicleSUV, VehicleVan:
		return true
	}
	return false
}
