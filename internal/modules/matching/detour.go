// README: Detour check for adding a passenger to a pooled group.
package matching

import (
	"ridepool/internal/modules/location"
	"ridepool/internal/types"
)

// DefaultDetourTolerance allows each passenger up to 40% extra distance.
const DefaultDetourTolerance = 0.4

// shortTripKm is the direct distance under which a passenger is exempt
// from the detour check.
const shortTripKm = 0.1

// DetourOK reports whether appending the candidate pickup/dropoff to the
// group keeps every passenger's shared leg within (1+tolerance) times their
// direct distance. The route visits all pickups in join order and then all
// dropoffs in join order.
func DetourOK(pickups, dropoffs []types.Point, pickup, dropoff types.Point, tolerance float64) bool {
	if len(pickups) != len(dropoffs) {
		return false
	}
	n := len(pickups) + 1
	stops := make([]types.Point, 0, 2*n)
	stops = append(stops, pickups...)
	stops = append(stops, pickup)
	stops = append(stops, dropoffs...)
	stops = append(stops, dropoff)

	for i := 0; i < n; i++ {
		direct := location.PointDistanceKm(stops[i], stops[n+i])
		if direct < shortTripKm {
			continue
		}
		if SharedLegKm(stops, n, i) > (1+tolerance)*direct {
			return false
		}
	}
	return true
}

// SharedLegKm sums the hops from passenger i's pickup slot to their dropoff
// slot in a pickups-then-dropoffs stop list holding n passengers.
func SharedLegKm(stops []types.Point, n, i int) float64 {
	total := 0.0
	for j := i; j < n+i; j++ {
		total += location.PointDistanceKm(stops[j], stops[j+1])
	}
	return total
}
