// README: H3 spatial binning of pickup points.
package location

import (
	h3 "github.com/uber/h3-go/v4"

	"ridepool/internal/types"
)

// DefaultResolution gives roughly 5 km² hexagons.
const DefaultResolution = 7

// CellOf returns the H3 cell id containing the coordinate at the given
// resolution.
func CellOf(lat, lng float64, resolution int) string {
	return h3.LatLngToCell(h3.NewLatLng(lat, lng), resolution).String()
}

func CellOfPoint(p types.Point, resolution int) string {
	return CellOf(p.Lat, p.Lng, resolution)
}
