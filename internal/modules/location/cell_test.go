package location

import (
	"testing"

	"github.com/stretchr/testify/assert"
	h3 "github.com/uber/h3-go/v4"
)

func TestCellOf_Deterministic(t *testing.T) {
	a := CellOf(19.0896, 72.8656, DefaultResolution)
	b := CellOf(19.0896, 72.8656, DefaultResolution)
	assert.NotEmpty(t, a)
	assert.Equal(t, a, b)
}

func TestCellOf_NearbyPointsShareCell(t *testing.T) {
	cell := h3.LatLngToCell(h3.NewLatLng(19.0896, 72.8656), DefaultResolution)
	centre := cell.LatLng()
	// ~55 m from the centre of a cell whose edge is ~1.2 km.
	near := CellOf(centre.Lat+0.0005, centre.Lng, DefaultResolution)
	assert.Equal(t, cell.String(), near)
}

func TestCellOf_DistantPointsDiffer(t *testing.T) {
	mumbai := CellOf(19.0896, 72.8656, DefaultResolution)
	delhi := CellOf(28.5562, 77.1000, DefaultResolution)
	assert.NotEqual(t, mumbai, delhi)
}

func TestCellOf_ResolutionChangesCell(t *testing.T) {
	coarse := CellOf(19.0896, 72.8656, 5)
	fine := CellOf(19.0896, 72.8656, 9)
	assert.NotEqual(t, coarse, fine)
}
