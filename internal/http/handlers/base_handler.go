// README: Base handler utilities (JSON helpers, error mapping, response shapes).
package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/domain"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

// writeDomainError maps domain sentinels to status codes. Anything else is
// recorded on the context for the request log and reported as 500.
func writeDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(c, http.StatusNotFound, "ride not found")
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// isValidID accepts the characters produced by types.NewID.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' {
			continue
		}
		return false
	}
	return true
}

type rideResponse struct {
	ID             types.ID          `json:"id"`
	UserID         string            `json:"user_id"`
	PickupLat      float64           `json:"pickup_lat"`
	PickupLng      float64           `json:"pickup_lng"`
	DropoffLat     float64           `json:"dropoff_lat"`
	DropoffLng     float64           `json:"dropoff_lng"`
	Status         domain.RideStatus `json:"status"`
	SeatsRequested int               `json:"seats_requested"`
	LuggageCount   int               `json:"luggage_count"`
	RideGroupID    *types.ID         `json:"ride_group_id"`
	Price          *float64          `json:"price"`
	CreatedAt      time.Time         `json:"created_at"`
	MatchedAt      *time.Time        `json:"matched_at,omitempty"`
}

func toRideResponse(r *domain.Ride) rideResponse {
	return rideResponse{
		ID:             r.ID,
		UserID:         r.UserID,
		PickupLat:      r.Pickup.Lat,
		PickupLng:      r.Pickup.Lng,
		DropoffLat:     r.Dropoff.Lat,
		DropoffLng:     r.Dropoff.Lng,
		Status:         r.Status,
		SeatsRequested: r.SeatsRequested,
		LuggageCount:   r.LuggageCount,
		RideGroupID:    r.GroupID,
		Price:          r.Price,
		CreatedAt:      r.CreatedAt,
		MatchedAt:      r.MatchedAt,
	}
}

type groupResponse struct {
	ID              types.ID           `json:"id"`
	CabID           *types.ID          `json:"cab_id"`
	SeatsOccupied   int                `json:"seats_occupied"`
	LuggageOccupied int                `json:"luggage_occupied"`
	Status          domain.GroupStatus `json:"status"`
	H3Cell          string             `json:"h3_cell"`
	Rides           []rideResponse     `json:"rides"`
}

func toGroupResponse(v ride.GroupView) groupResponse {
	rides := make([]rideResponse, 0, len(v.Rides))
	for _, r := range v.Rides {
		rides = append(rides, toRideResponse(r))
	}
	return groupResponse{
		ID:              v.Group.ID,
		CabID:           v.Group.CabID,
		SeatsOccupied:   v.Group.SeatsOccupied,
		LuggageOccupied: v.Group.LuggageOccupied,
		Status:          v.Group.Status,
		H3Cell:          v.Group.Cell,
		Rides:           rides,
	}
}
