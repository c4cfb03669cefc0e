// README: Ride handlers for submit/get/cancel and trip start/complete.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridepool/internal/domain"
	"ridepool/internal/modules/ride"
	"ridepool/internal/types"
)

type RideHandler struct {
	rides *ride.Service
}

func NewRideHandler(svc *ride.Service) *RideHandler {
	return &RideHandler{rides: svc}
}

type createRideReq struct {
	UserID         string   `json:"user_id"`
	PickupLat      *float64 `json:"pickup_lat"`
	PickupLng      *float64 `json:"pickup_lng"`
	DropoffLat     *float64 `json:"dropoff_lat"`
	DropoffLng     *float64 `json:"dropoff_lng"`
	SeatsRequested *int     `json:"seats_requested"`
	LuggageCount   int      `json:"luggage_count"`
	IdempotencyKey string   `json:"idempotency_key"`
}

// Create accepts a ride request for the next matching cycle. A replayed
// idempotency key returns the original ride.
func (h *RideHandler) Create(c *gin.Context) {
	var req createRideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.PickupLat == nil || req.PickupLng == nil || req.DropoffLat == nil || req.DropoffLng == nil {
		writeError(c, http.StatusBadRequest, "pickup and dropoff coordinates are required")
		return
	}
	seats := 1
	if req.SeatsRequested != nil {
		seats = *req.SeatsRequested
	}
	r, _, err := h.rides.Submit(c.Request.Context(), ride.SubmitCommand{
		UserID:         req.UserID,
		Pickup:         types.Point{Lat: *req.PickupLat, Lng: *req.PickupLng},
		Dropoff:        types.Point{Lat: *req.DropoffLat, Lng: *req.DropoffLng},
		Seats:          seats,
		Luggage:        req.LuggageCount,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, toRideResponse(r))
}

func (h *RideHandler) Get(c *gin.Context) {
	h.withRide(c, h.rides.Get)
}

func (h *RideHandler) Cancel(c *gin.Context) {
	h.withRide(c, h.rides.Cancel)
}

func (h *RideHandler) Start(c *gin.Context) {
	h.withRide(c, h.rides.StartTrip)
}

func (h *RideHandler) Complete(c *gin.Context) {
	h.withRide(c, h.rides.CompleteTrip)
}

func (h *RideHandler) withRide(c *gin.Context, op func(ctx context.Context, id types.ID) (*domain.Ride, error)) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid ride id")
		return
	}
	r, err := op(c.Request.Context(), types.ID(id))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, toRideResponse(r))
}
