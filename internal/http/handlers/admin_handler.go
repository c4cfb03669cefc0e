// README: Admin handlers: active groups, health, and on-demand matching.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridepool/internal/modules/matching"
	"ridepool/internal/modules/ride"
)

// MatchTrigger runs one lock-guarded matching iteration.
type MatchTrigger interface {
	RunOnce(ctx context.Context) (matching.CycleResult, bool, error)
}

// HealthCheck is one named dependency check.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type AdminHandler struct {
	rides   *ride.Service
	trigger MatchTrigger
	checks  []HealthCheck
}

func NewAdminHandler(rides *ride.Service, trigger MatchTrigger, checks ...HealthCheck) *AdminHandler {
	return &AdminHandler{rides: rides, trigger: trigger, checks: checks}
}

func (h *AdminHandler) ActiveGroups(c *gin.Context) {
	views, err := h.rides.ActiveGroups(c.Request.Context())
	if err != nil {
		writeDomainError(c, err)
		return
	}
	out := make([]groupResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toGroupResponse(v))
	}
	writeJSON(c, http.StatusOK, out)
}

// Health reports "ok" when every check passes and 503 with the failing
// checks otherwise.
func (h *AdminHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for _, hc := range h.checks {
		if err := hc.Check(ctx); err != nil {
			failed[hc.Name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(c, http.StatusServiceUnavailable, gin.H{"status": "degraded", "failed": failed})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type matchResponse struct {
	Ran           bool    `json:"ran"`
	Pending       int     `json:"pending"`
	AvailableCabs int     `json:"available_cabs"`
	Surge         float64 `json:"surge"`
	Matched       int     `json:"matched"`
	GroupsCreated int     `json:"groups_created"`
	Unmatched     int     `json:"unmatched"`
	DurationMs    int64   `json:"duration_ms"`
}

// Match runs one cycle now. ran=false means another instance held the lock.
func (h *AdminHandler) Match(c *gin.Context) {
	res, ran, err := h.trigger.RunOnce(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "matching cycle failed")
		return
	}
	writeJSON(c, http.StatusOK, matchResponse{
		Ran:           ran,
		Pending:       res.Pending,
		AvailableCabs: res.AvailableCabs,
		Surge:         res.Surge,
		Matched:       res.Matched,
		GroupsCreated: res.GroupsCreated,
		Unmatched:     res.Unmatched,
		DurationMs:    res.Duration.Milliseconds(),
	})
}
