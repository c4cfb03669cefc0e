// README: API gateway; builds the gin engine, registers routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ridepool/internal/http/handlers"
	"ridepool/internal/http/middleware"
	"ridepool/internal/modules/ride"
)

type ServerDeps struct {
	Rides              *ride.Service
	Trigger            handlers.MatchTrigger
	HealthChecks       []handlers.HealthCheck
	RateLimitPerMinute int
	Log                zerolog.Logger
}

type Server struct {
	deps    ServerDeps
	limiter *middleware.RateLimiter
}

func NewServer(deps ServerDeps) *Server {
	if deps.RateLimitPerMinute <= 0 {
		deps.RateLimitPerMinute = 100
	}
	return &Server{deps: deps, limiter: middleware.NewRateLimiter(deps.RateLimitPerMinute)}
}

func (s *Server) Routes() http.Handler {
	r := gin.New()
	r.Use(middleware.Recovery(s.deps.Log), middleware.Logging(s.deps.Log), middleware.Metrics())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", s.limiter.Middleware())

	rides := handlers.NewRideHandler(s.deps.Rides)
	api.POST("/rides", rides.Create)
	api.GET("/rides/:id", rides.Get)
	api.PATCH("/rides/:id/cancel", rides.Cancel)
	api.PATCH("/rides/:id/start", rides.Start)
	api.PATCH("/rides/:id/complete", rides.Complete)

	admin := handlers.NewAdminHandler(s.deps.Rides, s.deps.Trigger, s.deps.HealthChecks...)
	api.GET("/admin/active-groups", admin.ActiveGroups)
	api.GET("/admin/health", admin.Health)
	api.POST("/admin/match", admin.Match)

	return r
}

// Close stops background work owned by the server.
func (s *Server) Close() {
	s.limiter.Stop()
}
