// Package observability holds the Prometheus collectors for the process.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ridepool"

var (
	// Cycle outcomes: matched, idle, skipped, error.
	MatchingCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "matching_cycles_total", Help: "Matching cycles by outcome"},
		[]string{"outcome"},
	)
	MatchingCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "matching_cycle_duration_seconds",
		Help:      "Duration of matching cycles that ran under the lock",
		Buckets:   prometheus.DefBuckets,
	})
	RidesMatched  = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_matched_total", Help: "Rides moved to MATCHED"})
	GroupsCreated = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "groups_created_total", Help: "Ride groups opened by the matcher"})
	PendingRides  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "pending_rides", Help: "Pending rides seen by the last cycle"})
	LastSurge     = promauto.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: "surge_multiplier", Help: "Surge applied in the last cycle"})

	RidesCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "rides_cancelled_total", Help: "Rides cancelled by users"})
	EventsFailed   = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "events_publish_failed_total", Help: "Ride events that could not be published"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
