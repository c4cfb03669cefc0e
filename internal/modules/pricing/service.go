// README: Pricing engine computes surge and pooled fares.
package pricing

import (
	"ridepool/internal/modules/location"
	"ridepool/internal/types"
)

// Surge is the demand/supply ratio clamped to [MinSurge, MaxSurge]. With no
// available cabs the surge is MaxSurge.
func Surge(activeRequests, availableCabs int) float64 {
	if availableCabs <= 0 {
		return MaxSurge
	}
	ratio := float64(activeRequests) / float64(availableCabs)
	return min(max(ratio, MinSurge), MaxSurge)
}

// Discount returns the pooling discount for a 1-based join position.
func Discount(position int) float64 {
	switch {
	case position <= 1:
		return 0
	case position == 2:
		return 0.20
	default:
		return 0.30
	}
}

// Price is (base + km*rate) * surge * (1 - discount), rounded to cents.
func Price(distanceKm, baseFare, ratePerKm float64, position int, surge float64) float64 {
	raw := (baseFare + distanceKm*ratePerKm) * surge * (1 - Discount(position))
	return types.RoundMoney(raw)
}

type Service struct {
	rate Rate
}

func NewService(rate Rate) *Service {
	return &Service{rate: rate}
}

func (s *Service) Rate() Rate {
	return s.rate
}

// Quote prices the pickup->dropoff trip for a passenger joining at position.
func (s *Service) Quote(pickup, dropoff types.Point, position int, surge float64) Quote {
	km := location.PointDistanceKm(pickup, dropoff)
	return Quote{
		DistanceKm: km,
		Position:   position,
		Surge:      surge,
		Discount:   Discount(position),
		Amount:     Price(km, s.rate.BaseFare, s.rate.RatePerKm, position, surge),
	}
}
