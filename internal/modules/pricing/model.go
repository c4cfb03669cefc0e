// README: Pricing rate definition and surge bounds.
package pricing

const (
	MinSurge = 1.0
	MaxSurge = 3.0
)

// Rate is the fare card applied before surge and pooling discount.
type Rate struct {
	BaseFare  float64
	RatePerKm float64
}

// Quote is the outcome of pricing one passenger at a join position.
type Quote struct {
	DistanceKm float64
	Position   int
	Surge      float64
	Discount   float64
	Amount     float64
}
