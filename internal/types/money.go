// README: Money helpers; fares are carried as float64 in currency units.
package types

import "math"

// RoundMoney rounds v to two decimal places. Exact half-cent ties go to
// the even cent.
func RoundMoney(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}
