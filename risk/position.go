package risk

import (
	"errors"
	"fmt"
	"math"
)

var (
	ErrSizeTooSmall  = errors.New("size too small")
	ErrInvalidSizing = errors.New("invalid sizing input")
)

// Sizer computes fixed-fractional position sizes.
type Sizer struct {
	// MaxRiskFraction caps the risk fraction passed to Size.
	MaxRiskFraction float64
	// PointValue is the account-currency value of a one point move for
	// one contract. Zero is treated as 1.
	PointValue float64
	// MaxQuantity caps the result. Zero means no cap.
	MaxQuantity int
}

// Size returns floor(equity×risk / (|entry−stop|×pointValue)), reduced
// until the exposure fits inside the budget.
func (s Sizer) Size(equity, riskFraction, entry, stop float64) (int, error) {
	if equity <= 0 || riskFraction <= 0 || math.IsNaN(entry) || math.IsNaN(stop) {
		return 0, fmt.Errorf("%w: equity=%.2f risk=%.4f", ErrInvalidSizing, equity, riskFraction)
	}
	if s.MaxRiskFraction > 0 {
		riskFraction = min(riskFraction, s.MaxRiskFraction)
	}
	pv := s.PointValue
	if pv <= 0 {
		pv = 1
	}
	perUnit := math.Abs(entry-stop) * pv
	if perUnit == 0 {
		return 0, fmt.Errorf("%w: entry equals stop", ErrInvalidSizing)
	}

	budget := equity * riskFraction
	q := int(math.Floor(budget / perUnit))
	for q > 0 && float64(q)*perUnit > budget {
		q--
	}
	if s.MaxQuantity > 0 && q > s.MaxQuantity {
		q = s.MaxQuantity
	}
	if q < 1 {
		return 0, fmt.Errorf("%w: budget %.2f < %.2f per contract", ErrSizeTooSmall, budget, perUnit)
	}
	return q, nil
}

// Exposure is the loss if the stop is hit on qty contracts.
func (s Sizer) Exposure(qty int, entry, stop float64) float64 {
	pv := s.PointValue
	if pv <= 0 {
		pv = 1
	}
	return float64(qty) * (math.Abs(entry-stop) * pv)
}
