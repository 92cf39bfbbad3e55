// Package indicators provides streaming technical indicators and the
// engine that turns each closed bar into one Snapshot.
package indicators

import (
	"errors"

	"github.com/rustyeddy/meanrev/market"
)

// ErrInsufficientHistory means the warm-up window has not elapsed yet.
// It is a normal state, not a fault: callers skip the bar.
var ErrInsufficientHistory = errors.New("insufficient history")

// Indicator computes a single streaming value from bars.
// It is deterministic and safe to use in live, replay, and backtests.
type Indicator interface {
	// Name returns a stable identifier like "EMA(20)" or "RSI(14)".
	Name() string

	// Warmup returns how many updates are needed before Ready() can be true.
	Warmup() int

	// Reset clears all internal state.
	Reset()

	// Update consumes the next *closed* bar and updates internal state.
	Update(b market.Bar)

	// Ready reports whether Value() is meaningful (warmup completed).
	Ready() bool

	// Value returns the current indicator value, or 0 before Ready().
	Value() float64
}

// trueRange calculates the True Range for a bar given the previous bar.
func trueRange(current, previous market.Bar) float64 {
	highLow := current.High - current.Low
	highClose := abs(current.High - previous.Close)
	lowClose := abs(current.Low - previous.Close)
	return max(highLow, highClose, lowClose)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// wilder applies Wilder's smoothing: (prev*(n-1) + x) / n.
func wilder(prev, x float64, n int) float64 {
	return (prev*float64(n-1) + x) / float64(n)
}
