package sim

import (
	"time"

	"github.com/rustyeddy/meanrev/market"
)

// ExitReason says why a trade closed.
type ExitReason string

const (
	ExitStop      ExitReason = "stop"
	ExitTrailing  ExitReason = "trailing-stop"
	ExitTarget    ExitReason = "target"
	ExitScaleOut  ExitReason = "scale-out"
	ExitEndOfData ExitReason = "end-of-data"
	ExitManual    ExitReason = "manual"
)

// Trade is one exit event. A position that scales out produces two.
type Trade struct {
	ID         string
	PositionID string
	StrategyID string
	Direction  market.Direction

	EntryTime  time.Time
	EntryPrice float64
	ExitTime   time.Time
	ExitPrice  float64
	Quantity   int

	GrossPnL    float64
	Fees        float64
	Slippage    float64
	RealizedPnL float64
	// RMultiple is the gross per-unit result over the initial risk.
	RMultiple float64

	Reason ExitReason
	// Final is set on the exit that closes the position.
	Final bool
}

// Win reports whether the trade made money after costs.
func (t Trade) Win() bool { return t.RealizedPnL > 0 }

// Holding returns how long the traded quantity was held.
func (t Trade) Holding() time.Duration { return t.ExitTime.Sub(t.EntryTime) }
