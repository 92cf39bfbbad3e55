// Package signals holds the raw and scored trade signals, the confluence
// scorer, and the news blackout filter.
package signals

import (
	"fmt"
	"math"
	"time"

	"github.com/rustyeddy/meanrev/market"
)

// Raw is what a strategy emits for one bar. It is never modified after
// creation; scoring produces a new Scored value.
type Raw struct {
	Direction  market.Direction
	Entry      float64
	Stop       float64
	Target     float64
	StrategyID string
	Time       time.Time
	Reason     string
}

// Risk returns |entry-stop|.
func (r Raw) Risk() float64 { return math.Abs(r.Entry - r.Stop) }

// Reward returns |target-entry|.
func (r Raw) Reward() float64 { return math.Abs(r.Target - r.Entry) }

// RR returns reward over risk, or 0 with no risk.
func (r Raw) RR() float64 {
	if r.Risk() == 0 {
		return 0
	}
	return r.Reward() / r.Risk()
}

func (r Raw) String() string {
	return fmt.Sprintf("%s %s entry=%.2f stop=%.2f target=%.2f",
		r.StrategyID, r.Direction, r.Entry, r.Stop, r.Target)
}

// Factors are the individual confirmation scores, each in [0,1].
type Factors struct {
	BandDistance float64 `json:"band_distance"`
	RSIExtremity float64 `json:"rsi_extremity"`
	Regime       float64 `json:"regime"`
	Volume       float64 `json:"volume"`
}

// Scored is a Raw signal with its confluence and final confidence.
type Scored struct {
	Raw
	Factors          Factors
	Confluence       float64
	RegimeMultiplier float64
	Confidence       float64
}
