package pipeline

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rustyeddy/meanrev/indicators"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/pricing"
	"github.com/rustyeddy/meanrev/regime"
	"github.com/rustyeddy/meanrev/risk"
	"github.com/rustyeddy/meanrev/signals"
	"github.com/rustyeddy/meanrev/sim"
	"github.com/rustyeddy/meanrev/strategies"
)

// Config is everything one pipeline needs to build its stages.
type Config struct {
	RunID string

	Calendar market.CalendarConfig
	// Intervals are aggregated; only DecisionInterval bars drive
	// decisions, the others feed metrics and higher-timeframe context.
	Intervals        []time.Duration
	DecisionInterval time.Duration
	Gaps             pricing.GapPolicy

	Indicators indicators.EngineConfig
	Regime     regime.Config
	Strategy   string
	Strategies strategies.Config
	Scorer     signals.ScorerConfig
	Policy     risk.Policy
	// MaxQuantity caps the sizer; 0 means no cap.
	MaxQuantity int
	Sim         sim.Config
	// IDSeed seeds the position and trade ID sequence.
	IDSeed int64
}

// DefaultConfig trades mean reversion on 5 minute MES bars.
func DefaultConfig() Config {
	return Config{
		Calendar: market.CalendarConfig{
			Timezone:         "America/Chicago",
			SessionOpen:      "17:00",
			SessionClose:     "16:00",
			SkipOpenMinutes:  5,
			SkipCloseMinutes: 5,
		},
		Intervals:        []time.Duration{5 * time.Minute},
		DecisionInterval: 5 * time.Minute,
		Gaps:             pricing.GapSkip,
		Indicators:       indicators.DefaultEngineConfig(),
		Regime:           regime.DefaultConfig(),
		Strategy:         strategies.MeanReversionName,
		Strategies:       strategies.DefaultConfig(),
		Scorer:           signals.DefaultScorerConfig(),
		Policy:           risk.DefaultPolicy(),
		Sim:              sim.DefaultConfig(),
		IDSeed:           1,
	}
}

func (c Config) Validate() error {
	if c.DecisionInterval <= 0 {
		return errors.New("pipeline: decision interval must be positive")
	}
	if !slices.Contains(c.Intervals, c.DecisionInterval) {
		return fmt.Errorf("pipeline: decision interval %s is not aggregated (%v)", c.DecisionInterval, c.Intervals)
	}
	if c.MaxQuantity < 0 {
		return errors.New("pipeline: max quantity must not be negative")
	}
	for _, v := range []interface{ Validate() error }{c.Indicators, c.Regime, c.Scorer, c.Policy, c.Sim} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}
