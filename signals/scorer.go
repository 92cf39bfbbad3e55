package signals

import (
	"fmt"

	"github.com/rustyeddy/meanrev/indicators"
	"github.com/rustyeddy/meanrev/market"
)

// Weights for the confluence factors. They need not sum to one; the
// weighted sum is clamped to [0,1].
type Weights struct {
	BandDistance float64 `yaml:"band_distance" json:"band_distance" default:"0.3" validate:"gte=0"`
	RSIExtremity float64 `yaml:"rsi_extremity" json:"rsi_extremity" default:"0.3" validate:"gte=0"`
	Regime       float64 `yaml:"regime" json:"regime" default:"0.2" validate:"gte=0"`
	Volume       float64 `yaml:"volume" json:"volume" default:"0.2" validate:"gte=0"`
}

func DefaultWeights() Weights {
	return Weights{BandDistance: 0.3, RSIExtremity: 0.3, Regime: 0.2, Volume: 0.2}
}

// ScorerConfig configures a Scorer.
type ScorerConfig struct {
	Weights Weights `yaml:"weights" json:"weights"`
	// Floor is the minimum final confidence for a signal to be actionable.
	Floor float64 `yaml:"floor" json:"floor" default:"0.25" validate:"gte=0,lte=1"`
	// VolumeRatio is the bar volume, as a multiple of its average, that
	// scores full volume confirmation.
	VolumeRatio float64 `yaml:"volume_ratio" json:"volume_ratio" default:"1" validate:"gt=0"`
}

func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{Weights: DefaultWeights(), Floor: 0.25, VolumeRatio: 1}
}

func (c ScorerConfig) Validate() error {
	w := c.Weights
	if w.BandDistance < 0 || w.RSIExtremity < 0 || w.Regime < 0 || w.Volume < 0 {
		return fmt.Errorf("scorer weights must be non-negative")
	}
	if w.BandDistance+w.RSIExtremity+w.Regime+w.Volume == 0 {
		return fmt.Errorf("scorer weights must not all be zero")
	}
	if c.Floor < 0 || c.Floor > 1 {
		return fmt.Errorf("scorer.floor must be in [0,1], got %.2f", c.Floor)
	}
	if c.VolumeRatio <= 0 {
		return fmt.Errorf("scorer.volume_ratio must be positive")
	}
	return nil
}

// Scorer turns a raw signal into a scored one.
type Scorer struct {
	cfg ScorerConfig
}

func NewScorer(cfg ScorerConfig) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg}, nil
}

// Floor returns the actionability threshold.
func (s *Scorer) Floor() float64 { return s.cfg.Floor }

// Score computes the confluence of raw against the bar and snapshot.
// The regime multiplier contributes as a factor and also scales the
// final confidence, so a zero multiplier always yields zero confidence.
func (s *Scorer) Score(raw Raw, b market.Bar, snap indicators.Snapshot, multiplier float64) Scored {
	mult := clamp01(multiplier)
	f := Factors{
		BandDistance: bandFactor(raw, snap),
		RSIExtremity: rsiFactor(raw.Direction, snap.RSI),
		Regime:       mult,
		Volume:       s.volumeFactor(b, snap),
	}
	w := s.cfg.Weights
	confluence := clamp01(w.BandDistance*f.BandDistance +
		w.RSIExtremity*f.RSIExtremity +
		w.Regime*f.Regime +
		w.Volume*f.Volume)

	return Scored{
		Raw:              raw,
		Factors:          f,
		Confluence:       confluence,
		RegimeMultiplier: mult,
		Confidence:       confluence * mult,
	}
}

// Actionable reports whether sc clears the floor.
func (s *Scorer) Actionable(sc Scored) bool {
	return sc.Confidence > 0 && sc.Confidence >= s.cfg.Floor
}

// bandFactor is 0.5 for a close exactly on the outer band, rising by 0.5
// per ATR of penetration beyond it.
func bandFactor(raw Raw, snap indicators.Snapshot) float64 {
	if snap.ATR <= 0 {
		return 0
	}
	var pen float64
	switch raw.Direction {
	case market.Long:
		pen = (snap.BBLower - raw.Entry) / snap.ATR
	case market.Short:
		pen = (raw.Entry - snap.BBUpper) / snap.ATR
	}
	return clamp01(0.5 + 0.5*pen)
}

// rsiFactor is the distance of RSI from 50 toward the signal's side.
func rsiFactor(d market.Direction, rsi float64) float64 {
	switch d {
	case market.Long:
		return clamp01((50 - rsi) / 50)
	case market.Short:
		return clamp01((rsi - 50) / 50)
	}
	return 0
}

func (s *Scorer) volumeFactor(b market.Bar, snap indicators.Snapshot) float64 {
	want := snap.VolumeAvg * s.cfg.VolumeRatio
	if want <= 0 {
		return 0
	}
	return clamp01(b.Volume / want)
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
