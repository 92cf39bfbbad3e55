package strategies

import (
	"fmt"

	"github.com/rustyeddy/meanrev/indicators"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/regime"
	"github.com/rustyeddy/meanrev/signals"
)

const EMACrossName = "ema_cross"

type EMACrossConfig struct {
	StopATRMult float64 `yaml:"stop_atr_mult" json:"stop_atr_mult" default:"2" validate:"gt=0"`
	// RR is the take-profit distance as a multiple of the stop distance.
	RR     float64 `yaml:"rr" json:"rr" default:"2" validate:"gt=0"`
	MinATR float64 `yaml:"min_atr" json:"min_atr" default:"0.5" validate:"gte=0"`
	// MinADX requires trend strength on the cross bar. Zero disables it.
	MinADX float64 `yaml:"min_adx" json:"min_adx" default:"0" validate:"gte=0"`
}

func DefaultEMACrossConfig() EMACrossConfig {
	return EMACrossConfig{StopATRMult: 2, RR: 2, MinATR: 0.5}
}

func (c EMACrossConfig) Validate() error {
	if c.StopATRMult <= 0 {
		return fmt.Errorf("ema_cross.stop_atr_mult must be positive")
	}
	if c.RR <= 0 {
		return fmt.Errorf("ema_cross.rr must be positive")
	}
	return nil
}

// EMACross enters on a fast/slow EMA cross when the directional
// indicators agree with the cross. It breaks out of quiet markets, so
// its regime table favours ranging over trending.
type EMACross struct {
	base
	cfg EMACrossConfig

	lastDiff     float64
	haveLastDiff bool
}

func NewEMACross(cfg Config) (*EMACross, error) {
	if err := cfg.EMACross.Validate(); err != nil {
		return nil, err
	}
	b, err := newBase(EMACrossName, cfg, regime.TrendTable())
	if err != nil {
		return nil, err
	}
	return &EMACross{base: b, cfg: cfg.EMACross}, nil
}

func (e *EMACross) Reset() {
	e.lastDiff = 0
	e.haveLastDiff = false
}

func (e *EMACross) Evaluate(b market.Bar, s indicators.Snapshot, _ regime.State) *signals.Raw {
	diff := s.EMAFast - s.EMASlow

	// Need a previous diff to detect a cross.
	if !e.haveLastDiff {
		e.lastDiff = diff
		e.haveLastDiff = true
		return nil
	}
	bullCross := diff > 0 && e.lastDiff <= 0
	bearCross := diff < 0 && e.lastDiff >= 0
	e.lastDiff = diff

	if !e.inWindow(b.End) || s.ATR < e.cfg.MinATR || s.ATR <= 0 || s.ADX < e.cfg.MinADX {
		return nil
	}

	var dir market.Direction
	switch {
	case bullCross && s.PlusDI > s.MinusDI:
		dir = market.Long
	case bearCross && s.MinusDI > s.PlusDI:
		dir = market.Short
	default:
		return nil
	}

	risk := e.cfg.StopATRMult * s.ATR
	sign := dir.Sign()
	return &signals.Raw{
		Direction:  dir,
		Entry:      b.Close,
		Stop:       b.Close - sign*risk,
		Target:     b.Close + sign*e.cfg.RR*risk,
		StrategyID: e.id,
		Time:       b.End,
		Reason:     fmt.Sprintf("EMA cross %s (fast=%.2f, slow=%.2f, adx=%.1f)", dir, s.EMAFast, s.EMASlow, s.ADX),
	}
}
