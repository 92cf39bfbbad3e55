package strategies

import (
	"fmt"

	"github.com/rustyeddy/meanrev/indicators"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/regime"
	"github.com/rustyeddy/meanrev/signals"
)

const MeanReversionName = "mean_reversion"

// TargetMode picks the mean a reversion trade aims for.
type TargetMode string

const (
	TargetMid  TargetMode = "mid"
	TargetVWAP TargetMode = "vwap"
)

type MeanReversionConfig struct {
	RSIOversold   float64 `yaml:"rsi_oversold" json:"rsi_oversold" default:"30" validate:"gt=0,lt=50"`
	RSIOverbought float64 `yaml:"rsi_overbought" json:"rsi_overbought" default:"70" validate:"gt=50,lt=100"`
	// StopATRMult places the stop this many ATRs beyond the touched band.
	StopATRMult float64    `yaml:"stop_atr_mult" json:"stop_atr_mult" default:"1.5" validate:"gt=0"`
	Target      TargetMode `yaml:"target" json:"target" default:"mid" validate:"oneof=mid vwap"`
	// MinATR skips bars too quiet to pay for the round trip.
	MinATR float64 `yaml:"min_atr" json:"min_atr" default:"0.5" validate:"gte=0"`
	MinRR  float64 `yaml:"min_rr" json:"min_rr" default:"1" validate:"gte=0"`
	// TouchThreshold lets a close within this distance of the band count
	// as a touch.
	TouchThreshold float64 `yaml:"touch_threshold" json:"touch_threshold" default:"0" validate:"gte=0"`
	RequireKeltner bool    `yaml:"require_keltner" json:"require_keltner" default:"true"`
	// RequireVWAPAlignment takes longs only at or below the session VWAP
	// and shorts only at or above it.
	RequireVWAPAlignment bool `yaml:"require_vwap_alignment" json:"require_vwap_alignment" default:"false"`
}

func DefaultMeanReversionConfig() MeanReversionConfig {
	return MeanReversionConfig{
		RSIOversold:    30,
		RSIOverbought:  70,
		StopATRMult:    1.5,
		Target:         TargetMid,
		MinATR:         0.5,
		MinRR:          1,
		RequireKeltner: true,
	}
}

func (c MeanReversionConfig) Validate() error {
	if c.RSIOversold <= 0 || c.RSIOversold >= 50 {
		return fmt.Errorf("mean_reversion.rsi_oversold must be in (0,50), got %.1f", c.RSIOversold)
	}
	if c.RSIOverbought <= 50 || c.RSIOverbought >= 100 {
		return fmt.Errorf("mean_reversion.rsi_overbought must be in (50,100), got %.1f", c.RSIOverbought)
	}
	if c.StopATRMult <= 0 {
		return fmt.Errorf("mean_reversion.stop_atr_mult must be positive")
	}
	if c.Target != TargetMid && c.Target != TargetVWAP {
		return fmt.Errorf("mean_reversion.target must be mid or vwap, got %q", c.Target)
	}
	return nil
}

// MeanReversion fades closes at the outer Bollinger Band when RSI
// agrees and the close is still inside the Keltner Channel.
type MeanReversion struct {
	base
	cfg MeanReversionConfig
}

func NewMeanReversion(cfg Config) (*MeanReversion, error) {
	if err := cfg.MeanReversion.Validate(); err != nil {
		return nil, err
	}
	b, err := newBase(MeanReversionName, cfg, regime.MeanReversionTable())
	if err != nil {
		return nil, err
	}
	return &MeanReversion{base: b, cfg: cfg.MeanReversion}, nil
}

// Reset is a no-op; the strategy keeps no state between bars.
func (m *MeanReversion) Reset() {}

func (m *MeanReversion) Evaluate(b market.Bar, s indicators.Snapshot, _ regime.State) *signals.Raw {
	if !m.inWindow(b.End) || s.ATR < m.cfg.MinATR || s.ATR <= 0 {
		return nil
	}

	var raw signals.Raw
	switch {
	case m.longSetup(b, s):
		raw = signals.Raw{
			Direction: market.Long,
			Entry:     b.Close,
			Stop:      s.BBLower - m.cfg.StopATRMult*s.ATR,
			Target:    m.target(s),
			Reason:    fmt.Sprintf("BB lower touch (close=%.2f, bb_lower=%.2f) | RSI oversold (%.1f)", b.Close, s.BBLower, s.RSI),
		}
	case m.shortSetup(b, s):
		raw = signals.Raw{
			Direction: market.Short,
			Entry:     b.Close,
			Stop:      s.BBUpper + m.cfg.StopATRMult*s.ATR,
			Target:    m.target(s),
			Reason:    fmt.Sprintf("BB upper touch (close=%.2f, bb_upper=%.2f) | RSI overbought (%.1f)", b.Close, s.BBUpper, s.RSI),
		}
	default:
		return nil
	}

	sign := raw.Direction.Sign()
	if (raw.Entry-raw.Stop)*sign <= 0 || (raw.Target-raw.Entry)*sign <= 0 {
		return nil
	}
	if raw.RR() < m.cfg.MinRR {
		return nil
	}
	raw.StrategyID = m.id
	raw.Time = b.End
	return &raw
}

func (m *MeanReversion) longSetup(b market.Bar, s indicators.Snapshot) bool {
	return b.Close <= s.BBLower+m.cfg.TouchThreshold &&
		s.RSI <= m.cfg.RSIOversold &&
		(!m.cfg.RequireKeltner || b.Close > s.KCLower) &&
		(!m.vwapGate(s) || b.Close <= s.VWAP)
}

func (m *MeanReversion) shortSetup(b market.Bar, s indicators.Snapshot) bool {
	return b.Close >= s.BBUpper-m.cfg.TouchThreshold &&
		s.RSI >= m.cfg.RSIOverbought &&
		(!m.cfg.RequireKeltner || b.Close < s.KCUpper) &&
		(!m.vwapGate(s) || b.Close >= s.VWAP)
}

// vwapGate reports whether the VWAP side filter applies. It is skipped
// until the session has a VWAP.
func (m *MeanReversion) vwapGate(s indicators.Snapshot) bool {
	return m.cfg.RequireVWAPAlignment && s.VWAP > 0
}

func (m *MeanReversion) target(s indicators.Snapshot) float64 {
	if m.cfg.Target == TargetVWAP && s.VWAP > 0 {
		return s.VWAP
	}
	return s.BBMid
}
