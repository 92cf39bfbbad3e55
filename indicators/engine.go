package indicators

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/meanrev/market"
)

// EngineConfig holds indicator periods and multipliers.
type EngineConfig struct {
	BBPeriod     int     `yaml:"bb_period" json:"bb_period" default:"20" validate:"gte=2"`
	BBStdDev     float64 `yaml:"bb_stddev" json:"bb_stddev" default:"2" validate:"gt=0"`
	KCPeriod     int     `yaml:"kc_period" json:"kc_period" default:"20" validate:"gte=1"`
	KCMult       float64 `yaml:"kc_mult" json:"kc_mult" default:"1.5" validate:"gt=0"`
	ATRPeriod    int     `yaml:"atr_period" json:"atr_period" default:"14" validate:"gte=1"`
	RSIPeriod    int     `yaml:"rsi_period" json:"rsi_period" default:"14" validate:"gte=1"`
	EMAFast      int     `yaml:"ema_fast" json:"ema_fast" default:"9" validate:"gte=1"`
	EMASlow      int     `yaml:"ema_slow" json:"ema_slow" default:"21" validate:"gte=1"`
	ADXPeriod    int     `yaml:"adx_period" json:"adx_period" default:"14" validate:"gte=1"`
	VolumePeriod int     `yaml:"volume_period" json:"volume_period" default:"20" validate:"gte=1"`
}

// DefaultEngineConfig returns the standard periods.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BBPeriod:     20,
		BBStdDev:     2,
		KCPeriod:     20,
		KCMult:       1.5,
		ATRPeriod:    14,
		RSIPeriod:    14,
		EMAFast:      9,
		EMASlow:      21,
		ADXPeriod:    14,
		VolumePeriod: 20,
	}
}

// Validate reports the first failing check. Periods are checked in
// field order.
func (c EngineConfig) Validate() error {
	periods := []struct {
		name string
		v    int
	}{
		{"bb_period", c.BBPeriod},
		{"kc_period", c.KCPeriod},
		{"atr_period", c.ATRPeriod},
		{"rsi_period", c.RSIPeriod},
		{"ema_fast", c.EMAFast},
		{"ema_slow", c.EMASlow},
		{"adx_period", c.ADXPeriod},
		{"volume_period", c.VolumePeriod},
	}
	for _, p := range periods {
		if p.v < 1 {
			return fmt.Errorf("indicators.%s must be positive, got %d", p.name, p.v)
		}
	}
	if c.BBPeriod < 2 {
		return errors.New("indicators.bb_period must be at least 2")
	}
	if c.BBStdDev <= 0 || c.KCMult <= 0 {
		return errors.New("indicators.bb_stddev and indicators.kc_mult must be positive")
	}
	if c.EMAFast >= c.EMASlow {
		return fmt.Errorf("indicators.ema_fast (%d) must be less than ema_slow (%d)", c.EMAFast, c.EMASlow)
	}
	return nil
}

// Snapshot is the indicator state after one closed bar.
type Snapshot struct {
	Time time.Time

	VWAP float64

	BBUpper float64
	BBMid   float64
	BBLower float64

	KCUpper float64
	KCMid   float64
	KCLower float64

	RSI     float64
	ATR     float64
	EMAFast float64
	EMASlow float64

	ADX     float64
	PlusDI  float64
	MinusDI float64

	VolumeAvg float64
}

// BBWidth returns upper minus lower Bollinger band.
func (s Snapshot) BBWidth() float64 { return s.BBUpper - s.BBLower }

// KCWidth returns upper minus lower Keltner line.
func (s Snapshot) KCWidth() float64 { return s.KCUpper - s.KCLower }

// Squeeze reports whether the Bollinger Bands sit inside the Keltner
// Channel.
func (s Snapshot) Squeeze() bool { return s.BBWidth() <= s.KCWidth() }

// Engine owns one instance of every indicator for a single bar stream.
// Each Update is O(1) in the number of past bars.
type Engine struct {
	cfg EngineConfig

	vwap    *VWAP
	bb      *Bollinger
	kc      *Keltner
	rsi     *RSI
	atr     *ATR
	emaFast *ExponentialMA
	emaSlow *ExponentialMA
	adx     *ADX
	volume  *SimpleMA

	all  []Indicator
	bars int
}

func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		vwap:    NewVWAP(),
		bb:      NewBollinger(cfg.BBPeriod, cfg.BBStdDev),
		kc:      NewKeltner(cfg.KCPeriod, cfg.ATRPeriod, cfg.KCMult),
		rsi:     NewRSI(cfg.RSIPeriod),
		atr:     NewATR(cfg.ATRPeriod),
		emaFast: NewEMA(cfg.EMAFast),
		emaSlow: NewEMA(cfg.EMASlow),
		adx:     NewADX(cfg.ADXPeriod),
		volume:  NewVolumeMA(cfg.VolumePeriod),
	}
	e.all = []Indicator{e.vwap, e.bb, e.kc, e.rsi, e.atr, e.emaFast, e.emaSlow, e.adx, e.volume}
	return e, nil
}

// Warmup returns the number of bars before the first snapshot.
func (e *Engine) Warmup() int {
	n := 0
	for _, ind := range e.all {
		n = max(n, ind.Warmup())
	}
	return n
}

// Bars returns how many bars the engine has consumed since the last reset.
func (e *Engine) Bars() int { return e.bars }

func (e *Engine) Reset() {
	for _, ind := range e.all {
		ind.Reset()
	}
	e.bars = 0
}

// Update consumes a closed bar and returns its snapshot, or
// ErrInsufficientHistory while any indicator is still warming up.
func (e *Engine) Update(b market.Bar) (Snapshot, error) {
	for _, ind := range e.all {
		ind.Update(b)
	}
	e.bars++
	for _, ind := range e.all {
		if !ind.Ready() {
			return Snapshot{}, fmt.Errorf("%w: %s needs %d bars, have %d",
				ErrInsufficientHistory, ind.Name(), ind.Warmup(), e.bars)
		}
	}

	s := Snapshot{
		Time:      b.End,
		VWAP:      e.vwap.Value(),
		RSI:       e.rsi.Value(),
		ATR:       e.atr.Value(),
		EMAFast:   e.emaFast.Value(),
		EMASlow:   e.emaSlow.Value(),
		ADX:       e.adx.Value(),
		VolumeAvg: e.volume.Value(),
	}
	s.BBUpper, s.BBMid, s.BBLower = e.bb.Bands()
	s.KCUpper, s.KCMid, s.KCLower = e.kc.Bands()
	s.PlusDI, s.MinusDI = e.adx.DI()
	return s, nil
}
