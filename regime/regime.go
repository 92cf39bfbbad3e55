// Package regime labels market state from ADX and the Bollinger/Keltner
// squeeze, with hysteresis so single noisy bars cannot flip the label.
package regime

import (
	"fmt"
	"strings"

	"github.com/rustyeddy/meanrev/indicators"
)

// Label is a market-state classification.
type Label int

const (
	Transitional Label = iota
	Ranging
	Trending
)

var labelNames = map[Label]string{
	Transitional: "transitional",
	Ranging:      "ranging",
	Trending:     "trending",
}

func (l Label) String() string {
	if s, ok := labelNames[l]; ok {
		return s
	}
	return fmt.Sprintf("Label(%d)", int(l))
}

// ParseLabel is the inverse of String.
func ParseLabel(s string) (Label, error) {
	for l, name := range labelNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown regime %q", s)
}

// MarshalText lets labels key YAML maps.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *Label) UnmarshalText(b []byte) error {
	v, err := ParseLabel(string(b))
	if err != nil {
		return err
	}
	*l = v
	return nil
}

// Thresholds are the ADX cut-offs.
type Thresholds struct {
	Trending float64 `yaml:"trending" json:"trending" default:"30" validate:"gt=0,lte=100"`
	Ranging  float64 `yaml:"ranging" json:"ranging" default:"20" validate:"gte=0,lte=100"`
}

// Config configures a Classifier.
type Config struct {
	Thresholds `yaml:",inline" json:",inline"`
	Hysteresis int `yaml:"hysteresis" json:"hysteresis" default:"3" validate:"gte=1"`
}

func DefaultConfig() Config {
	return Config{Thresholds: Thresholds{Trending: 30, Ranging: 20}, Hysteresis: 3}
}

func (c Config) Validate() error {
	if c.Ranging >= c.Trending {
		return fmt.Errorf("regime.ranging (%.1f) must be below regime.trending (%.1f)", c.Ranging, c.Trending)
	}
	if c.Hysteresis < 1 {
		return fmt.Errorf("regime.hysteresis must be at least 1, got %d", c.Hysteresis)
	}
	return nil
}

// Derive classifies a single snapshot without hysteresis.
func Derive(s indicators.Snapshot, th Thresholds) (label Label, squeeze bool) {
	squeeze = s.Squeeze()
	switch {
	case s.ADX >= th.Trending:
		return Trending, squeeze
	case s.ADX <= th.Ranging && squeeze:
		return Ranging, squeeze
	default:
		return Transitional, squeeze
	}
}

// State is the classifier output for one bar. Label is the committed
// label; Candidate is the most recent raw label and Consecutive how many
// bars in a row it has been observed.
type State struct {
	Label       Label
	Squeeze     bool
	Candidate   Label
	Consecutive int
	ADX         float64
}

// Classifier commits a label change only after the new raw label has
// been seen on Hysteresis consecutive bars. It starts in Transitional.
type Classifier struct {
	cfg   Config
	state State
}

func NewClassifier(cfg Config) (*Classifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{cfg: cfg, state: State{Label: Transitional, Candidate: Transitional}}, nil
}

// State returns the last committed state.
func (c *Classifier) State() State { return c.state }

// Update folds one snapshot and returns the new state.
func (c *Classifier) Update(s indicators.Snapshot) State {
	raw, squeeze := Derive(s, c.cfg.Thresholds)

	st := c.state
	st.Squeeze = squeeze
	st.ADX = s.ADX
	if raw == st.Candidate {
		st.Consecutive++
	} else {
		st.Candidate = raw
		st.Consecutive = 1
	}
	if raw != st.Label && st.Consecutive >= c.cfg.Hysteresis {
		st.Label = raw
	}
	c.state = st
	return st
}

// Reset returns the classifier to its initial state.
func (c *Classifier) Reset() {
	c.state = State{Label: Transitional, Candidate: Transitional}
}

// MultiplierTable maps a committed label to a signal scaling factor in
// [0,1]. Each strategy carries its own table.
type MultiplierTable map[Label]float64

// MeanReversionTable is the default scaling for mean-reversion
// strategies: a squeezed ranging market is expected to break out.
func MeanReversionTable() MultiplierTable {
	return MultiplierTable{Trending: 1.0, Transitional: 0.5, Ranging: 0.0}
}

// TrendTable inverts MeanReversionTable for trend-following strategies
// that enter as price leaves a squeeze.
func TrendTable() MultiplierTable {
	return MultiplierTable{Trending: 0.0, Transitional: 0.5, Ranging: 1.0}
}

// Multiplier returns the factor for l; labels missing from the table
// scale to zero.
func (t MultiplierTable) Multiplier(l Label) float64 {
	v, ok := t[l]
	if !ok {
		return 0
	}
	return min(max(v, 0), 1)
}

// Validate rejects factors outside [0,1].
func (t MultiplierTable) Validate() error {
	for l, v := range t {
		if v < 0 || v > 1 {
			return fmt.Errorf("regime multiplier for %s must be in [0,1], got %.2f", l, v)
		}
	}
	return nil
}
