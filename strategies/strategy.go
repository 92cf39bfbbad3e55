// Package strategies turns a closed bar and its indicator snapshot into
// raw trade signals.
package strategies

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/meanrev/indicators"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/regime"
	"github.com/rustyeddy/meanrev/signals"
)

var ErrUnknownStrategy = errors.New("unknown strategy")

// Strategy is evaluated once per decision bar, after the indicators and
// the regime classifier have seen that bar. Evaluate returns nil when
// there is no trade.
type Strategy interface {
	ID() string
	// Window is the time of day the strategy may open positions.
	Window() market.TimeWindow
	// Multipliers scales the strategy's confidence per regime.
	Multipliers() regime.MultiplierTable
	Evaluate(b market.Bar, s indicators.Snapshot, r regime.State) *signals.Raw
	Reset()
}

// Config carries the settings shared by every strategy plus one block
// per implementation. Only the block for the selected strategy is read.
type Config struct {
	// ID names the strategy in signals and trades. Empty uses the
	// registry name.
	ID          string `yaml:"id" json:"id"`
	Timezone    string `yaml:"timezone" json:"timezone" default:"America/Chicago" validate:"required"`
	WindowStart string `yaml:"window_start" json:"window_start" default:"08:30" validate:"required"`
	WindowEnd   string `yaml:"window_end" json:"window_end" default:"15:00" validate:"required"`
	// Multipliers overrides the strategy's default regime table.
	Multipliers regime.MultiplierTable `yaml:"multipliers,omitempty" json:"multipliers,omitempty"`

	MeanReversion MeanReversionConfig `yaml:"mean_reversion" json:"mean_reversion"`
	EMACross      EMACrossConfig      `yaml:"ema_cross" json:"ema_cross"`
}

func DefaultConfig() Config {
	return Config{
		Timezone:      "America/Chicago",
		WindowStart:   "08:30",
		WindowEnd:     "15:00",
		MeanReversion: DefaultMeanReversionConfig(),
		EMACross:      DefaultEMACrossConfig(),
	}
}

// base holds what every strategy shares.
type base struct {
	id     string
	window market.TimeWindow
	loc    *time.Location
	table  regime.MultiplierTable
}

func newBase(id string, cfg Config, table regime.MultiplierTable) (base, error) {
	if cfg.ID != "" {
		id = cfg.ID
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return base{}, fmt.Errorf("strategy %s timezone: %w", id, err)
	}
	w, err := market.ParseWindow(cfg.WindowStart, cfg.WindowEnd)
	if err != nil {
		return base{}, fmt.Errorf("strategy %s window: %w", id, err)
	}
	if cfg.Multipliers != nil {
		if err := cfg.Multipliers.Validate(); err != nil {
			return base{}, fmt.Errorf("strategy %s: %w", id, err)
		}
		table = cfg.Multipliers
	}
	return base{id: id, window: w, loc: loc, table: table}, nil
}

func (b base) ID() string                          { return b.id }
func (b base) Window() market.TimeWindow           { return b.window }
func (b base) Multipliers() regime.MultiplierTable { return b.table }
func (b base) inWindow(t time.Time) bool           { return b.window.Contains(t, b.loc) }

// Factory builds a strategy from its configuration.
type Factory func(cfg Config) (Strategy, error)

var registry = map[string]Factory{
	MeanReversionName: func(cfg Config) (Strategy, error) { return NewMeanReversion(cfg) },
	EMACrossName:      func(cfg Config) (Strategy, error) { return NewEMACross(cfg) },
}

var aliases = map[string]string{
	"mr":       MeanReversionName,
	"emacross": EMACrossName,
}

// Register adds or replaces a factory. It is not safe to call
// concurrently with New.
func Register(name string, f Factory) {
	registry[normalize(name)] = f
}

func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "-", "_")
	if a, ok := aliases[n]; ok {
		return a
	}
	return n
}

// New builds the strategy registered under name.
func New(name string, cfg Config) (Strategy, error) {
	f, ok := registry[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w %q (supported: %s)", ErrUnknownStrategy, name, strings.Join(Names(), ", "))
	}
	return f(cfg)
}

// Names lists the registered strategies in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
