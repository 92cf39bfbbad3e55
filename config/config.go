// Package config loads the YAML document that drives every command.
// Defaults come from struct tags, structural checks from validate tags,
// and cross-field rules from each component's Validate.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/meanrev/backtest"
	"github.com/rustyeddy/meanrev/feed"
	"github.com/rustyeddy/meanrev/indicators"
	"github.com/rustyeddy/meanrev/internal/logging"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/pipeline"
	"github.com/rustyeddy/meanrev/pricing"
	"github.com/rustyeddy/meanrev/regime"
	"github.com/rustyeddy/meanrev/review"
	"github.com/rustyeddy/meanrev/risk"
	"github.com/rustyeddy/meanrev/signals"
	"github.com/rustyeddy/meanrev/sim"
	"github.com/rustyeddy/meanrev/strategies"
)

type Config struct {
	Account     AccountConfig           `yaml:"account" json:"account"`
	Market      MarketConfig            `yaml:"market" json:"market"`
	Indicators  indicators.EngineConfig `yaml:"indicators" json:"indicators"`
	Regime      regime.Config           `yaml:"regime" json:"regime"`
	Strategy    StrategyConfig          `yaml:"strategy" json:"strategy"`
	Scorer      signals.ScorerConfig    `yaml:"scorer" json:"scorer"`
	Risk        RiskConfig              `yaml:"risk" json:"risk"`
	Sim         sim.Config              `yaml:"sim" json:"sim"`
	News        NewsConfig              `yaml:"news" json:"news"`
	Data        DataConfig              `yaml:"data" json:"data"`
	Journal     JournalConfig           `yaml:"journal" json:"journal"`
	Limits      LimitsConfig            `yaml:"limits" json:"limits"`
	Review      ReviewConfig            `yaml:"review" json:"review"`
	Health      HealthConfig            `yaml:"health" json:"health"`
	Log         logging.Config          `yaml:"log" json:"log"`
	Backtest    BacktestConfig          `yaml:"backtest" json:"backtest"`
	WalkForward WalkForwardConfig       `yaml:"walk_forward" json:"walk_forward"`
}

// AccountConfig names the account whose daily limits are persisted.
type AccountConfig struct {
	ID string `yaml:"id" json:"id" default:"SIM-001" validate:"required"`
}

type MarketConfig struct {
	Calendar market.CalendarConfig `yaml:"calendar" json:"calendar"`
	// Intervals to aggregate. The decision interval is always included.
	Intervals        []time.Duration   `yaml:"intervals,omitempty" json:"intervals,omitempty"`
	DecisionInterval time.Duration     `yaml:"decision_interval" json:"decision_interval" default:"5m" validate:"gt=0"`
	Gaps             pricing.GapPolicy `yaml:"gaps" json:"gaps" default:"skip" validate:"oneof=skip flat"`
	IDSeed           int64             `yaml:"id_seed" json:"id_seed" default:"1"`
}

type StrategyConfig struct {
	Name              string `yaml:"name" json:"name" default:"mean_reversion" validate:"required"`
	strategies.Config `yaml:",inline" json:",inline"`
}

type RiskConfig struct {
	risk.Policy `yaml:",inline" json:",inline"`
	// MaxQuantity caps the sizer; 0 means no cap.
	MaxQuantity int `yaml:"max_quantity" json:"max_quantity" default:"0" validate:"gte=0"`
}

type NewsConfig struct {
	// File is a YAML economic calendar merged with Events.
	File    string                                `yaml:"file,omitempty" json:"file,omitempty"`
	Buffers map[signals.EventClass]signals.Buffer `yaml:"buffers,omitempty" json:"buffers,omitempty"`
	Events  []signals.Event                       `yaml:"events,omitempty" json:"events,omitempty"`
}

type DataConfig struct {
	Source     string                `yaml:"source" json:"source" default:"csv" validate:"oneof=csv clickhouse dukascopy"`
	Path       string                `yaml:"path,omitempty" json:"path,omitempty"`
	ClickHouse feed.ClickHouseConfig `yaml:"clickhouse" json:"clickhouse"`
	Dukascopy  feed.DukascopyConfig  `yaml:"dukascopy" json:"dukascopy"`
}

type JournalConfig struct {
	Type   string `yaml:"type" json:"type" default:"sqlite" validate:"oneof=none csv sqlite"`
	Dir    string `yaml:"dir" json:"dir" default:"./out"`
	DBPath string `yaml:"db_path" json:"db_path" default:"./meanrev.db"`
}

type LimitsConfig struct {
	Store     string        `yaml:"store" json:"store" default:"none" validate:"oneof=none sqlite redis"`
	RedisAddr string        `yaml:"redis_addr" json:"redis_addr" default:"localhost:6379"`
	Prefix    string        `yaml:"prefix" json:"prefix" default:"meanrev"`
	TTL       time.Duration `yaml:"ttl" json:"ttl" default:"192h" validate:"gte=0"`
}

type ReviewConfig struct {
	Enabled            bool `yaml:"enabled" json:"enabled"`
	review.KafkaConfig `yaml:",inline" json:",inline"`
	Dispatcher         review.DispatcherConfig `yaml:"dispatcher" json:"dispatcher"`
}

type HealthConfig struct {
	Addr string `yaml:"addr" json:"addr" default:":9090"`
}

type BacktestConfig struct {
	Name       string `yaml:"name" json:"name" default:"default" validate:"required"`
	CloseAtEnd bool   `yaml:"close_at_end" json:"close_at_end" default:"true"`
	Parallel   int    `yaml:"parallel" json:"parallel" default:"4" validate:"gte=1"`
}

type WalkForwardConfig struct {
	InSample    time.Duration `yaml:"in_sample" json:"in_sample" default:"720h" validate:"gt=0"`
	OutOfSample time.Duration `yaml:"out_of_sample" json:"out_of_sample" default:"168h" validate:"gt=0"`
	Step        time.Duration `yaml:"step" json:"step" default:"168h" validate:"gt=0"`
	Grid        []ParamSet    `yaml:"grid,omitempty" json:"grid,omitempty" validate:"dive"`
}

// ParamSet overrides a handful of knobs for one grid point. Nil fields
// keep the base value.
type ParamSet struct {
	Name          string   `yaml:"name" json:"name" validate:"required"`
	Floor         *float64 `yaml:"floor,omitempty" json:"floor,omitempty"`
	RiskFraction  *float64 `yaml:"risk_fraction,omitempty" json:"risk_fraction,omitempty"`
	RSIOversold   *float64 `yaml:"rsi_oversold,omitempty" json:"rsi_oversold,omitempty"`
	RSIOverbought *float64 `yaml:"rsi_overbought,omitempty" json:"rsi_overbought,omitempty"`
	StopATRMult   *float64 `yaml:"stop_atr_mult,omitempty" json:"stop_atr_mult,omitempty"`
}

// Apply returns base with the set's overrides.
func (p ParamSet) Apply(base backtest.Config) backtest.Config {
	c := base
	c.Name = p.Name
	c.Pipeline.RunID = ""
	if p.Floor != nil {
		c.Pipeline.Scorer.Floor = *p.Floor
	}
	if p.RiskFraction != nil {
		c.Pipeline.Policy.RiskFraction = *p.RiskFraction
	}
	if p.RSIOversold != nil {
		c.Pipeline.Strategies.MeanReversion.RSIOversold = *p.RSIOversold
	}
	if p.RSIOverbought != nil {
		c.Pipeline.Strategies.MeanReversion.RSIOverbought = *p.RSIOverbought
	}
	if p.StopATRMult != nil {
		c.Pipeline.Strategies.MeanReversion.StopATRMult = *p.StopATRMult
		c.Pipeline.Strategies.EMACross.StopATRMult = *p.StopATRMult
	}
	return c
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	cfg.normalize()
	return cfg
}

// Parse decodes YAML, falling back to JSON, over the defaults. It does
// not validate.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	cfg.normalize()
	return cfg, nil
}

// Load reads, parses and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml and .yml paths and indented JSON
// otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (c *Config) normalize() {
	if !slices.Contains(c.Market.Intervals, c.Market.DecisionInterval) {
		c.Market.Intervals = append(c.Market.Intervals, c.Market.DecisionInterval)
	}
	slices.Sort(c.Market.Intervals)
	c.Market.Intervals = slices.Compact(c.Market.Intervals)
}

// Validate runs the tag rules and then every component's own checks.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	if _, err := strategies.New(c.Strategy.Name, c.Strategy.Config); err != nil {
		return err
	}
	if err := c.Strategy.Multipliers.Validate(); err != nil {
		return err
	}
	if c.Data.Source == "clickhouse" && c.Data.ClickHouse.DSN == "" {
		return errors.New("data.clickhouse.dsn is required for the clickhouse source")
	}
	if c.Data.Source == "dukascopy" && c.Data.Dukascopy.PointScale <= 0 {
		return errors.New("data.dukascopy.point_scale must be positive")
	}
	if c.Review.Enabled && len(c.Review.Brokers) == 0 {
		return errors.New("review.brokers is required when review is enabled")
	}
	return c.Pipeline().Validate()
}

func fieldMessage(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, fe.Param())
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, fe.Tag())
	}
}

func (c *Config) Policy() risk.Policy { return c.Risk.Policy }

// Pipeline derives the pipeline configuration.
func (c *Config) Pipeline() pipeline.Config {
	return pipeline.Config{
		Calendar:         c.Market.Calendar,
		Intervals:        slices.Clone(c.Market.Intervals),
		DecisionInterval: c.Market.DecisionInterval,
		Gaps:             c.Market.Gaps,
		Indicators:       c.Indicators,
		Regime:           c.Regime,
		Strategy:         c.Strategy.Name,
		Strategies:       c.Strategy.Config,
		Scorer:           c.Scorer,
		Policy:           c.Risk.Policy,
		MaxQuantity:      c.Risk.MaxQuantity,
		Sim:              c.Sim,
		IDSeed:           c.Market.IDSeed,
	}
}

// Engine derives the backtest configuration.
func (c *Config) Engine() backtest.Config {
	return backtest.Config{
		Name:       c.Backtest.Name,
		Pipeline:   c.Pipeline(),
		CloseAtEnd: c.Backtest.CloseAtEnd,
	}
}

// ParamSets expands the walk-forward grid over the backtest
// configuration. An empty grid yields the base set alone.
func (c *Config) ParamSets() []backtest.Config {
	base := c.Engine()
	if len(c.WalkForward.Grid) == 0 {
		return []backtest.Config{base}
	}
	out := make([]backtest.Config, 0, len(c.WalkForward.Grid))
	for _, p := range c.WalkForward.Grid {
		out = append(out, p.Apply(base))
	}
	return out
}

// NewsFilter builds the blackout filter from the inline events and the
// optional events file.
func (c *Config) NewsFilter() (*signals.NewsFilter, error) {
	events := slices.Clone(c.News.Events)
	if c.News.File != "" {
		f, err := os.Open(c.News.File)
		if err != nil {
			return nil, fmt.Errorf("read news file: %w", err)
		}
		defer f.Close()
		more, err := signals.LoadEvents(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.News.File, err)
		}
		events = append(events, more...)
	}
	buffers := signals.DefaultBuffers()
	for k, v := range c.News.Buffers {
		buffers[k] = v
	}
	return signals.NewNewsFilter(buffers, events), nil
}
