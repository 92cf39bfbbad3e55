// Package backtest replays history through the same pipeline used live,
// with fills strictly at the next bar's open.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/meanrev/feed"
	"github.com/rustyeddy/meanrev/journal"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/metrics"
	"github.com/rustyeddy/meanrev/pipeline"
	"github.com/rustyeddy/meanrev/pkg/id"
	"github.com/rustyeddy/meanrev/signals"
	"github.com/rustyeddy/meanrev/sim"
)

// ErrNoData is returned when a run sees no input at all.
var ErrNoData = errors.New("backtest: no input")

type Config struct {
	// Name labels the parameter set in reports.
	Name     string
	Pipeline pipeline.Config
	// CloseAtEnd exits open positions at the last close. Pending
	// orders are always discarded.
	CloseAtEnd bool
}

func DefaultConfig() Config {
	return Config{Name: "default", Pipeline: pipeline.DefaultConfig(), CloseAtEnd: true}
}

// EquityPoint is the marked equity after one decision bar.
type EquityPoint struct {
	Time   time.Time
	Equity float64
}

type Result struct {
	RunID      string
	Config     Config
	StartedAt  time.Time
	FinishedAt time.Time
	// Start and End bound the input that was replayed.
	Start time.Time
	End   time.Time

	Trades    []sim.Trade
	Equity    []EquityPoint
	Summary   Summary
	Stats     pipeline.Stats
	Discarded int
}

// Engine runs one parameter set. Journal, metrics and news are optional
// and are only attached to single runs.
type Engine struct {
	cfg Config
	log zerolog.Logger

	Journal journal.Journal
	Metrics *metrics.Recorder
	News    *signals.NewsFilter
	Review  pipeline.ReviewSubmitter
}

func NewEngine(cfg Config, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, log: log.With().Str("component", "backtest").Str("set", cfg.Name).Logger()}
}

type collector struct {
	trades []sim.Trade
	equity []EquityPoint
}

func (c *collector) OnTrade(t sim.Trade) { c.trades = append(c.trades, t) }

func (c *collector) OnEquity(at time.Time, v float64) {
	c.equity = append(c.equity, EquityPoint{Time: at, Equity: v})
}

// Run replays ticks through a freshly built pipeline.
func (e *Engine) Run(ctx context.Context, ticks []market.Tick) (*Result, error) {
	return e.RunFeed(ctx, feed.NewSliceFeed(ticks))
}

// RunFeed replays f to EOF. Replays are not cancellable mid-bar; ctx is
// checked between ticks.
func (e *Engine) RunFeed(ctx context.Context, f feed.TickFeed) (*Result, error) {
	defer f.Close()

	cfg := e.cfg
	if cfg.Pipeline.RunID == "" {
		cfg.Pipeline.RunID = id.New()
	}
	res := &Result{RunID: cfg.Pipeline.RunID, Config: cfg, StartedAt: time.Now().UTC()}

	var j journal.Journal
	if e.Journal != nil {
		j = journal.NopCloser(e.Journal)
	}
	col := &collector{}
	p, err := pipeline.New(cfg.Pipeline, pipeline.Deps{
		Log:      e.log,
		Journal:  j,
		Review:   e.Review,
		Metrics:  e.Metrics,
		News:     e.News,
		Observer: col,
	})
	if err != nil {
		return nil, err
	}
	defer p.Close()

	n := 0
	for {
		t, ok, err := f.Next()
		if err != nil {
			return nil, fmt.Errorf("backtest feed: %w", err)
		}
		if !ok {
			break
		}
		if n == 0 {
			res.Start = t.Time
		}
		res.End = t.Time
		n++
		if err := p.OnTick(ctx, t); err != nil {
			return nil, err
		}
	}
	if n == 0 {
		return nil, ErrNoData
	}
	if err := p.Flush(ctx); err != nil {
		return nil, err
	}

	res.Discarded = p.DiscardPending()
	if cfg.CloseAtEnd {
		if _, err := p.CloseOut(ctx, sim.ExitEndOfData); err != nil {
			return nil, err
		}
	}

	res.Trades = col.trades
	res.Equity = col.equity
	res.Stats = p.Stats()
	res.Summary = Summarize(col.trades, col.equity, cfg.Pipeline.Sim.StartingBalance)
	res.FinishedAt = time.Now().UTC()

	e.log.Info().
		Str("run", res.RunID).
		Int("ticks", n).
		Int("trades", res.Summary.Trades).
		Float64("net_pnl", res.Summary.NetPnL).
		Float64("sharpe", res.Summary.Sharpe).
		Float64("max_dd", res.Summary.MaxDrawdown).
		Int("discarded", res.Discarded).
		Msg("backtest complete")
	return res, nil
}
