// Package pipeline is the single decision path from input ticks to
// simulated orders. A Pipeline is driven by one goroutine; every stage
// of a bar settles before the next bar is touched.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/meanrev/indicators"
	"github.com/rustyeddy/meanrev/journal"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/metrics"
	"github.com/rustyeddy/meanrev/pkg/id"
	"github.com/rustyeddy/meanrev/pricing"
	"github.com/rustyeddy/meanrev/regime"
	"github.com/rustyeddy/meanrev/review"
	"github.com/rustyeddy/meanrev/risk"
	"github.com/rustyeddy/meanrev/signals"
	"github.com/rustyeddy/meanrev/sim"
	"github.com/rustyeddy/meanrev/strategies"
)

// ReviewSubmitter accepts review records without blocking.
type ReviewSubmitter interface {
	Submit(review.Record) (bool, error)
}

// Observer sees every committed trade and equity point. The backtest
// engine uses it to build its result.
type Observer interface {
	OnTrade(t sim.Trade)
	OnEquity(at time.Time, equity float64)
}

// Deps are the collaborators a pipeline writes to. Every field is
// optional.
type Deps struct {
	Log     zerolog.Logger
	Journal journal.Journal
	Review  ReviewSubmitter
	Metrics *metrics.Recorder
	News    *signals.NewsFilter
	// Limits, when set, is loaded by RestoreLimits and saved after every
	// bar that changed the daily limit state.
	Limits   risk.StateStore
	IDs      sim.IDSource
	Observer Observer
}

// Stats counts what happened to the bars and signals seen so far.
type Stats struct {
	Ticks         int
	Bars          int
	DecisionBars  int
	Warmup        int
	Signals       int
	BelowFloor    int
	Approved      int
	Rejected      map[risk.Reason]int
	Trades        int
	InputRejected int
}

type Pipeline struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	cal      *market.Calendar
	agg      *pricing.Aggregator
	bounds   *market.BoundaryTracker
	ind      *indicators.Engine
	cls      *regime.Classifier
	strat    strategies.Strategy
	scorer   *signals.Scorer
	limits   *risk.DailyLimits
	gate     *risk.Gate
	sim      *sim.Simulator
	recorder *journal.Recorder

	// atr is the last committed ATR, used to manage positions on the
	// following bar.
	atr       float64
	last      market.Bar
	haveLast  bool
	decisions map[string]risk.Decision
	stats     Stats
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cal, err := market.NewCalendar(cfg.Calendar)
	if err != nil {
		return nil, err
	}
	agg, err := pricing.NewAggregator(pricing.AggregatorConfig{Intervals: cfg.Intervals, Gaps: cfg.Gaps}, cal)
	if err != nil {
		return nil, err
	}
	ind, err := indicators.NewEngine(cfg.Indicators)
	if err != nil {
		return nil, err
	}
	cls, err := regime.NewClassifier(cfg.Regime)
	if err != nil {
		return nil, err
	}
	strat, err := strategies.New(cfg.Strategy, cfg.Strategies)
	if err != nil {
		return nil, err
	}
	scorer, err := signals.NewScorer(cfg.Scorer)
	if err != nil {
		return nil, err
	}
	if deps.IDs == nil {
		deps.IDs = id.NewSequence(cfg.IDSeed)
	}
	simulator, err := sim.NewSimulator(cfg.Sim, deps.IDs)
	if err != nil {
		return nil, err
	}

	log := deps.Log.With().Str("component", "pipeline").Str("run", cfg.RunID).Str("strategy", strat.ID()).Logger()
	limits := risk.NewDailyLimits()
	sizer := risk.Sizer{
		MaxRiskFraction: cfg.Policy.MaxRiskFraction,
		PointValue:      cfg.Sim.Instrument.PointValue,
		MaxQuantity:     cfg.MaxQuantity,
	}

	return &Pipeline{
		cfg:       cfg,
		deps:      deps,
		log:       log,
		cal:       cal,
		agg:       agg,
		bounds:    market.NewBoundaryTracker(cal),
		ind:       ind,
		cls:       cls,
		strat:     strat,
		scorer:    scorer,
		limits:    limits,
		gate:      risk.NewGate(cfg.Policy, cal, deps.News, limits, sizer, deps.Log),
		sim:       simulator,
		recorder:  journal.NewRecorder(deps.Journal, cfg.RunID, cfg.Sim.Instrument.Symbol, deps.Log),
		decisions: make(map[string]risk.Decision),
		stats:     Stats{Rejected: make(map[risk.Reason]int)},
	}, nil
}

// RestoreLimits loads the persisted daily limit state, if any.
func (p *Pipeline) RestoreLimits(ctx context.Context) error {
	if p.deps.Limits == nil {
		return nil
	}
	st, ok, err := p.deps.Limits.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore limits: %w", err)
	}
	if ok {
		p.limits.Restore(st)
		p.log.Info().
			Str("session", st.Session).
			Float64("realized_today", st.RealizedToday).
			Int("trades_today", st.TradesToday).
			Msg("daily limits restored")
	}
	return nil
}

// OnTick folds one input. Input errors are returned wrapped and leave
// the pipeline unchanged.
func (p *Pipeline) OnTick(ctx context.Context, t market.Tick) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	bars, err := p.agg.Add(t)
	if err != nil {
		p.stats.InputRejected++
		kind := "malformed"
		if errors.Is(err, pricing.ErrOutOfOrder) {
			kind = "out-of-order"
		}
		if p.deps.Metrics != nil {
			p.deps.Metrics.InputError(kind)
		}
		p.log.Warn().Err(err).Time("tick", t.Time).Msg("input rejected")
		return fmt.Errorf("tick %s: %w", t.Time.Format(time.RFC3339), err)
	}
	p.stats.Ticks++
	return p.onBars(ctx, bars)
}

// Flush closes the open bars, as at the end of a replay.
func (p *Pipeline) Flush(ctx context.Context) error {
	return p.onBars(ctx, p.agg.Flush())
}

func (p *Pipeline) onBars(ctx context.Context, bars []market.Bar) error {
	for _, b := range bars {
		p.stats.Bars++
		if p.deps.Metrics != nil {
			p.deps.Metrics.Bar(b.Interval.String())
		}
		if b.Interval != p.cfg.DecisionInterval {
			continue
		}
		if err := p.onDecisionBar(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) onDecisionBar(ctx context.Context, b market.Bar) error {
	p.stats.DecisionBars++
	before := p.limits.Snapshot()

	// 1. calendar boundaries
	for _, ev := range p.bounds.Observe(b) {
		p.limits.Apply(ev)
		p.log.Debug().Str("event", ev.Kind.String()).Str("session", ev.SessionID).Str("week", ev.Week).Msg("calendar boundary")
	}

	// 2. positions, independent of this bar's indicators
	fills := p.sim.Fills()
	trades, err := p.sim.OnBar(b, p.atr)
	for range p.sim.Fills() - fills {
		p.limits.RecordEntry()
	}
	if err != nil {
		return fmt.Errorf("simulate %s: %w", b.End.Format(time.RFC3339), err)
	}
	if err := p.commit(trades); err != nil {
		return err
	}
	p.last, p.haveLast = b, true

	if err := p.decide(b); err != nil {
		return err
	}
	return p.endOfBar(ctx, b, before)
}

// decide runs steps 3 to 8 for one bar.
func (p *Pipeline) decide(b market.Bar) error {
	// 3. indicators
	snap, err := p.ind.Update(b)
	if errors.Is(err, indicators.ErrInsufficientHistory) {
		p.stats.Warmup++
		return nil
	}
	if err != nil {
		return err
	}
	p.atr = snap.ATR

	// 4. regime
	st := p.cls.Update(snap)
	if p.deps.Metrics != nil {
		p.deps.Metrics.Regime(st.Label.String(), regimeLabels)
	}

	// 5. strategy
	raw := p.strat.Evaluate(b, snap, st)
	if raw == nil {
		return nil
	}
	p.stats.Signals++

	// 6. confluence and floor
	scored := p.scorer.Score(*raw, b, snap, p.strat.Multipliers().Multiplier(st.Label))
	actionable := p.scorer.Actionable(scored)
	if p.deps.Metrics != nil {
		p.deps.Metrics.Signal(raw.StrategyID, actionable)
	}
	if !actionable {
		p.stats.BelowFloor++
		p.log.Debug().
			Str("dir", raw.Direction.String()).
			Float64("confidence", scored.Confidence).
			Str("regime", st.Label.String()).
			Msg("signal below confidence floor")
		return nil
	}

	// 7. risk gate
	d := p.gate.Evaluate(risk.Input{
		Signal:        scored,
		Window:        p.strat.Window(),
		ATR:           snap.ATR,
		Equity:        p.sim.Equity(b.Close),
		OpenPositions: p.sim.ActiveCount(),
	})
	if p.deps.Metrics != nil {
		p.deps.Metrics.Decision(string(d.Reason))
	}
	if !d.Approved {
		p.stats.Rejected[d.Reason]++
		return nil
	}

	// 8. pending order for the next bar's open
	pos, err := p.sim.Submit(sim.OrderRequest{
		StrategyID: raw.StrategyID,
		Direction:  raw.Direction,
		Quantity:   d.Quantity,
		Stop:       d.Stop,
		Target:     d.Target,
		SignalTime: raw.Time,
	})
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	p.decisions[pos.ID] = d
	p.stats.Approved++
	return nil
}

var regimeLabels = []string{regime.Ranging.String(), regime.Transitional.String(), regime.Trending.String()}

// commit books trades into the limits, journal, metrics, review and
// observer, in that order.
func (p *Pipeline) commit(trades []sim.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	for _, t := range trades {
		p.limits.RecordTrade(t.RealizedPnL, t.ExitTime)
	}
	if _, err := p.recorder.Trades(trades); err != nil {
		return err
	}
	for _, t := range trades {
		p.stats.Trades++
		if p.deps.Metrics != nil {
			p.deps.Metrics.Trade(t.StrategyID, string(t.Reason), t.RealizedPnL, t.RMultiple)
		}
		if p.deps.Review != nil {
			if _, err := p.deps.Review.Submit(review.NewRecord(p.cfg.RunID, t, p.decisions[t.PositionID])); err != nil {
				p.log.Warn().Err(err).Str("trade", t.ID).Msg("review submit failed")
			}
		}
		if p.deps.Observer != nil {
			p.deps.Observer.OnTrade(t)
		}
		if t.Final {
			delete(p.decisions, t.PositionID)
		}
	}
	return nil
}

func (p *Pipeline) endOfBar(ctx context.Context, b market.Bar, before risk.DailyLimitState) error {
	equity := p.sim.Equity(b.Close)
	positions := p.sim.Positions()

	if err := p.recorder.Positions(b.End, b.Close, p.cfg.Sim.Instrument.PointValue, positions); err != nil {
		return err
	}
	if err := p.recorder.Equity(b.End, p.sim.Balance(), equity, len(positions)); err != nil {
		return err
	}
	if p.deps.Metrics != nil {
		p.deps.Metrics.Equity(equity)
		p.deps.Metrics.OpenPositions(len(positions))
	}
	if p.deps.Observer != nil {
		p.deps.Observer.OnEquity(b.End, equity)
	}
	if p.deps.Limits != nil {
		if st := p.limits.Snapshot(); st != before {
			if err := p.deps.Limits.Save(ctx, st); err != nil {
				p.log.Warn().Err(err).Msg("daily limits not saved")
			}
		}
	}
	return nil
}

// DiscardPending cancels orders whose fill bar never arrived.
func (p *Pipeline) DiscardPending() int {
	n := p.sim.CancelPending()
	if n > 0 {
		p.log.Info().Int("orders", n).Msg("pending orders discarded")
	}
	return n
}

// CloseOut exits every open position at the last decision bar's close
// and books the trades like any other exit. Pending orders are
// cancelled. With nothing open the last bar is not booked again.
func (p *Pipeline) CloseOut(ctx context.Context, reason sim.ExitReason) ([]sim.Trade, error) {
	if !p.haveLast {
		p.sim.CancelPending()
		return nil, nil
	}
	before := p.limits.Snapshot()
	trades, err := p.sim.CloseAll(p.last, reason)
	if err != nil {
		return trades, err
	}
	if len(trades) == 0 {
		return nil, nil
	}
	if err := p.commit(trades); err != nil {
		return trades, err
	}
	return trades, p.endOfBar(ctx, p.last, before)
}

// Stats returns a copy of the running counters.
func (p *Pipeline) Stats() Stats {
	st := p.stats
	st.Rejected = make(map[risk.Reason]int, len(p.stats.Rejected))
	for k, v := range p.stats.Rejected {
		st.Rejected[k] = v
	}
	return st
}

func (p *Pipeline) Simulator() *sim.Simulator { return p.sim }

func (p *Pipeline) Limits() risk.DailyLimitState { return p.limits.Snapshot() }

func (p *Pipeline) Strategy() strategies.Strategy { return p.strat }

// Close closes the journal. Review and metrics belong to the caller.
func (p *Pipeline) Close() error {
	return p.recorder.Close()
}
