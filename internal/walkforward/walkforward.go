// Package walkforward optimizes on rolling in-sample windows and scores
// the chosen parameter set on the out-of-sample window that follows.
package walkforward

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/meanrev/backtest"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/signals"
	"github.com/rustyeddy/meanrev/sim"
)

var (
	ErrBadWindow = errors.New("walkforward: windows must be positive")
	ErrNoFolds   = errors.New("walkforward: not enough data for one fold")
)

// Fold is one in-sample window and the out-of-sample window after it.
type Fold struct {
	Index       int
	ISStart     time.Time
	OOSStart    time.Time
	OOSEnd      time.Time
	InSample    []market.Tick
	OutOfSample []market.Tick
}

// Split cuts time-ordered ticks into folds. Windows start at the first
// tick and advance by step; a fold whose out-of-sample window runs past
// the last tick is dropped.
func Split(ticks []market.Tick, inSample, outOfSample, step time.Duration) ([]Fold, error) {
	if inSample <= 0 || outOfSample <= 0 || step <= 0 {
		return nil, ErrBadWindow
	}
	if len(ticks) == 0 {
		return nil, ErrNoFolds
	}
	index := func(t time.Time) int {
		return sort.Search(len(ticks), func(i int) bool { return !ticks[i].Time.Before(t) })
	}
	end := ticks[len(ticks)-1].Time
	var folds []Fold
	for s := ticks[0].Time; !s.Add(inSample + outOfSample).After(end); s = s.Add(step) {
		mid := s.Add(inSample)
		stop := mid.Add(outOfSample)
		a, b, c := index(s), index(mid), index(stop)
		if a == b || b == c {
			continue
		}
		folds = append(folds, Fold{
			Index:       len(folds),
			ISStart:     s,
			OOSStart:    mid,
			OOSEnd:      stop,
			InSample:    ticks[a:b],
			OutOfSample: ticks[b:c],
		})
	}
	if len(folds) == 0 {
		return nil, ErrNoFolds
	}
	return folds, nil
}

type FoldResult struct {
	Fold        Fold
	InSample    []*backtest.Result
	Chosen      string
	OutOfSample *backtest.Result
}

type Runner struct {
	Sets     []backtest.Config
	Parallel int
	News     *signals.NewsFilter
	Log      zerolog.Logger
}

// Run evaluates every fold in order.
func (r *Runner) Run(ctx context.Context, folds []Fold) ([]FoldResult, error) {
	if len(r.Sets) == 0 {
		return nil, errors.New("walkforward: no parameter sets")
	}
	log := r.Log.With().Str("component", "walkforward").Logger()
	out := make([]FoldResult, 0, len(folds))
	for _, f := range folds {
		is, err := backtest.RunMany(ctx, f.InSample, r.Sets, r.Parallel, r.News, r.Log)
		if err != nil {
			return nil, fmt.Errorf("fold %d in-sample: %w", f.Index, err)
		}
		best := backtest.Best(is)
		e := backtest.NewEngine(best.Config, r.Log)
		e.News = r.News
		oos, err := e.Run(ctx, f.OutOfSample)
		if err != nil {
			return nil, fmt.Errorf("fold %d out-of-sample: %w", f.Index, err)
		}
		log.Info().
			Int("fold", f.Index).
			Str("chosen", best.Config.Name).
			Float64("is_sharpe", best.Summary.Sharpe).
			Float64("oos_sharpe", oos.Summary.Sharpe).
			Float64("oos_pnl", oos.Summary.NetPnL).
			Msg("fold complete")
		out = append(out, FoldResult{Fold: f, InSample: is, Chosen: best.Config.Name, OutOfSample: oos})
	}
	return out, nil
}

// Aggregate summarizes the out-of-sample runs as one account: each
// fold's equity curve is shifted by the P&L of the folds before it.
func Aggregate(results []FoldResult, starting float64) backtest.Summary {
	var trades []sim.Trade
	var equity []backtest.EquityPoint
	offset := 0.0
	for _, fr := range results {
		oos := fr.OutOfSample
		trades = append(trades, oos.Trades...)
		for _, p := range oos.Equity {
			equity = append(equity, backtest.EquityPoint{Time: p.Time, Equity: p.Equity + offset})
		}
		offset += oos.Summary.NetPnL
	}
	return backtest.Summarize(trades, equity, starting)
}
