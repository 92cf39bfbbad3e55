package backtest

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/signals"
)

// RunMany runs every parameter set over the same ticks, at most
// parallel at a time. Each set owns its pipeline, so runs share no
// mutable state. Results come back in the order of cfgs.
func RunMany(ctx context.Context, ticks []market.Tick, cfgs []Config, parallel int, news *signals.NewsFilter, log zerolog.Logger) ([]*Result, error) {
	if parallel < 1 {
		parallel = 1
	}
	out := make([]*Result, len(cfgs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for i, cfg := range cfgs {
		g.Go(func() error {
			e := NewEngine(cfg, log)
			e.News = news
			r, err := e.Run(ctx, ticks)
			if err != nil {
				return fmt.Errorf("parameter set %q: %w", cfg.Name, err)
			}
			out[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Best returns the result with the highest Sharpe ratio, breaking ties
// by net P&L. It returns nil for an empty slice.
func Best(results []*Result) *Result {
	var best *Result
	for _, r := range results {
		if r == nil {
			continue
		}
		if best == nil ||
			r.Summary.Sharpe > best.Summary.Sharpe ||
			(r.Summary.Sharpe == best.Summary.Sharpe && r.Summary.NetPnL > best.Summary.NetPnL) {
			best = r
		}
	}
	return best
}
