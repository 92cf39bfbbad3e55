package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/meanrev/feed"
	"github.com/rustyeddy/meanrev/internal/health"
	"github.com/rustyeddy/meanrev/journal"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/metrics"
	"github.com/rustyeddy/meanrev/pipeline"
	"github.com/rustyeddy/meanrev/pkg/id"
	"github.com/rustyeddy/meanrev/pricing"
	"github.com/rustyeddy/meanrev/risk"
	"github.com/rustyeddy/meanrev/sim"
)

// replayStatus is what /status reports. The replay loop writes it and
// the health server reads it.
type replayStatus struct {
	mu   sync.Mutex
	snap statusSnapshot
}

type statusSnapshot struct {
	RunID   string               `json:"run_id"`
	LastBar time.Time            `json:"last_bar"`
	Equity  float64              `json:"equity"`
	Balance float64              `json:"balance"`
	Open    int                  `json:"open_positions"`
	Trades  int                  `json:"trades"`
	Stats   pipeline.Stats       `json:"stats"`
	Limits  risk.DailyLimitState `json:"limits"`
	Review  reviewStats          `json:"review"`
	Done    bool                 `json:"done"`
}

type reviewStats struct {
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
	Failed  int64 `json:"failed"`
}

func (s *replayStatus) OnTrade(sim.Trade) {
	s.mu.Lock()
	s.snap.Trades++
	s.mu.Unlock()
}

func (s *replayStatus) OnEquity(at time.Time, equity float64) {
	s.mu.Lock()
	s.snap.LastBar = at
	s.snap.Equity = equity
	s.mu.Unlock()
}

func (s *replayStatus) update(fn func(*statusSnapshot)) {
	s.mu.Lock()
	fn(&s.snap)
	s.mu.Unlock()
}

func (s *replayStatus) get() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

func newReplayCmd(rc *RootConfig) *cobra.Command {
	var (
		data     dataFlags
		pace     time.Duration
		addr     string
		closeEnd bool
		linger   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Stream history through the live wiring",
		Long: `Feed ticks one at a time through the pipeline with everything a live
session would attach: the journal, the persisted daily limits, review
publishing to Kafka, Prometheus metrics and the health server.

Examples:
  meanrev replay -c meanrev.yaml --data data/mes_1m.csv --pace 50ms
  meanrev replay -c meanrev.yaml --addr :9090 --linger 1m`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rc.Config
			log := rc.Log.With().Str("component", "replay").Logger()

			f, err := openFeed(ctx, cfg, data)
			if err != nil {
				return fmt.Errorf("open data: %w", err)
			}
			defer f.Close()
			news, err := cfg.NewsFilter()
			if err != nil {
				return err
			}
			out, err := openSinks(cfg, true, rc.Log)
			if err != nil {
				return err
			}
			defer out.Close()

			pc := cfg.Pipeline()
			pc.RunID = id.New()
			m := metrics.New(prometheus.Labels{"account": cfg.Account.ID})
			status := &replayStatus{snap: statusSnapshot{RunID: pc.RunID}}

			deps := pipeline.Deps{
				Log:      rc.Log,
				Metrics:  m,
				News:     news,
				Limits:   out.limits,
				Observer: status,
			}
			if out.journal != nil {
				deps.Journal = journal.NopCloser(out.journal)
			}
			if out.review != nil {
				deps.Review = out.review
			}
			p, err := pipeline.New(pc, deps)
			if err != nil {
				return err
			}
			if err := p.RestoreLimits(ctx); err != nil {
				return err
			}

			if addr == "" {
				addr = cfg.Health.Addr
			}
			srv := health.New(addr, m.Registry(), status.get, rc.Log)
			srv.Start()
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Stop(sctx); err != nil {
					log.Warn().Err(err).Msg("health server stop")
				}
			}()

			refresh := func(done bool) {
				st := p.Stats()
				lim := p.Limits()
				s := p.Simulator()
				var rs reviewStats
				if out.review != nil {
					rs.Sent, rs.Dropped, rs.Failed = out.review.Stats()
				}
				status.update(func(snap *statusSnapshot) {
					snap.Stats = st
					snap.Limits = lim
					snap.Balance = s.Balance()
					snap.Open = s.ActiveCount()
					snap.Review = rs
					snap.Done = done
				})
			}

			err = stream(ctx, p, f, pace, refresh)
			interrupted := errors.Is(err, context.Canceled)
			if err != nil && !interrupted {
				return err
			}
			if !interrupted {
				if err := p.Flush(ctx); err != nil {
					return err
				}
			}
			p.DiscardPending()
			if closeEnd {
				if _, err := p.CloseOut(context.WithoutCancel(ctx), sim.ExitEndOfData); err != nil {
					return err
				}
			}
			if err := p.Close(); err != nil {
				return err
			}
			refresh(true)

			st := p.Stats()
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "\nReplay complete (run %s)\n", pc.RunID)
			fmt.Fprintf(w, "  Bars:     %d\n", st.DecisionBars)
			fmt.Fprintf(w, "  Signals:  %d (approved %d)\n", st.Signals, st.Approved)
			fmt.Fprintf(w, "  Trades:   %d\n", st.Trades)
			fmt.Fprintf(w, "  Balance:  $%.2f\n", p.Simulator().Balance())

			if linger > 0 && !interrupted {
				log.Info().Dur("linger", linger).Msg("serving metrics after replay")
				select {
				case <-ctx.Done():
				case <-time.After(linger):
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data.path, "data", "d", "", "CSV bar file (overrides data.path)")
	cmd.Flags().StringVar(&data.from, "from", "", "first bar time, inclusive")
	cmd.Flags().StringVar(&data.to, "to", "", "last bar time, exclusive")
	cmd.Flags().DurationVar(&pace, "pace", 0, "wait between ticks (0 replays as fast as possible)")
	cmd.Flags().StringVar(&addr, "addr", "", "health server address (overrides health.addr)")
	cmd.Flags().BoolVar(&closeEnd, "close-end", true, "close open positions at the end of data")
	cmd.Flags().DurationVar(&linger, "linger", 0, "keep serving metrics this long after the replay")
	return cmd
}

// stream feeds f into p, refreshing the status after every tick.
func stream(ctx context.Context, p *pipeline.Pipeline, f feed.TickFeed, pace time.Duration, refresh func(bool)) error {
	for {
		t, ok, err := f.Next()
		if err != nil {
			return fmt.Errorf("replay feed: %w", err)
		}
		if !ok {
			return nil
		}
		if err := p.OnTick(ctx, t); err != nil {
			if errors.Is(err, market.ErrMalformedInput) || errors.Is(err, pricing.ErrOutOfOrder) {
				// counted by the pipeline; a live feed keeps going
				continue
			}
			return err
		}
		refresh(false)
		if pace > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pace):
			}
		}
	}
}
