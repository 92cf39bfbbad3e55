package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/meanrev/backtest"
	"github.com/rustyeddy/meanrev/internal/walkforward"
)

func newWalkForwardCmd(rc *RootConfig) *cobra.Command {
	var data dataFlags

	cmd := &cobra.Command{
		Use:   "walkforward",
		Short: "Pick the best grid point in-sample and score it out-of-sample",
		Long: `Split the data into rolling in-sample / out-of-sample folds
(walk_forward.in_sample, out_of_sample, step). On each fold every
walk_forward.grid set runs in-sample, the best Sharpe ratio wins, and the
winner alone runs out-of-sample.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rc.Config
			ticks, err := loadTicks(ctx, cfg, data)
			if err != nil {
				return fmt.Errorf("load data: %w", err)
			}
			wf := cfg.WalkForward
			folds, err := walkforward.Split(ticks, wf.InSample, wf.OutOfSample, wf.Step)
			if err != nil {
				return err
			}
			news, err := cfg.NewsFilter()
			if err != nil {
				return err
			}

			r := &walkforward.Runner{
				Sets:     cfg.ParamSets(),
				Parallel: cfg.Backtest.Parallel,
				News:     news,
				Log:      rc.Log,
			}
			results, err := r.Run(ctx, folds)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, fr := range results {
				f := fr.Fold
				fmt.Fprintf(w, "Fold %d  IS %s .. OOS %s .. %s\n", f.Index,
					f.ISStart.Format("2006-01-02"), f.OOSStart.Format("2006-01-02"), f.OOSEnd.Format("2006-01-02"))
				backtest.PrintComparison(w, fr.InSample)
				fmt.Fprintf(w, "chosen %s: out-of-sample trades %d, net %.2f, sharpe %.2f\n\n",
					fr.Chosen, fr.OutOfSample.Summary.Trades, fr.OutOfSample.Summary.NetPnL, fr.OutOfSample.Summary.Sharpe)
			}

			s := walkforward.Aggregate(results, cfg.Sim.StartingBalance)
			fmt.Fprintln(w, "Out-of-sample")
			fmt.Fprintln(w, "--------------------------------------------------")
			fmt.Fprintf(w, "Trades:        %d\n", s.Trades)
			fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate*100)
			fmt.Fprintf(w, "Net P/L:       %.2f\n", s.NetPnL)
			fmt.Fprintf(w, "Max Drawdown:  %.2f%%\n", s.MaxDrawdown*100)
			fmt.Fprintf(w, "Sharpe:        %.2f\n", s.Sharpe)
			return nil
		},
	}

	cmd.Flags().StringVarP(&data.path, "data", "d", "", "CSV bar file (overrides data.path)")
	cmd.Flags().StringVar(&data.from, "from", "", "first bar time, inclusive")
	cmd.Flags().StringVar(&data.to, "to", "", "last bar time, exclusive")
	return cmd
}
