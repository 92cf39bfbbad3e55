package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/meanrev/backtest"
	"github.com/rustyeddy/meanrev/journal"
)

func newBacktestCmd(rc *RootConfig) *cobra.Command {
	var (
		data     dataFlags
		name     string
		orgPath  string
		keepOpen bool
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Run one parameter set over historical data",
		Long: `Replay historical bars through the decision pipeline. Orders fill at the
next bar's open; signals on the final bar are discarded.

Examples:
  meanrev backtest --data data/mes_1m.csv
  meanrev backtest -c meanrev.yaml --from 2024-01-01 --to 2024-04-01 --org run.org`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := rc.Config
			bc := cfg.Engine()
			if name != "" {
				bc.Name = name
			}
			if keepOpen {
				bc.CloseAtEnd = false
			}

			ticks, err := loadTicks(ctx, cfg, data)
			if err != nil {
				return fmt.Errorf("load data: %w", err)
			}
			news, err := cfg.NewsFilter()
			if err != nil {
				return err
			}
			out, err := openSinks(cfg, false, rc.Log)
			if err != nil {
				return err
			}
			defer out.Close()

			e := backtest.NewEngine(bc, rc.Log)
			e.Journal = out.journal
			e.News = news
			res, err := e.Run(ctx, ticks)
			if err != nil {
				return err
			}
			backtest.PrintResult(cmd.OutOrStdout(), res)

			run, err := backtest.ToRunRecord(res)
			if err != nil {
				return err
			}
			if out.sqlite != nil {
				if err := out.sqlite.RecordRun(ctx, run); err != nil {
					return fmt.Errorf("record run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Journal:       %s (run %s)\n", cfg.Journal.DBPath, res.RunID)
			}
			if orgPath != "" {
				if err := writeOrg(orgPath, run, res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Org Report:    %s\n", orgPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&data.path, "data", "d", "", "CSV bar file (overrides data.path)")
	cmd.Flags().StringVar(&data.from, "from", "", "first bar time, inclusive")
	cmd.Flags().StringVar(&data.to, "to", "", "last bar time, exclusive")
	cmd.Flags().StringVar(&name, "name", "", "parameter set name for reports")
	cmd.Flags().StringVar(&orgPath, "org", "", "write an org-mode report to this path")
	cmd.Flags().BoolVar(&keepOpen, "keep-open", false, "leave positions open at the end of data")
	return cmd
}

func writeOrg(path string, run journal.RunRecord, res *backtest.Result) error {
	recs := make([]journal.TradeRecord, 0, len(res.Trades))
	for _, t := range res.Trades {
		r := journal.NewRecord(t, res.RunID)
		r.Instrument = run.Instrument
		recs = append(recs, r)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create org report: %w", err)
	}
	if err := journal.WriteRunOrg(f, run, recs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
