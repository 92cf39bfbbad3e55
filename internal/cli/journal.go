package cli

import (
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/meanrev/journal"
)

func newJournalCmd(rc *RootConfig) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query the trade journal",
		Long: `Query backtest runs and trades from the SQLite journal.

Subcommands:
  runs   - List recorded runs
  trades - List the trades of a run
  trade  - Show one trade as an org entry
  org    - Print a run as an org-mode report

Examples:
  meanrev journal runs
  meanrev journal trades <run-id>
  meanrev journal trade <run-id> <trade-id>
  meanrev journal org <run-id> > run.org`,
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite journal path (overrides journal.db_path)")

	open := func() (*journal.SQLiteJournal, error) {
		path := dbPath
		if path == "" {
			path = rc.Config.Journal.DBPath
		}
		j, err := journal.NewSQLite(path)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()
			runs, err := j.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN\tNAME\tSTRATEGY\tSTARTED\tTRADES\tNET P/L\tSHARPE\tPF")
			for _, r := range runs {
				pf := fmt.Sprintf("%.2f", r.ProfitFactor)
				if math.IsInf(r.ProfitFactor, 1) {
					pf = "inf"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\t%.2f\t%s\n",
					r.RunID, r.Name, r.Strategy, r.StartedAt.Format(time.RFC3339), r.Trades, r.NetPnL.StringFixed(2), r.Sharpe, pf)
			}
			return tw.Flush()
		},
	}

	tradesCmd := &cobra.Command{
		Use:   "trades <run-id>",
		Short: "List the trades of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()
			recs, err := j.ListTrades(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TRADE\tDIR\tQTY\tENTRY\tEXIT\tEXIT TIME\tP/L\tR\tREASON")
			for _, t := range recs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
					t.TradeID, t.Direction, t.Quantity, t.EntryPrice, t.ExitPrice,
					t.ExitTime.Format(time.RFC3339), t.RealizedPL.StringFixed(2), t.RMultiple, t.Reason)
			}
			return tw.Flush()
		},
	}

	tradeCmd := &cobra.Command{
		Use:   "trade <run-id> <trade-id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()
			rec, err := j.GetTrade(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("get trade: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), journal.FormatTradeOrg(rec))
			return nil
		},
	}

	orgCmd := &cobra.Command{
		Use:   "org <run-id>",
		Short: "Print a run as an org-mode report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()
			run, err := j.GetRun(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			recs, err := j.ListTrades(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			return journal.WriteRunOrg(cmd.OutOrStdout(), run, recs)
		},
	}

	cmd.AddCommand(runsCmd, tradesCmd, tradeCmd, orgCmd)
	return cmd
}
