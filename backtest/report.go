package backtest

import (
	"fmt"
	"io"
	"maps"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/meanrev/journal"
)

const rule = "--------------------------------------------------"

func PrintResult(w io.Writer, r *Result) {
	s := r.Summary
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	fmt.Fprintf(w, "Parameters:    %s\n", r.Config.Name)
	fmt.Fprintf(w, "Strategy:      %s\n", r.Config.Pipeline.Strategy)
	fmt.Fprintf(w, "Instrument:    %s\n", r.Config.Pipeline.Sim.Instrument.Symbol)
	fmt.Fprintf(w, "Interval:      %s\n", r.Config.Pipeline.DecisionInterval)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Start:         %s\n", r.Start.Format(time.RFC3339))
	fmt.Fprintf(w, "End:           %s\n", r.End.Format(time.RFC3339))
	fmt.Fprintf(w, "Bars:          %d\n", r.Stats.DecisionBars)
	fmt.Fprintf(w, "Warmup:        %d\n", r.Stats.Warmup)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signals")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Signals:       %d\n", r.Stats.Signals)
	fmt.Fprintf(w, "Below Floor:   %d\n", r.Stats.BelowFloor)
	fmt.Fprintf(w, "Approved:      %d\n", r.Stats.Approved)
	for _, k := range slices.Sorted(maps.Keys(r.Stats.Rejected)) {
		fmt.Fprintf(w, "  %-22s %d\n", string(k)+":", r.Stats.Rejected[k])
	}
	if r.Discarded > 0 {
		fmt.Fprintf(w, "Discarded:     %d\n", r.Discarded)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Trades:        %d\n", s.Trades)
	fmt.Fprintf(w, "Wins:          %d\n", s.Wins)
	fmt.Fprintf(w, "Losses:        %d\n", s.Losses)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", s.WinRate*100)
	fmt.Fprintf(w, "Avg Win:       %.2f\n", s.AvgWin)
	fmt.Fprintf(w, "Avg Loss:      %.2f\n", s.AvgLoss)
	fmt.Fprintf(w, "Avg R:         %.2f\n", s.AvgR)
	fmt.Fprintf(w, "Streaks:       %dW / %dL\n", s.MaxConsecWins, s.MaxConsecLosses)
	if s.Trades > 0 {
		fmt.Fprintf(w, "Avg Holding:   %s\n", s.AvgHolding.Round(time.Minute))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Start Balance: %.2f\n", s.StartingBalance)
	fmt.Fprintf(w, "End Balance:   %.2f\n", s.EndingBalance)
	fmt.Fprintf(w, "Net P/L:       %.2f\n", s.NetPnL)
	fmt.Fprintf(w, "Fees:          %.2f\n", s.Fees)
	fmt.Fprintf(w, "Return:        %.2f%%\n", s.ReturnPct)

	switch {
	case math.IsInf(s.ProfitFactor, 1):
		fmt.Fprintln(w, "Profit Factor: inf")
	case s.ProfitFactor > 0:
		fmt.Fprintf(w, "Profit Factor: %.2f\n", s.ProfitFactor)
	}
	if s.MaxDrawdown > 0 {
		fmt.Fprintf(w, "Max Drawdown:  %.2f%% (%.2f)\n", s.MaxDrawdown*100, s.MaxDrawdownAmount)
	}
	fmt.Fprintf(w, "Sharpe:        %.2f\n", s.Sharpe)
	fmt.Fprintln(w)
}

// PrintComparison prints one line per parameter set.
func PrintComparison(w io.Writer, results []*Result) {
	fmt.Fprintf(w, "%-20s %7s %8s %12s %8s %8s %7s\n", "SET", "TRADES", "WIN%", "NET P/L", "MAXDD%", "SHARPE", "PF")
	for _, r := range results {
		s := r.Summary
		pf := fmt.Sprintf("%.2f", s.ProfitFactor)
		if math.IsInf(s.ProfitFactor, 1) {
			pf = "inf"
		}
		fmt.Fprintf(w, "%-20s %7d %8.2f %12.2f %8.2f %8.2f %7s\n",
			r.Config.Name, s.Trades, s.WinRate*100, s.NetPnL, s.MaxDrawdown*100, s.Sharpe, pf)
	}
}

// ToRunRecord converts a result for the journal's run table.
func ToRunRecord(r *Result) (journal.RunRecord, error) {
	params, err := yaml.Marshal(r.Config.Pipeline)
	if err != nil {
		return journal.RunRecord{}, fmt.Errorf("marshal parameters: %w", err)
	}
	s := r.Summary
	return journal.RunRecord{
		RunID:           r.RunID,
		Name:            r.Config.Name,
		Instrument:      r.Config.Pipeline.Sim.Instrument.Symbol,
		Strategy:        r.Config.Pipeline.Strategy,
		StartedAt:       r.StartedAt,
		FinishedAt:      r.FinishedAt,
		DataStart:       r.Start,
		DataEnd:         r.End,
		StartingBalance: decimal.NewFromFloat(s.StartingBalance).Round(2),
		EndingBalance:   decimal.NewFromFloat(s.EndingBalance).Round(2),
		NetPnL:          decimal.NewFromFloat(s.NetPnL).Round(2),
		Trades:          s.Trades,
		WinRate:         s.WinRate,
		MaxDrawdown:     s.MaxDrawdown,
		Sharpe:          s.Sharpe,
		ProfitFactor:    s.ProfitFactor,
		Params:          string(params),
	}, nil
}
