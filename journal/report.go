package journal

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"
)

// FormatTradeOrg renders a TradeRecord as an Org-mode block. Facts go in
// the PROPERTIES drawer; Thesis/Execution/Review are left for notes.
func FormatTradeOrg(t TradeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** Trade: %s %s %s (%s)\n", t.Instrument, t.StrategyID, t.Direction, shortID(t.TradeID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":TRADE_ID: %s\n", t.TradeID)
	fmt.Fprintf(&b, ":POSITION_ID: %s\n", t.PositionID)
	fmt.Fprintf(&b, ":RUN_ID: %s\n", t.RunID)
	fmt.Fprintf(&b, ":INSTRUMENT: %s\n", t.Instrument)
	fmt.Fprintf(&b, ":STRATEGY: %s\n", t.StrategyID)
	fmt.Fprintf(&b, ":DIRECTION: %s\n", t.Direction)
	fmt.Fprintf(&b, ":QUANTITY: %d\n", t.Quantity)
	fmt.Fprintf(&b, ":ENTRY_PRICE: %s\n", t.EntryPrice.StringFixed(2))
	fmt.Fprintf(&b, ":EXIT_PRICE: %s\n", t.ExitPrice.StringFixed(2))
	fmt.Fprintf(&b, ":OPEN_TIME: %s\n", t.EntryTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":CLOSE_TIME: %s\n", t.ExitTime.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, ":FEES: %s\n", t.Fees.StringFixed(2))
	fmt.Fprintf(&b, ":SLIPPAGE: %s\n", t.Slippage.StringFixed(2))
	fmt.Fprintf(&b, ":REALIZED_PL: %s\n", t.RealizedPL.StringFixed(2))
	fmt.Fprintf(&b, ":R_MULTIPLE: %.2f\n", t.RMultiple)
	fmt.Fprintf(&b, ":REASON: %s\n", t.Reason)
	b.WriteString(":END:\n\n")
	b.WriteString("*** Thesis\n- \n\n")
	b.WriteString("*** Execution\n- \n\n")
	b.WriteString("*** Review\n- \n")
	return b.String()
}

// FormatTradesOrg renders multiple trades separated by blank lines.
func FormatTradesOrg(trades []TradeRecord) string {
	var b strings.Builder
	for i, t := range trades {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(FormatTradeOrg(t))
	}
	return b.String()
}

// ULIDs share their timestamp prefix, so the tail is the useful part.
func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}

var runOrgFuncs = template.FuncMap{
	"mul100": func(x float64) float64 { return x * 100.0 },
	"trades": FormatTradesOrg,
}

var runOrgTemplate = template.Must(template.New("run").Funcs(runOrgFuncs).Parse(RunOrgTemplate))

// RunOrgTemplate renders a RunRecord followed by its trades.
const RunOrgTemplate = `* BACKTEST: {{.Run.Strategy}} {{.Run.Instrument}} {{if .Run.Name}}{{.Run.Name}}{{end}}
:PROPERTIES:
:RUN_ID:      {{.Run.RunID}}
:STRATEGY:    {{.Run.Strategy}}
:INSTRUMENT:  {{.Run.Instrument}}
:START_DATE:  {{.Run.DataStart.Format "2006-01-02"}}
:END_DATE:    {{.Run.DataEnd.Format "2006-01-02"}}
:START_BAL:   {{.Run.StartingBalance.StringFixed 2}}
:END_BAL:     {{.Run.EndingBalance.StringFixed 2}}
:NET_PL:      {{.Run.NetPnL.StringFixed 2}}
:MAX_DD_PCT:  {{printf "%.2f" (mul100 .Run.MaxDrawdown)}}
:TRADES:      {{.Run.Trades}}
:WIN_RATE:    {{printf "%.2f" (mul100 .Run.WinRate)}}
:SHARPE:      {{printf "%.2f" .Run.Sharpe}}
:PROFIT_FAC:  {{printf "%.2f" .Run.ProfitFactor}}
:CREATED:     [{{.Run.StartedAt.Format "2006-01-02 Mon 15:04"}}]
:END:

** Parameters
#+begin_src yaml
{{.Run.Params}}
#+end_src

** Performance Summary
- Net P/L:       *{{.Run.NetPnL.StringFixed 2}}*
- Max Drawdown:  *{{printf "%.2f" (mul100 .Run.MaxDrawdown)}}%*
- Win Rate:      *{{printf "%.2f" (mul100 .Run.WinRate)}}%*
- Sharpe:        *{{printf "%.2f" .Run.Sharpe}}*
- Profit Factor: *{{printf "%.2f" .Run.ProfitFactor}}*
{{if .Trades}}
** Trades
{{trades .Trades}}{{end}}`

// WriteRunOrg writes a run and its trades as an Org document.
func WriteRunOrg(w io.Writer, run RunRecord, trades []TradeRecord) error {
	return runOrgTemplate.Execute(w, struct {
		Run    RunRecord
		Trades []TradeRecord
	}{run, trades})
}
