package backtest

import (
	"math"
	"slices"
	"time"

	"github.com/rustyeddy/meanrev/sim"
)

// TradingDays annualizes the daily Sharpe ratio.
const TradingDays = 252

// Summary is computed per position: the legs of a scaled-out position
// count as one trade.
type Summary struct {
	StartingBalance float64
	EndingBalance   float64
	NetPnL          float64
	Fees            float64
	ReturnPct       float64

	Trades int
	Wins   int
	Losses int
	// WinRate is a fraction in [0, 1].
	WinRate         float64
	AvgWin          float64
	AvgLoss         float64
	LargestWin      float64
	LargestLoss     float64
	ProfitFactor    float64
	AvgR            float64
	MaxConsecWins   int
	MaxConsecLosses int
	AvgHolding      time.Duration

	// MaxDrawdown is the deepest peak to trough fall of the equity
	// curve as a fraction of the peak.
	MaxDrawdown       float64
	MaxDrawdownAmount float64
	Sharpe            float64

	Exits map[sim.ExitReason]int
}

type positionResult struct {
	pnl     float64
	r       float64
	entry   time.Time
	exit    time.Time
	closeBy sim.ExitReason
}

// groupPositions folds trades into one result per position, in the
// order each position first exited.
func groupPositions(trades []sim.Trade) []positionResult {
	idx := make(map[string]int)
	var out []positionResult
	for _, t := range trades {
		i, ok := idx[t.PositionID]
		if !ok {
			i = len(out)
			idx[t.PositionID] = i
			out = append(out, positionResult{entry: t.EntryTime})
		}
		p := &out[i]
		p.pnl += t.RealizedPnL
		p.r += t.RMultiple * float64(t.Quantity)
		p.exit = t.ExitTime
		p.closeBy = t.Reason
	}
	// RMultiple is per unit; weight each leg by its size.
	qty := make(map[string]int)
	for _, t := range trades {
		qty[t.PositionID] += t.Quantity
	}
	for id, i := range idx {
		if q := qty[id]; q > 0 {
			out[i].r /= float64(q)
		}
	}
	return out
}

// Summarize computes run statistics from committed trades and the
// per-bar equity curve.
func Summarize(trades []sim.Trade, equity []EquityPoint, starting float64) Summary {
	s := Summary{
		StartingBalance: starting,
		EndingBalance:   starting,
		Exits:           make(map[sim.ExitReason]int),
	}
	for _, t := range trades {
		s.NetPnL += t.RealizedPnL
		s.Fees += t.Fees
		s.Exits[t.Reason]++
	}
	s.EndingBalance = starting + s.NetPnL
	if starting > 0 {
		s.ReturnPct = s.NetPnL / starting * 100
	}

	var grossWin, grossLoss, sumR float64
	var holding time.Duration
	run := 0
	for _, p := range groupPositions(trades) {
		s.Trades++
		sumR += p.r
		holding += p.exit.Sub(p.entry)
		switch {
		case p.pnl > 0:
			s.Wins++
			grossWin += p.pnl
			s.LargestWin = max(s.LargestWin, p.pnl)
			if run < 0 {
				run = 0
			}
			run++
			s.MaxConsecWins = max(s.MaxConsecWins, run)
		default:
			s.Losses++
			grossLoss += -p.pnl
			s.LargestLoss = min(s.LargestLoss, p.pnl)
			if run > 0 {
				run = 0
			}
			run--
			s.MaxConsecLosses = max(s.MaxConsecLosses, -run)
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
		s.AvgR = sumR / float64(s.Trades)
		s.AvgHolding = holding / time.Duration(s.Trades)
	}
	if s.Wins > 0 {
		s.AvgWin = grossWin / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -grossLoss / float64(s.Losses)
	}
	switch {
	case grossLoss > 0:
		s.ProfitFactor = grossWin / grossLoss
	case grossWin > 0:
		s.ProfitFactor = math.Inf(1)
	}

	s.MaxDrawdown, s.MaxDrawdownAmount = drawdown(equity, starting)
	s.Sharpe = sharpe(equity, starting)
	return s
}

func drawdown(equity []EquityPoint, starting float64) (frac, amount float64) {
	peak := starting
	for _, p := range equity {
		peak = max(peak, p.Equity)
		dd := peak - p.Equity
		if dd > amount {
			amount = dd
		}
		if peak > 0 && dd/peak > frac {
			frac = dd / peak
		}
	}
	return frac, amount
}

// sharpe annualizes the mean over the sample standard deviation of
// daily returns, taken from each UTC day's last equity point.
func sharpe(equity []EquityPoint, starting float64) float64 {
	if len(equity) == 0 {
		return 0
	}
	var closes []float64
	var day time.Time
	for _, p := range equity {
		d := p.Time.UTC().Truncate(24 * time.Hour)
		if len(closes) == 0 || !d.Equal(day) {
			closes = append(closes, p.Equity)
			day = d
			continue
		}
		closes[len(closes)-1] = p.Equity
	}
	closes = slices.Insert(closes, 0, starting)

	rets := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 {
			continue
		}
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	if len(rets) < 2 {
		return 0
	}
	var mean float64
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	var v float64
	for _, r := range rets {
		v += (r - mean) * (r - mean)
	}
	sd := math.Sqrt(v / float64(len(rets)-1))
	if sd == 0 {
		return 0
	}
	return mean / sd * math.Sqrt(TradingDays)
}
