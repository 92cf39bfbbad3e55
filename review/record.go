// Package review ships closed trades, together with the signal and risk
// decision that opened them, to an external review service. Publishing
// is asynchronous and never blocks the decision path.
package review

import (
	"time"

	"github.com/rustyeddy/meanrev/risk"
	"github.com/rustyeddy/meanrev/signals"
	"github.com/rustyeddy/meanrev/sim"
)

// Signal is the scored signal context of a trade.
type Signal struct {
	Time             time.Time       `json:"time"`
	Entry            float64         `json:"entry"`
	Stop             float64         `json:"stop"`
	Target           float64         `json:"target"`
	Reason           string          `json:"reason"`
	Factors          signals.Factors `json:"factors"`
	Confluence       float64         `json:"confluence"`
	RegimeMultiplier float64         `json:"regime_multiplier"`
	Confidence       float64         `json:"confidence"`
}

// Decision is the risk gate approval that sized the trade.
type Decision struct {
	Reason     string  `json:"reason"`
	Quantity   int     `json:"quantity"`
	Stop       float64 `json:"stop"`
	Target     float64 `json:"target"`
	RiskAmount float64 `json:"risk_amount"`
}

// Record is the opaque message handed to the review service.
type Record struct {
	RunID      string    `json:"run_id"`
	TradeID    string    `json:"trade_id"`
	PositionID string    `json:"position_id"`
	Strategy   string    `json:"strategy"`
	Direction  string    `json:"direction"`
	Quantity   int       `json:"quantity"`
	EntryTime  time.Time `json:"entry_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitTime   time.Time `json:"exit_time"`
	ExitPrice  float64   `json:"exit_price"`
	PnL        float64   `json:"pnl"`
	RMultiple  float64   `json:"r_multiple"`
	ExitReason string    `json:"exit_reason"`
	Final      bool      `json:"final"`
	Signal     Signal    `json:"signal"`
	Decision   Decision  `json:"decision"`
}

// NewRecord joins a trade with the decision that opened its position.
func NewRecord(runID string, t sim.Trade, d risk.Decision) Record {
	s := d.Signal
	return Record{
		RunID:      runID,
		TradeID:    t.ID,
		PositionID: t.PositionID,
		Strategy:   t.StrategyID,
		Direction:  t.Direction.String(),
		Quantity:   t.Quantity,
		EntryTime:  t.EntryTime.UTC(),
		EntryPrice: t.EntryPrice,
		ExitTime:   t.ExitTime.UTC(),
		ExitPrice:  t.ExitPrice,
		PnL:        t.RealizedPnL,
		RMultiple:  t.RMultiple,
		ExitReason: string(t.Reason),
		Final:      t.Final,
		Signal: Signal{
			Time:             s.Time.UTC(),
			Entry:            s.Entry,
			Stop:             s.Stop,
			Target:           s.Target,
			Reason:           s.Reason,
			Factors:          s.Factors,
			Confluence:       s.Confluence,
			RegimeMultiplier: s.RegimeMultiplier,
			Confidence:       s.Confidence,
		},
		Decision: Decision{
			Reason:     string(d.Reason),
			Quantity:   d.Quantity,
			Stop:       d.Stop,
			Target:     d.Target,
			RiskAmount: d.RiskAmount,
		},
	}
}

// Key partitions records by position so both halves of a scale-out
// stay ordered.
func (r Record) Key() []byte { return []byte(r.PositionID) }
