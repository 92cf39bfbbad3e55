// Package journal records what the pipeline did: closed trades, open
// position snapshots, the equity curve and backtest runs.
package journal

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rustyeddy/meanrev/sim"
)

// TradeRecord is the immutable, persisted form of a sim.Trade. Money is
// kept as decimals rounded to cents.
type TradeRecord struct {
	RunID      string
	TradeID    string
	PositionID string
	StrategyID string
	Instrument string
	Direction  string
	Quantity   int
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	EntryTime  time.Time
	ExitTime   time.Time
	GrossPnL   decimal.Decimal
	Fees       decimal.Decimal
	Slippage   decimal.Decimal
	RealizedPL decimal.Decimal
	RMultiple  float64
	Reason     string
	Final      bool
}

func cents(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(2)
}

func price(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(6)
}

// NewRecord converts a simulated trade for run runID.
func NewRecord(t sim.Trade, runID string) TradeRecord {
	return TradeRecord{
		RunID:      runID,
		TradeID:    t.ID,
		PositionID: t.PositionID,
		StrategyID: t.StrategyID,
		Direction:  t.Direction.String(),
		Quantity:   t.Quantity,
		EntryPrice: price(t.EntryPrice),
		ExitPrice:  price(t.ExitPrice),
		EntryTime:  t.EntryTime.UTC(),
		ExitTime:   t.ExitTime.UTC(),
		GrossPnL:   cents(t.GrossPnL),
		Fees:       cents(t.Fees),
		Slippage:   cents(t.Slippage),
		RealizedPL: cents(t.RealizedPnL),
		RMultiple:  t.RMultiple,
		Reason:     string(t.Reason),
		Final:      t.Final,
	}
}

// PositionSnapshot is the state of one open position at a bar close.
type PositionSnapshot struct {
	RunID      string
	Time       time.Time
	PositionID string
	StrategyID string
	Direction  string
	Status     string
	Quantity   int
	Remaining  int
	EntryPrice decimal.Decimal
	Stop       decimal.Decimal
	Target     decimal.Decimal
	Mark       decimal.Decimal
	Unrealized decimal.Decimal
}

func NewSnapshot(p sim.Position, runID string, at time.Time, mark, pointValue float64) PositionSnapshot {
	return PositionSnapshot{
		RunID:      runID,
		Time:       at.UTC(),
		PositionID: p.ID,
		StrategyID: p.StrategyID,
		Direction:  p.Direction.String(),
		Status:     p.Status.String(),
		Quantity:   p.Quantity,
		Remaining:  p.Remaining,
		EntryPrice: price(p.EntryPrice),
		Stop:       price(p.Stop),
		Target:     price(p.Target),
		Mark:       price(mark),
		Unrealized: cents(p.Unrealized(mark, pointValue)),
	}
}

// EquitySnapshot is one point of the equity curve.
type EquitySnapshot struct {
	RunID   string
	Time    time.Time
	Balance decimal.Decimal
	Equity  decimal.Decimal
	Open    int
}

// Journal is an append-only sink. Implementations never read back
// their own records to make decisions.
type Journal interface {
	RecordTrade(TradeRecord) error
	RecordSnapshot(PositionSnapshot) error
	RecordEquity(EquitySnapshot) error
	Close() error
}

// Discard is a Journal that drops everything.
type Discard struct{}

func (Discard) RecordTrade(TradeRecord) error         { return nil }
func (Discard) RecordSnapshot(PositionSnapshot) error { return nil }
func (Discard) RecordEquity(EquitySnapshot) error     { return nil }
func (Discard) Close() error                          { return nil }

type nopCloser struct{ Journal }

func (nopCloser) Close() error { return nil }

// NopCloser returns j with a no-op Close, for handing a journal the
// caller still owns to a component that closes what it is given.
func NopCloser(j Journal) Journal { return nopCloser{j} }

// Multi fans every record out to several journals, stopping at the
// first error.
type Multi []Journal

func (m Multi) RecordTrade(r TradeRecord) error {
	for _, j := range m {
		if err := j.RecordTrade(r); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordSnapshot(s PositionSnapshot) error {
	for _, j := range m {
		if err := j.RecordSnapshot(s); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordEquity(e EquitySnapshot) error {
	for _, j := range m {
		if err := j.RecordEquity(e); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var first error
	for _, j := range m {
		if err := j.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
