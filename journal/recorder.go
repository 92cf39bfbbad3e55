package journal

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/meanrev/sim"
)

// Recorder turns simulator output into journal records for one run.
type Recorder struct {
	j          Journal
	runID      string
	instrument string
	log        zerolog.Logger
	trades     int
}

func NewRecorder(j Journal, runID, instrument string, log zerolog.Logger) *Recorder {
	if j == nil {
		j = Discard{}
	}
	return &Recorder{
		j:          j,
		runID:      runID,
		instrument: instrument,
		log:        log.With().Str("component", "journal").Str("run", runID).Logger(),
	}
}

func (r *Recorder) RunID() string { return r.runID }

// Trades records each trade in order and returns the records written.
func (r *Recorder) Trades(ts []sim.Trade) ([]TradeRecord, error) {
	out := make([]TradeRecord, 0, len(ts))
	for _, t := range ts {
		rec := NewRecord(t, r.runID)
		rec.Instrument = r.instrument
		if err := r.j.RecordTrade(rec); err != nil {
			return out, fmt.Errorf("record trade %s: %w", t.ID, err)
		}
		r.trades++
		r.log.Info().
			Str("trade", rec.TradeID).
			Str("strategy", rec.StrategyID).
			Str("dir", rec.Direction).
			Int("qty", rec.Quantity).
			Str("entry", rec.EntryPrice.String()).
			Str("exit", rec.ExitPrice.String()).
			Str("pnl", rec.RealizedPL.StringFixed(2)).
			Str("reason", rec.Reason).
			Msg("trade closed")
		out = append(out, rec)
	}
	return out, nil
}

// Positions snapshots every open position at mark.
func (r *Recorder) Positions(at time.Time, mark, pointValue float64, ps []sim.Position) error {
	for _, p := range ps {
		if p.Status != sim.Open && p.Status != sim.PartiallyClosed {
			continue
		}
		if err := r.j.RecordSnapshot(NewSnapshot(p, r.runID, at, mark, pointValue)); err != nil {
			return fmt.Errorf("record snapshot %s: %w", p.ID, err)
		}
	}
	return nil
}

// Equity records one point of the equity curve.
func (r *Recorder) Equity(at time.Time, balance, equity float64, open int) error {
	return r.j.RecordEquity(EquitySnapshot{
		RunID:   r.runID,
		Time:    at.UTC(),
		Balance: cents(balance),
		Equity:  cents(equity),
		Open:    open,
	})
}

// Count returns the number of trades recorded.
func (r *Recorder) Count() int { return r.trades }

func (r *Recorder) Close() error { return r.j.Close() }
