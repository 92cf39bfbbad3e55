package journal

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// CSV file names written by NewCSV.
const (
	TradesFile    = "trades.csv"
	PositionsFile = "positions.csv"
	EquityFile    = "equity.csv"
)

var (
	tradeHeader = []string{
		"run_id", "trade_id", "position_id", "strategy_id", "instrument", "direction", "quantity",
		"entry_price", "exit_price", "entry_time", "exit_time", "gross_pnl", "fees", "slippage",
		"realized_pl", "r_multiple", "reason", "final",
	}
	positionHeader = []string{
		"run_id", "time", "position_id", "strategy_id", "direction", "status", "quantity",
		"remaining", "entry_price", "stop", "target", "mark", "unrealized",
	}
	equityHeader = []string{"run_id", "time", "balance", "equity", "open_positions"}
)

type csvFile struct {
	f *os.File
	w *csv.Writer
}

func createCSV(path string, header []string) (*csvFile, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, err
	}
	return &csvFile{f: f, w: w}, nil
}

func (c *csvFile) write(rec []string) error {
	if err := c.w.Write(rec); err != nil {
		return err
	}
	c.w.Flush()
	return c.w.Error()
}

func (c *csvFile) close() error {
	c.w.Flush()
	return errors.Join(c.w.Error(), c.f.Close())
}

// CSVJournal writes trades, position snapshots and equity into three
// CSV files in one directory.
type CSVJournal struct {
	trades, positions, equity *csvFile
}

func NewCSV(dir string) (*CSVJournal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	tf, err := createCSV(filepath.Join(dir, TradesFile), tradeHeader)
	if err != nil {
		return nil, err
	}
	pf, err := createCSV(filepath.Join(dir, PositionsFile), positionHeader)
	if err != nil {
		tf.close()
		return nil, err
	}
	ef, err := createCSV(filepath.Join(dir, EquityFile), equityHeader)
	if err != nil {
		tf.close()
		pf.close()
		return nil, err
	}
	return &CSVJournal{trades: tf, positions: pf, equity: ef}, nil
}

func (j *CSVJournal) RecordTrade(t TradeRecord) error {
	return j.trades.write([]string{
		t.RunID,
		t.TradeID,
		t.PositionID,
		t.StrategyID,
		t.Instrument,
		t.Direction,
		strconv.Itoa(t.Quantity),
		t.EntryPrice.String(),
		t.ExitPrice.String(),
		t.EntryTime.Format(time.RFC3339),
		t.ExitTime.Format(time.RFC3339),
		t.GrossPnL.StringFixed(2),
		t.Fees.StringFixed(2),
		t.Slippage.StringFixed(2),
		t.RealizedPL.StringFixed(2),
		f(t.RMultiple),
		t.Reason,
		strconv.FormatBool(t.Final),
	})
}

func (j *CSVJournal) RecordSnapshot(s PositionSnapshot) error {
	return j.positions.write([]string{
		s.RunID,
		s.Time.Format(time.RFC3339),
		s.PositionID,
		s.StrategyID,
		s.Direction,
		s.Status,
		strconv.Itoa(s.Quantity),
		strconv.Itoa(s.Remaining),
		s.EntryPrice.String(),
		s.Stop.String(),
		s.Target.String(),
		s.Mark.String(),
		s.Unrealized.StringFixed(2),
	})
}

func (j *CSVJournal) RecordEquity(e EquitySnapshot) error {
	return j.equity.write([]string{
		e.RunID,
		e.Time.Format(time.RFC3339),
		e.Balance.StringFixed(2),
		e.Equity.StringFixed(2),
		strconv.Itoa(e.Open),
	})
}

func (j *CSVJournal) Close() error {
	return errors.Join(j.trades.close(), j.positions.close(), j.equity.close())
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
