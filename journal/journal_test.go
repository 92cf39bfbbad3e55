package journal

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/risk"
	"github.com/rustyeddy/meanrev/sim"
)

var t0 = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)

func sampleTrade(id string, exit time.Time, pnl float64) sim.Trade {
	return sim.Trade{
		ID:          id,
		PositionID:  "pos-" + id,
		StrategyID:  "mean_reversion",
		Direction:   market.Long,
		EntryTime:   t0,
		EntryPrice:  5000.25,
		ExitTime:    exit,
		ExitPrice:   5010.5,
		Quantity:    2,
		GrossPnL:    102.5,
		Fees:        1.24,
		Slippage:    5.004,
		RealizedPnL: pnl,
		RMultiple:   1.025,
		Reason:      sim.ExitTarget,
		Final:       true,
	}
}

func TestNewRecordRoundsMoney(t *testing.T) {
	t.Parallel()

	rec := NewRecord(sampleTrade("T1", t0.Add(time.Hour), 101.2567), "run-1")
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, "long", rec.Direction)
	assert.Equal(t, "target", rec.Reason)
	assert.Equal(t, "101.26", rec.RealizedPL.StringFixed(2))
	assert.Equal(t, "5", rec.Slippage.String())
	assert.Equal(t, "5000.25", rec.EntryPrice.String())
	assert.True(t, rec.Final)
}

type captureJournal struct {
	trades    []TradeRecord
	snapshots []PositionSnapshot
	equity    []EquitySnapshot
	fail      error
}

func (c *captureJournal) RecordTrade(r TradeRecord) error {
	if c.fail != nil {
		return c.fail
	}
	c.trades = append(c.trades, r)
	return nil
}

func (c *captureJournal) RecordSnapshot(s PositionSnapshot) error {
	c.snapshots = append(c.snapshots, s)
	return nil
}

func (c *captureJournal) RecordEquity(e EquitySnapshot) error {
	c.equity = append(c.equity, e)
	return nil
}

func (c *captureJournal) Close() error { return nil }

func TestRecorder(t *testing.T) {
	t.Parallel()

	cj := &captureJournal{}
	r := NewRecorder(cj, "run-1", "MES", zerolog.Nop())

	recs, err := r.Trades([]sim.Trade{
		sampleTrade("T1", t0.Add(time.Hour), -20),
		sampleTrade("T2", t0.Add(2*time.Hour), 40),
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "MES", cj.trades[0].Instrument)
	assert.Equal(t, "T2", cj.trades[1].TradeID)
	assert.Equal(t, 2, r.Count())

	positions := []sim.Position{
		{ID: "P1", Direction: market.Long, Status: sim.Open, EntryPrice: 5000, Quantity: 2, Remaining: 2},
		{ID: "P2", Direction: market.Short, Status: sim.Pending, Quantity: 1},
		{ID: "P3", Direction: market.Short, Status: sim.Closed, Quantity: 1},
	}
	require.NoError(t, r.Positions(t0, 5004, 5, positions))
	require.Len(t, cj.snapshots, 1)
	assert.Equal(t, "P1", cj.snapshots[0].PositionID)
	assert.Equal(t, "40.00", cj.snapshots[0].Unrealized.StringFixed(2))

	require.NoError(t, r.Equity(t0, 10000, 10040, 1))
	require.Len(t, cj.equity, 1)
	assert.Equal(t, "10040", cj.equity[0].Equity.String())
}

func TestRecorderPropagatesErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	r := NewRecorder(&captureJournal{fail: boom}, "run-1", "MES", zerolog.Nop())
	_, err := r.Trades([]sim.Trade{sampleTrade("T1", t0, 1)})
	require.ErrorIs(t, err, boom)
	assert.Zero(t, r.Count())
}

func TestMulti(t *testing.T) {
	t.Parallel()

	a, b := &captureJournal{}, &captureJournal{}
	m := Multi{a, b, Discard{}}
	require.NoError(t, m.RecordTrade(NewRecord(sampleTrade("T1", t0, 1), "r")))
	assert.Len(t, a.trades, 1)
	assert.Len(t, b.trades, 1)
	require.NoError(t, m.Close())
}

func newSQLite(t *testing.T) (*SQLiteJournal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func TestSQLiteTrades(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, _ := newSQLite(t)

	// recorded out of exit order on purpose
	late := NewRecord(sampleTrade("T2", t0.Add(2*time.Hour), -12.5), "run-1")
	early := NewRecord(sampleTrade("T1", t0.Add(time.Hour), 101.26), "run-1")
	other := NewRecord(sampleTrade("T3", t0.Add(time.Hour), 1), "run-2")
	for _, r := range []TradeRecord{late, early, other} {
		r.Instrument = "MES"
		require.NoError(t, j.RecordTrade(r))
	}

	got, err := j.ListTrades(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "T1", got[0].TradeID)
	assert.Equal(t, "T2", got[1].TradeID)
	assert.Equal(t, "101.26", got[0].RealizedPL.StringFixed(2))
	assert.Equal(t, "-12.50", got[1].RealizedPL.StringFixed(2))
	assert.True(t, got[0].ExitTime.Equal(t0.Add(time.Hour)))
	assert.Equal(t, 2, got[0].Quantity)
	assert.True(t, got[0].Final)

	one, err := j.GetTrade(ctx, "run-2", "T3")
	require.NoError(t, err)
	assert.Equal(t, "MES", one.Instrument)

	_, err = j.GetTrade(ctx, "run-1", "missing")
	require.ErrorIs(t, err, ErrNotFound)

	// trade ids are unique per run
	require.Error(t, j.RecordTrade(early))
}

func TestSQLiteSnapshotsAndEquity(t *testing.T) {
	t.Parallel()
	j, path := newSQLite(t)

	p := sim.Position{ID: "P1", Direction: market.Long, Status: sim.Open, EntryPrice: 5000, Quantity: 2, Remaining: 1, Stop: 4990, Target: 5020}
	require.NoError(t, j.RecordSnapshot(NewSnapshot(p, "run-1", t0, 5002, 5)))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "run-1", Time: t0, Balance: decimal.NewFromInt(10000), Equity: decimal.NewFromInt(10010), Open: 1}))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var unrealized string
	require.NoError(t, db.QueryRow(`SELECT unrealized FROM position_snapshots WHERE position_id = 'P1'`).Scan(&unrealized))
	assert.Equal(t, "10", unrealized)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM equity WHERE run_id = 'run-1'`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestSQLiteLimitStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, _ := newSQLite(t)
	store := j.LimitStore("acct-1")

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	want := risk.DailyLimitState{
		Session:       "2024-03-04",
		Week:          "2024-W10",
		RealizedToday: -150.5,
		RealizedWeek:  -75.25,
		TradesToday:   3,
		LastLoss:      t0,
	}
	require.NoError(t, store.Save(ctx, want))

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want.Session, got.Session)
	assert.Equal(t, want.Week, got.Week)
	assert.Equal(t, want.RealizedToday, got.RealizedToday)
	assert.Equal(t, want.RealizedWeek, got.RealizedWeek)
	assert.Equal(t, want.TradesToday, got.TradesToday)
	assert.True(t, want.LastLoss.Equal(got.LastLoss))

	// overwrite, no loss yet
	require.NoError(t, store.Save(ctx, risk.DailyLimitState{Session: "2024-03-05", Week: "2024-W10"}))
	got, ok, err = store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-03-05", got.Session)
	assert.True(t, got.LastLoss.IsZero())

	_, ok, err = j.LimitStore("acct-2").Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func sampleRun(id string, started time.Time) RunRecord {
	return RunRecord{
		RunID:           id,
		Name:            "baseline",
		Instrument:      "MES",
		Strategy:        "mean_reversion",
		StartedAt:       started,
		FinishedAt:      started.Add(time.Second),
		DataStart:       t0,
		DataEnd:         t0.Add(48 * time.Hour),
		StartingBalance: decimal.NewFromInt(10000),
		EndingBalance:   decimal.RequireFromString("10250.75"),
		NetPnL:          decimal.RequireFromString("250.75"),
		Trades:          12,
		WinRate:         0.5,
		MaxDrawdown:     0.021,
		Sharpe:          1.4,
		ProfitFactor:    1.8,
		Params:          "risk_fraction: 0.01\n",
	}
}

func TestSQLiteRuns(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	j, _ := newSQLite(t)

	require.NoError(t, j.RecordRun(ctx, sampleRun("R1", t0)))
	require.NoError(t, j.RecordRun(ctx, sampleRun("R2", t0.Add(time.Hour))))

	r, err := j.GetRun(ctx, "R1")
	require.NoError(t, err)
	assert.Equal(t, "10250.75", r.EndingBalance.String())
	assert.Equal(t, 12, r.Trades)
	assert.Equal(t, "risk_fraction: 0.01\n", r.Params)

	runs, err := j.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "R2", runs[0].RunID)

	_, err = j.GetRun(ctx, "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCSVJournal(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	j, err := NewCSV(dir)
	require.NoError(t, err)
	rec := NewRecord(sampleTrade("T1", t0.Add(time.Hour), -20.456), "run-1")
	require.NoError(t, j.RecordTrade(rec))
	require.NoError(t, j.RecordEquity(EquitySnapshot{RunID: "run-1", Time: t0, Balance: decimal.NewFromInt(10000), Equity: decimal.NewFromInt(10000)}))
	require.NoError(t, j.Close())

	read := func(name string) [][]string {
		f, err := os.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		defer f.Close()
		rows, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		return rows
	}

	trades := read(TradesFile)
	require.Len(t, trades, 2)
	assert.Equal(t, tradeHeader, trades[0])
	assert.Equal(t, "T1", trades[1][1])
	assert.Equal(t, "-20.46", trades[1][14])
	assert.Equal(t, "1.025000", trades[1][15])

	positions := read(PositionsFile)
	require.Len(t, positions, 1)
	assert.Equal(t, positionHeader, positions[0])

	equity := read(EquityFile)
	require.Len(t, equity, 2)
	assert.Equal(t, "10000.00", equity[1][2])
}

func TestRedisLimitStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, mock := redismock.NewClientMock()
	store := NewRedisLimitStore(db, "", "acct-1", 0)
	assert.Equal(t, "meanrev:limits:acct-1", store.Key())

	mock.ExpectGet(store.Key()).RedisNil()
	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	st := risk.DailyLimitState{Session: "2024-03-04", Week: "2024-W10", RealizedToday: -50, TradesToday: 2}
	raw, err := json.Marshal(st)
	require.NoError(t, err)

	mock.ExpectSet(store.Key(), raw, DefaultLimitTTL).SetVal("OK")
	require.NoError(t, store.Save(ctx, st))

	mock.ExpectGet(store.Key()).SetVal(string(raw))
	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, st.Session, got.Session)
	assert.Equal(t, st.RealizedToday, got.RealizedToday)
	assert.Equal(t, 2, got.TradesToday)

	mock.ExpectGet(store.Key()).SetErr(errors.New("connection refused"))
	_, _, err = store.Load(ctx)
	require.Error(t, err)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFormatTradeOrg(t *testing.T) {
	t.Parallel()

	rec := NewRecord(sampleTrade("01HQZX8Y7K2M3N4P5Q6R7S8T9V", t0.Add(time.Hour), 96.02), "run-1")
	rec.Instrument = "MES"
	out := FormatTradeOrg(rec)

	assert.True(t, strings.HasPrefix(out, "** Trade: MES mean_reversion long (6R7S8T9V)"))
	assert.Contains(t, out, ":REALIZED_PL: 96.02\n")
	assert.Contains(t, out, ":OPEN_TIME: 2024-03-04T15:00:00Z\n")
	assert.Contains(t, out, "*** Review\n")

	two := FormatTradesOrg([]TradeRecord{rec, rec})
	assert.Equal(t, 2, strings.Count(two, ":PROPERTIES:"))
}

func TestWriteRunOrg(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	rec := NewRecord(sampleTrade("T1", t0.Add(time.Hour), 96.02), "R1")
	require.NoError(t, WriteRunOrg(&buf, sampleRun("R1", t0), []TradeRecord{rec}))

	out := buf.String()
	assert.Contains(t, out, "* BACKTEST: mean_reversion MES baseline")
	assert.Contains(t, out, ":NET_PL:      250.75")
	assert.Contains(t, out, ":WIN_RATE:    50.00")
	assert.Contains(t, out, ":MAX_DD_PCT:  2.10")
	assert.Contains(t, out, "** Trades\n** Trade:")
}
