package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/rustyeddy/meanrev/risk"
)

// RunRecord is the stored summary of one backtest run.
type RunRecord struct {
	RunID           string
	Name            string
	Instrument      string
	Strategy        string
	StartedAt       time.Time
	FinishedAt      time.Time
	DataStart       time.Time
	DataEnd         time.Time
	StartingBalance decimal.Decimal
	EndingBalance   decimal.Decimal
	NetPnL          decimal.Decimal
	Trades          int
	WinRate         float64
	MaxDrawdown     float64
	Sharpe          float64
	ProfitFactor    float64
	// Params is the run's parameter set as YAML.
	Params string
}

type SQLiteJournal struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// A single connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

func (j *SQLiteJournal) RecordTrade(t TradeRecord) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, trade_id, position_id, strategy_id, instrument, direction, quantity,
		 entry_price, exit_price, entry_time, exit_time, gross_pnl, fees, slippage,
		 realized_pl, r_multiple, reason, final)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, t.TradeID, t.PositionID, t.StrategyID, t.Instrument, t.Direction, t.Quantity,
		t.EntryPrice, t.ExitPrice, t.EntryTime, t.ExitTime, t.GrossPnL, t.Fees, t.Slippage,
		t.RealizedPL, t.RMultiple, t.Reason, t.Final,
	)
	return err
}

func (j *SQLiteJournal) RecordSnapshot(s PositionSnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO position_snapshots
		(run_id, time, position_id, strategy_id, direction, status, quantity, remaining,
		 entry_price, stop, target, mark, unrealized)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Time, s.PositionID, s.StrategyID, s.Direction, s.Status, s.Quantity, s.Remaining,
		s.EntryPrice, s.Stop, s.Target, s.Mark, s.Unrealized,
	)
	return err
}

func (j *SQLiteJournal) RecordEquity(e EquitySnapshot) error {
	_, err := j.db.Exec(`
		INSERT INTO equity
		(run_id, time, balance, equity, open_positions)
		VALUES (?, ?, ?, ?, ?)`,
		e.RunID, e.Time, e.Balance, e.Equity, e.Open,
	)
	return err
}

// RecordRun stores or replaces a backtest run summary.
func (j *SQLiteJournal) RecordRun(ctx context.Context, r RunRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs
		(run_id, name, instrument, strategy, started_at, finished_at, data_start, data_end,
		 starting_balance, ending_balance, net_pnl, trades, win_rate, max_drawdown,
		 sharpe, profit_factor, params)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Name, r.Instrument, r.Strategy, r.StartedAt.UTC(), r.FinishedAt.UTC(),
		r.DataStart.UTC(), r.DataEnd.UTC(), r.StartingBalance, r.EndingBalance, r.NetPnL,
		r.Trades, r.WinRate, r.MaxDrawdown, r.Sharpe, r.ProfitFactor, r.Params,
	)
	return err
}

// LimitStore returns a risk.StateStore backed by the limit_state table
// for account.
func (j *SQLiteJournal) LimitStore(account string) risk.StateStore {
	return &sqliteLimitStore{db: j.db, account: account}
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

type sqliteLimitStore struct {
	db      *sql.DB
	account string
}

func (s *sqliteLimitStore) Load(ctx context.Context) (risk.DailyLimitState, bool, error) {
	var (
		st       risk.DailyLimitState
		lastLoss sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT session, week, realized_today, realized_week, trades_today, last_loss
		FROM limit_state WHERE account = ?`, s.account,
	).Scan(&st.Session, &st.Week, &st.RealizedToday, &st.RealizedWeek, &st.TradesToday, &lastLoss)
	if errors.Is(err, sql.ErrNoRows) {
		return risk.DailyLimitState{}, false, nil
	}
	if err != nil {
		return risk.DailyLimitState{}, false, fmt.Errorf("load limit state: %w", err)
	}
	if lastLoss.Valid {
		st.LastLoss = lastLoss.Time.UTC()
	}
	return st, true, nil
}

func (s *sqliteLimitStore) Save(ctx context.Context, st risk.DailyLimitState) error {
	var lastLoss sql.NullTime
	if !st.LastLoss.IsZero() {
		lastLoss = sql.NullTime{Time: st.LastLoss.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO limit_state
		(account, session, week, realized_today, realized_week, trades_today, last_loss, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		s.account, st.Session, st.Week, st.RealizedToday, st.RealizedWeek, st.TradesToday,
		lastLoss, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save limit state: %w", err)
	}
	return nil
}
