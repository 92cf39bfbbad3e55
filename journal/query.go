package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("journal: not found")

const tradeColumns = `run_id, trade_id, position_id, strategy_id, instrument, direction, quantity,
	entry_price, exit_price, entry_time, exit_time, gross_pnl, fees, slippage,
	realized_pl, r_multiple, reason, final`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrade(row scanner) (TradeRecord, error) {
	var t TradeRecord
	err := row.Scan(
		&t.RunID, &t.TradeID, &t.PositionID, &t.StrategyID, &t.Instrument, &t.Direction, &t.Quantity,
		&t.EntryPrice, &t.ExitPrice, &t.EntryTime, &t.ExitTime, &t.GrossPnL, &t.Fees, &t.Slippage,
		&t.RealizedPL, &t.RMultiple, &t.Reason, &t.Final,
	)
	return t, err
}

func (j *SQLiteJournal) GetTrade(ctx context.Context, runID, tradeID string) (TradeRecord, error) {
	row := j.db.QueryRowContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE run_id = ? AND trade_id = ?`, runID, tradeID)
	t, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TradeRecord{}, fmt.Errorf("trade %s: %w", tradeID, ErrNotFound)
	}
	return t, err
}

// ListTrades returns a run's trades in exit order.
func (j *SQLiteJournal) ListTrades(ctx context.Context, runID string) ([]TradeRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE run_id = ? ORDER BY exit_time, trade_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TradeRecord
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (j *SQLiteJournal) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var r RunRecord
	err := j.db.QueryRowContext(ctx, `
		SELECT run_id, name, instrument, strategy, started_at, finished_at, data_start, data_end,
		       starting_balance, ending_balance, net_pnl, trades, win_rate, max_drawdown,
		       sharpe, profit_factor, params
		FROM backtest_runs WHERE run_id = ?`, runID,
	).Scan(&r.RunID, &r.Name, &r.Instrument, &r.Strategy, &r.StartedAt, &r.FinishedAt,
		&r.DataStart, &r.DataEnd, &r.StartingBalance, &r.EndingBalance, &r.NetPnL,
		&r.Trades, &r.WinRate, &r.MaxDrawdown, &r.Sharpe, &r.ProfitFactor, &r.Params)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return r, err
}

// ListRuns returns every stored run, newest first.
func (j *SQLiteJournal) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := j.db.QueryContext(ctx,
		`SELECT run_id FROM backtest_runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]RunRecord, 0, len(ids))
	for _, id := range ids {
		r, err := j.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
