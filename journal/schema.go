package journal

// Schema creates every journal table. Money columns are TEXT so that
// decimal values round-trip exactly.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	position_id TEXT NOT NULL,
	strategy_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	direction TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	entry_price TEXT NOT NULL,
	exit_price TEXT NOT NULL,
	entry_time DATETIME NOT NULL,
	exit_time DATETIME NOT NULL,
	gross_pnl TEXT NOT NULL,
	fees TEXT NOT NULL,
	slippage TEXT NOT NULL,
	realized_pl TEXT NOT NULL,
	r_multiple REAL NOT NULL,
	reason TEXT NOT NULL,
	final INTEGER NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE INDEX IF NOT EXISTS idx_trades_exit ON trades(run_id, exit_time);

CREATE TABLE IF NOT EXISTS position_snapshots (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	position_id TEXT NOT NULL,
	strategy_id TEXT NOT NULL,
	direction TEXT NOT NULL,
	status TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	remaining INTEGER NOT NULL,
	entry_price TEXT NOT NULL,
	stop TEXT NOT NULL,
	target TEXT NOT NULL,
	mark TEXT NOT NULL,
	unrealized TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_time ON position_snapshots(run_id, time);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	time DATETIME NOT NULL,
	balance TEXT NOT NULL,
	equity TEXT NOT NULL,
	open_positions INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(run_id, time);

CREATE TABLE IF NOT EXISTS limit_state (
	account TEXT PRIMARY KEY,
	session TEXT NOT NULL,
	week TEXT NOT NULL,
	realized_today REAL NOT NULL,
	realized_week REAL NOT NULL,
	trades_today INTEGER NOT NULL,
	last_loss DATETIME,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS backtest_runs (
	run_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	instrument TEXT NOT NULL,
	strategy TEXT NOT NULL,
	started_at DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	data_start DATETIME NOT NULL,
	data_end DATETIME NOT NULL,
	starting_balance TEXT NOT NULL,
	ending_balance TEXT NOT NULL,
	net_pnl TEXT NOT NULL,
	trades INTEGER NOT NULL,
	win_rate REAL NOT NULL,
	max_drawdown REAL NOT NULL,
	sharpe REAL NOT NULL,
	profit_factor REAL NOT NULL,
	params TEXT NOT NULL
);
`
