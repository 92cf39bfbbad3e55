package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/rustyeddy/meanrev/market"
)

// ClickHouseConfig points at a bar table with columns
// (symbol, ts, open, high, low, close, volume).
type ClickHouseConfig struct {
	DSN          string        `yaml:"dsn"`
	Table        string        `yaml:"table" default:"bars_1m"`
	Symbol       string        `yaml:"symbol" default:"MES"`
	QueryTimeout time.Duration `yaml:"query_timeout" default:"30s"`
}

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// OpenClickHouse opens and pings the database at cfg.DSN.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*sql.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("clickhouse: dsn is required")
	}
	db, err := sql.Open("clickhouse", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return db, nil
}

// ClickHouseSource loads historical bars for one symbol as input ticks.
// It only reads; the analytical store is owned elsewhere.
type ClickHouseSource struct {
	db  *sql.DB
	cfg ClickHouseConfig
}

func NewClickHouseSource(db *sql.DB, cfg ClickHouseConfig) (*ClickHouseSource, error) {
	if !tableName.MatchString(cfg.Table) {
		return nil, fmt.Errorf("clickhouse: invalid table name %q", cfg.Table)
	}
	if cfg.Symbol == "" {
		return nil, errors.New("clickhouse: symbol is required")
	}
	return &ClickHouseSource{db: db, cfg: cfg}, nil
}

func (s *ClickHouseSource) query() string {
	return `SELECT ts, open, high, low, close, volume FROM ` + s.cfg.Table +
		` WHERE symbol = ? AND ts >= ? AND ts < ? ORDER BY ts`
}

// Load returns every bar in [from, to) in time order.
func (s *ClickHouseSource) Load(ctx context.Context, from, to time.Time) ([]market.Tick, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("clickhouse: empty range %s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	if s.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.QueryTimeout)
		defer cancel()
	}

	rows, err := s.db.QueryContext(ctx, s.query(), s.cfg.Symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("clickhouse query: %w", err)
	}
	defer rows.Close()

	var out []market.Tick
	for rows.Next() {
		var t market.Tick
		if err := rows.Scan(&t.Time, &t.Open, &t.High, &t.Low, &t.Close, &t.Volume); err != nil {
			return nil, fmt.Errorf("clickhouse scan: %w", err)
		}
		t.Time = t.Time.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("clickhouse rows: %w", err)
	}
	return out, nil
}
