package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rustyeddy/meanrev/config"
	"github.com/rustyeddy/meanrev/feed"
	"github.com/rustyeddy/meanrev/journal"
	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/review"
	"github.com/rustyeddy/meanrev/risk"
)

// dataFlags select the input range shared by every command that reads
// history.
type dataFlags struct {
	path string
	from string
	to   string
}

func parseBound(name, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad --%s %q: want RFC3339 or YYYY-MM-DD", name, s)
}

func (d dataFlags) bounds() (time.Time, time.Time, error) {
	from, err := parseBound("from", d.from)
	if err != nil {
		return from, from, err
	}
	to, err := parseBound("to", d.to)
	return from, to, err
}

// openFeed returns a feed over the configured source. The --data flag
// overrides data.path.
func openFeed(ctx context.Context, cfg *config.Config, d dataFlags) (feed.TickFeed, error) {
	from, to, err := d.bounds()
	if err != nil {
		return nil, err
	}
	switch cfg.Data.Source {
	case "clickhouse":
		db, err := feed.OpenClickHouse(ctx, cfg.Data.ClickHouse)
		if err != nil {
			return nil, err
		}
		defer db.Close()
		src, err := feed.NewClickHouseSource(db, cfg.Data.ClickHouse)
		if err != nil {
			return nil, err
		}
		ticks, err := src.Load(ctx, from, to)
		if err != nil {
			return nil, err
		}
		return feed.NewSliceFeed(ticks), nil
	case "dukascopy":
		return feed.OpenDukascopy(cfg.Data.Dukascopy, from, to)
	default:
		path := d.path
		if path == "" {
			path = cfg.Data.Path
		}
		if path == "" {
			return nil, fmt.Errorf("--data or data.path is required for the csv source")
		}
		return feed.OpenCSV(path, from, to)
	}
}

func loadTicks(ctx context.Context, cfg *config.Config, d dataFlags) ([]market.Tick, error) {
	f, err := openFeed(ctx, cfg, d)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return feed.ReadAll(f)
}

// sinks are the outputs a run writes to. Close releases all of them.
type sinks struct {
	journal journal.Journal
	sqlite  *journal.SQLiteJournal
	limits  risk.StateStore
	review  *review.Dispatcher
	closers []func() error
}

func (s *sinks) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// openSinks builds the journal, the limit store and, when enabled, the
// review dispatcher.
func openSinks(cfg *config.Config, withReview bool, log zerolog.Logger) (*sinks, error) {
	s := &sinks{}
	switch cfg.Journal.Type {
	case "csv":
		j, err := journal.NewCSV(cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
		s.journal = j
		s.closers = append(s.closers, j.Close)
	case "sqlite":
		j, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return nil, err
		}
		s.journal, s.sqlite = j, j
		s.closers = append(s.closers, j.Close)
	}

	switch cfg.Limits.Store {
	case "sqlite":
		if s.sqlite == nil {
			j, err := journal.NewSQLite(cfg.Journal.DBPath)
			if err != nil {
				s.Close()
				return nil, err
			}
			s.sqlite = j
			s.closers = append(s.closers, j.Close)
		}
		s.limits = s.sqlite.LimitStore(cfg.Account.ID)
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Limits.RedisAddr})
		s.closers = append(s.closers, rdb.Close)
		s.limits = journal.NewRedisLimitStore(rdb, cfg.Limits.Prefix, cfg.Account.ID, cfg.Limits.TTL)
	}

	if withReview && cfg.Review.Enabled {
		sink, err := review.NewKafkaSink(cfg.Review.KafkaConfig)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.review = review.NewDispatcher(sink, cfg.Review.Dispatcher, log)
		s.closers = append(s.closers, s.review.Close)
	}
	return s, nil
}
