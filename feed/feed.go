// Package feed reads historical input ticks for replays and backtests.
package feed

import (
	"time"

	"github.com/rustyeddy/meanrev/market"
)

// TickFeed yields ticks one at a time. Implementations are
// deterministic and return (ok=false, err=nil) at EOF.
type TickFeed interface {
	Next() (t market.Tick, ok bool, err error)
	Close() error
}

// SliceFeed replays ticks already in memory.
type SliceFeed struct {
	ticks []market.Tick
	i     int
}

func NewSliceFeed(ticks []market.Tick) *SliceFeed {
	return &SliceFeed{ticks: ticks}
}

func (s *SliceFeed) Next() (market.Tick, bool, error) {
	if s.i >= len(s.ticks) {
		return market.Tick{}, false, nil
	}
	t := s.ticks[s.i]
	s.i++
	return t, true, nil
}

func (s *SliceFeed) Close() error { return nil }

// ReadAll drains f and closes it.
func ReadAll(f TickFeed) ([]market.Tick, error) {
	defer f.Close()
	var out []market.Tick
	for {
		t, ok, err := f.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, t)
	}
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}
