// Package pricing folds fine-grained ticks into fixed-interval bars.
package pricing

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rustyeddy/meanrev/market"
)

// ErrOutOfOrder is returned for input timestamped before the open
// interval's start.
var ErrOutOfOrder = errors.New("out of order input")

// GapPolicy decides what happens to intervals that received no input.
type GapPolicy string

const (
	// GapSkip emits nothing for empty intervals.
	GapSkip GapPolicy = "skip"
	// GapFlat emits a zero-volume bar at the previous close for every
	// empty interval, marked Synthetic.
	GapFlat GapPolicy = "flat"
)

// ParseGapPolicy accepts "skip" or "flat".
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GapSkip:
		return GapSkip, nil
	case GapFlat:
		return GapFlat, nil
	default:
		return "", fmt.Errorf("unknown gap policy %q", s)
	}
}

// AggregatorConfig lists the target intervals and the gap policy.
type AggregatorConfig struct {
	Intervals []time.Duration
	Gaps      GapPolicy
}

type accumulator struct {
	interval time.Duration
	start    time.Time
	open     bool      // has received at least one input
	floor    time.Time // end of the last emitted bar

	o, h, l, c float64
	volume     float64
	lastClose  float64
}

func (a *accumulator) fold(t market.Tick) {
	if !a.open {
		a.o, a.h, a.l = t.Open, t.High, t.Low
		a.volume = 0
		a.open = true
	}
	if t.High > a.h {
		a.h = t.High
	}
	if t.Low < a.l {
		a.l = t.Low
	}
	a.c = t.Close
	a.volume += t.Volume
}

// close emits the open bar and raises the floor past it.
func (a *accumulator) close(cal *market.Calendar) market.Bar {
	b := a.bar(cal)
	a.lastClose = a.c
	a.open = false
	a.floor = b.End
	return b
}

func (a *accumulator) bar(cal *market.Calendar) market.Bar {
	return market.Bar{
		Start:     a.start,
		End:       a.start.Add(a.interval),
		Open:      a.o,
		High:      a.h,
		Low:       a.l,
		Close:     a.c,
		Volume:    a.volume,
		SessionID: cal.SessionID(a.start),
		Interval:  a.interval,
	}
}

func (a *accumulator) flat(start time.Time, cal *market.Calendar) market.Bar {
	return market.Bar{
		Start:     start,
		End:       start.Add(a.interval),
		Open:      a.lastClose,
		High:      a.lastClose,
		Low:       a.lastClose,
		Close:     a.lastClose,
		SessionID: cal.SessionID(start),
		Interval:  a.interval,
		Synthetic: true,
	}
}

// Aggregator keeps one accumulator per interval. It is not safe for
// concurrent use; the pipeline drives it from a single goroutine.
type Aggregator struct {
	cal  *market.Calendar
	gaps GapPolicy
	accs []*accumulator
}

// NewAggregator validates the interval list. Intervals must be positive
// and unique.
func NewAggregator(cfg AggregatorConfig, cal *market.Calendar) (*Aggregator, error) {
	if cal == nil {
		return nil, errors.New("aggregator: calendar is required")
	}
	if len(cfg.Intervals) == 0 {
		return nil, errors.New("aggregator: at least one interval is required")
	}
	gaps := cfg.Gaps
	if gaps == "" {
		gaps = GapSkip
	}
	if gaps != GapSkip && gaps != GapFlat {
		return nil, fmt.Errorf("aggregator: unknown gap policy %q", gaps)
	}

	seen := make(map[time.Duration]bool)
	ag := &Aggregator{cal: cal, gaps: gaps}
	for _, iv := range cfg.Intervals {
		if iv <= 0 {
			return nil, fmt.Errorf("aggregator: interval must be positive, got %s", iv)
		}
		if seen[iv] {
			return nil, fmt.Errorf("aggregator: duplicate interval %s", iv)
		}
		seen[iv] = true
		ag.accs = append(ag.accs, &accumulator{interval: iv})
	}
	return ag, nil
}

// Add folds one input and returns the bars it completed, ordered by end
// time and, for equal end times, coarsest interval first. A rejected
// input leaves every accumulator unchanged.
func (ag *Aggregator) Add(t market.Tick) ([]market.Bar, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for _, a := range ag.accs {
		if a.open && t.Time.Before(a.start) {
			return nil, fmt.Errorf("%w: %s before interval start %s (%s)",
				ErrOutOfOrder, t.Time.Format(time.RFC3339), a.start.Format(time.RFC3339), a.interval)
		}
		if t.Time.Before(a.floor) {
			return nil, fmt.Errorf("%w: %s before emitted bar end %s (%s)",
				ErrOutOfOrder, t.Time.Format(time.RFC3339), a.floor.Format(time.RFC3339), a.interval)
		}
	}

	var out []market.Bar
	for _, a := range ag.accs {
		start := t.Time.Truncate(a.interval)
		if a.open && !start.Equal(a.start) {
			out = append(out, a.close(ag.cal))
			if ag.gaps == GapFlat {
				for gap := a.start.Add(a.interval); gap.Before(start); gap = gap.Add(a.interval) {
					if ag.cal.InSession(gap) {
						fb := a.flat(gap, ag.cal)
						out = append(out, fb)
						a.floor = fb.End
					}
				}
			}
		}
		if !a.open {
			a.start = start
		}
		a.fold(t)
	}
	sortBars(out)
	return out, nil
}

// Flush closes every open accumulator, as at the end of a replay or a
// session. Later inputs that fall inside a flushed bar are rejected
// with ErrOutOfOrder.
func (ag *Aggregator) Flush() []market.Bar {
	var out []market.Bar
	for _, a := range ag.accs {
		if !a.open {
			continue
		}
		out = append(out, a.close(ag.cal))
	}
	sortBars(out)
	return out
}

func sortBars(bars []market.Bar) {
	sort.SliceStable(bars, func(i, j int) bool {
		if !bars[i].End.Equal(bars[j].End) {
			return bars[i].End.Before(bars[j].End)
		}
		return bars[i].Interval > bars[j].Interval
	})
}
