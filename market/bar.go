// Package market holds the price types shared by every pipeline stage:
// input ticks, aggregated bars, trade direction and the trading calendar.
package market

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrMalformedInput is returned for ticks that violate OHLCV consistency.
var ErrMalformedInput = errors.New("malformed input")

// Direction is the side of a signal or position.
type Direction int8

const (
	Long  Direction = 1
	Short Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "unknown"
	}
}

// Sign returns +1 for Long and -1 for Short.
func (d Direction) Sign() float64 { return float64(d) }

// Tick is a fine-grained input bar (or a single trade print where
// Open == High == Low == Close).
type Tick struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Validate reports whether the tick is internally consistent.
func (t Tick) Validate() error {
	if t.Time.IsZero() {
		return fmt.Errorf("%w: zero timestamp", ErrMalformedInput)
	}
	for _, v := range []float64{t.Open, t.High, t.Low, t.Close, t.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: non-finite value at %s", ErrMalformedInput, t.Time.Format(time.RFC3339))
		}
	}
	if t.Volume < 0 {
		return fmt.Errorf("%w: negative volume %.2f", ErrMalformedInput, t.Volume)
	}
	if t.Low <= 0 {
		return fmt.Errorf("%w: non-positive low %.4f", ErrMalformedInput, t.Low)
	}
	if t.High < math.Max(t.Open, t.Close) || t.Low > math.Min(t.Open, t.Close) {
		return fmt.Errorf("%w: high/low do not bracket open/close at %s", ErrMalformedInput, t.Time.Format(time.RFC3339))
	}
	return nil
}

// Bar is a closed fixed-interval OHLCV aggregate. Bars are values and are
// never modified after the aggregator emits them.
type Bar struct {
	Start     time.Time
	End       time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	SessionID string
	Interval  time.Duration
	Synthetic bool
}

// Typical returns (high+low+close)/3, the price used for VWAP.
func (b Bar) Typical() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// Range returns high-low.
func (b Bar) Range() float64 { return b.High - b.Low }

func (b Bar) String() string {
	return fmt.Sprintf("%s %s O=%.2f H=%.2f L=%.2f C=%.2f V=%.0f",
		b.Start.UTC().Format(time.RFC3339), b.Interval, b.Open, b.High, b.Low, b.Close, b.Volume)
}
