package indicators

import (
	"fmt"

	"github.com/rustyeddy/meanrev/market"
)

// StdDev is the population standard deviation of closes over a
// sliding window.
type StdDev struct {
	period int
	win    window
}

func NewStdDev(period int) *StdDev {
	return &StdDev{period: period, win: newWindow(period)}
}

func (s *StdDev) Name() string          { return fmt.Sprintf("StdDev(%d)", s.period) }
func (s *StdDev) Warmup() int           { return s.period }
func (s *StdDev) Reset()                { s.win.reset() }
func (s *StdDev) Ready() bool           { return s.win.full() }
func (s *StdDev) Update(bar market.Bar) { s.win.push(bar.Close) }
func (s *StdDev) Mean() float64         { return s.win.mean() }

func (s *StdDev) Value() float64 {
	if !s.Ready() {
		return 0
	}
	return s.win.stddev()
}

// Bollinger is an SMA of closes plus/minus K population standard
// deviations over the same window.
type Bollinger struct {
	k  float64
	sd *StdDev
}

func NewBollinger(period int, k float64) *Bollinger {
	return &Bollinger{k: k, sd: NewStdDev(period)}
}

func (b *Bollinger) Name() string {
	return fmt.Sprintf("BB(%d,%.1f)", b.sd.period, b.k)
}

func (b *Bollinger) Warmup() int           { return b.sd.Warmup() }
func (b *Bollinger) Reset()                { b.sd.Reset() }
func (b *Bollinger) Ready() bool           { return b.sd.Ready() }
func (b *Bollinger) Update(bar market.Bar) { b.sd.Update(bar) }

// Value returns the middle band.
func (b *Bollinger) Value() float64 {
	if !b.Ready() {
		return 0
	}
	return b.sd.Mean()
}

// Bands returns upper, middle, lower.
func (b *Bollinger) Bands() (upper, mid, lower float64) {
	if !b.Ready() {
		return 0, 0, 0
	}
	mid = b.sd.Mean()
	off := b.k * b.sd.Value()
	return mid + off, mid, mid - off
}

// Keltner is an EMA of closes plus/minus mult times ATR.
type Keltner struct {
	mult float64
	ema  *ExponentialMA
	atr  *ATR
}

func NewKeltner(emaPeriod, atrPeriod int, mult float64) *Keltner {
	return &Keltner{mult: mult, ema: NewEMA(emaPeriod), atr: NewATR(atrPeriod)}
}

func (k *Keltner) Name() string {
	return fmt.Sprintf("KC(%d,%d,%.1f)", k.ema.period, k.atr.period, k.mult)
}

func (k *Keltner) Warmup() int {
	return max(k.ema.Warmup(), k.atr.Warmup())
}

func (k *Keltner) Reset() {
	k.ema.Reset()
	k.atr.Reset()
}

func (k *Keltner) Update(b market.Bar) {
	k.ema.Update(b)
	k.atr.Update(b)
}

func (k *Keltner) Ready() bool { return k.ema.Ready() && k.atr.Ready() }

// Value returns the middle line.
func (k *Keltner) Value() float64 {
	if !k.Ready() {
		return 0
	}
	return k.ema.Value()
}

// Bands returns upper, middle, lower.
func (k *Keltner) Bands() (upper, mid, lower float64) {
	if !k.Ready() {
		return 0, 0, 0
	}
	mid = k.ema.Value()
	off := k.mult * k.atr.Value()
	return mid + off, mid, mid - off
}

// VWAP is the session volume-weighted average of the typical price. It
// restarts whenever the bar's SessionID changes.
type VWAP struct {
	session string
	pv      float64
	vol     float64
	last    float64
	seen    bool
}

func NewVWAP() *VWAP { return &VWAP{} }

func (v *VWAP) Name() string { return "VWAP" }
func (v *VWAP) Warmup() int  { return 1 }

func (v *VWAP) Reset() {
	*v = VWAP{}
}

func (v *VWAP) Update(b market.Bar) {
	if !v.seen || b.SessionID != v.session {
		v.session = b.SessionID
		v.pv, v.vol = 0, 0
	}
	tp := b.Typical()
	v.pv += tp * b.Volume
	v.vol += b.Volume
	v.last = tp
	v.seen = true
}

func (v *VWAP) Ready() bool { return v.seen }

// Value returns the session VWAP, or the last typical price while the
// session has traded no volume.
func (v *VWAP) Value() float64 {
	if !v.seen {
		return 0
	}
	if v.vol == 0 {
		return v.last
	}
	return v.pv / v.vol
}

// Session returns the session the current value belongs to.
func (v *VWAP) Session() string { return v.session }
