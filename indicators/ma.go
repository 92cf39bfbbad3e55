package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/meanrev/market"
)

// window is a fixed-size ring of float64 with a running sum. The mean
// is O(1) per update; the variance walks the ring.
type window struct {
	vals []float64
	next int
	n    int
	sum  float64
}

func newWindow(size int) window {
	return window{vals: make([]float64, size)}
}

func (w *window) push(v float64) {
	if w.n == len(w.vals) {
		w.sum -= w.vals[w.next]
	} else {
		w.n++
	}
	w.vals[w.next] = v
	w.next = (w.next + 1) % len(w.vals)
	w.sum += v
}

func (w *window) full() bool { return w.n == len(w.vals) }

func (w *window) mean() float64 {
	if w.n == 0 {
		return 0
	}
	return w.sum / float64(w.n)
}

// stddev is the population standard deviation of the window, taken
// about the mean of the values held so it does not cancel at large
// price levels.
func (w *window) stddev() float64 {
	if w.n == 0 {
		return 0
	}
	vals := w.vals[:w.n]
	var m float64
	for _, v := range vals {
		m += v
	}
	m /= float64(w.n)
	var ss float64
	for _, v := range vals {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(w.n))
}

func (w *window) reset() {
	clear(w.vals)
	w.next, w.n = 0, 0
	w.sum = 0
}

// SimpleMA is a streaming Simple Moving Average of a bar field.
type SimpleMA struct {
	period int
	field  func(market.Bar) float64
	win    window
}

// NewMA creates a Simple Moving Average of closes.
func NewMA(period int) *SimpleMA {
	return newFieldMA(period, closeOf)
}

// NewVolumeMA creates a Simple Moving Average of volume.
func NewVolumeMA(period int) *SimpleMA {
	return newFieldMA(period, volumeOf)
}

func newFieldMA(period int, field func(market.Bar) float64) *SimpleMA {
	return &SimpleMA{period: period, field: field, win: newWindow(period)}
}

func closeOf(b market.Bar) float64  { return b.Close }
func volumeOf(b market.Bar) float64 { return b.Volume }

func (m *SimpleMA) Name() string {
	return fmt.Sprintf("MA(%d)", m.period)
}

func (m *SimpleMA) Warmup() int { return m.period }
func (m *SimpleMA) Reset()      { m.win.reset() }
func (m *SimpleMA) Ready() bool { return m.win.full() }
func (m *SimpleMA) Update(b market.Bar) {
	m.win.push(m.field(b))
}

func (m *SimpleMA) Value() float64 {
	if !m.Ready() {
		return 0
	}
	return m.win.mean()
}

// ExponentialMA is a streaming Exponential Moving Average of closes,
// seeded with the simple average of the first period closes.
type ExponentialMA struct {
	period     int
	multiplier float64
	ema        float64
	count      int
	warmupSum  float64
}

// NewEMA creates a new Exponential Moving Average indicator with the given period
func NewEMA(period int) *ExponentialMA {
	return &ExponentialMA{
		period:     period,
		multiplier: 2.0 / float64(period+1),
	}
}

func (e *ExponentialMA) Name() string {
	return fmt.Sprintf("EMA(%d)", e.period)
}

func (e *ExponentialMA) Warmup() int { return e.period }

func (e *ExponentialMA) Reset() {
	e.ema = 0
	e.count = 0
	e.warmupSum = 0
}

func (e *ExponentialMA) Update(b market.Bar) {
	e.update(b.Close)
}

func (e *ExponentialMA) update(v float64) {
	if e.count < e.period {
		e.warmupSum += v
		e.count++
		if e.count == e.period {
			e.ema = e.warmupSum / float64(e.period)
		}
		return
	}
	e.ema = (v-e.ema)*e.multiplier + e.ema
}

func (e *ExponentialMA) Ready() bool {
	return e.count >= e.period
}

func (e *ExponentialMA) Value() float64 {
	if !e.Ready() {
		return 0
	}
	return e.ema
}
