package indicators

import (
	"fmt"

	"github.com/rustyeddy/meanrev/market"
)

// ATR is a streaming Average True Range indicator
type ATR struct {
	period      int
	atr         float64
	count       int
	warmupSum   float64
	prevBar     market.Bar
	hasPrevious bool
}

// NewATR creates a new Average True Range indicator with the given period
func NewATR(period int) *ATR {
	return &ATR{
		period: period,
	}
}

func (a *ATR) Name() string {
	return fmt.Sprintf("ATR(%d)", a.period)
}

func (a *ATR) Warmup() int {
	// Need period+1 bars because TR requires the previous bar
	return a.period + 1
}

func (a *ATR) Reset() {
	a.atr = 0
	a.count = 0
	a.warmupSum = 0
	a.hasPrevious = false
}

func (a *ATR) Update(b market.Bar) {
	if !a.hasPrevious {
		a.prevBar = b
		a.hasPrevious = true
		return
	}

	tr := trueRange(b, a.prevBar)
	if a.count < a.period {
		a.warmupSum += tr
		a.count++
		if a.count == a.period {
			a.atr = a.warmupSum / float64(a.period)
		}
	} else {
		a.atr = wilder(a.atr, tr, a.period)
	}
	a.prevBar = b
}

func (a *ATR) Ready() bool {
	return a.count >= a.period
}

func (a *ATR) Value() float64 {
	if !a.Ready() {
		return 0
	}
	return a.atr
}

// RSI is Wilder's Relative Strength Index.
type RSI struct {
	period    int
	prevClose float64
	havePrev  bool
	count     int
	gainSum   float64
	lossSum   float64
	avgGain   float64
	avgLoss   float64
}

func NewRSI(period int) *RSI {
	return &RSI{period: period}
}

func (r *RSI) Name() string {
	return fmt.Sprintf("RSI(%d)", r.period)
}

func (r *RSI) Warmup() int { return r.period + 1 }

func (r *RSI) Reset() {
	*r = RSI{period: r.period}
}

func (r *RSI) Update(b market.Bar) {
	if !r.havePrev {
		r.prevClose = b.Close
		r.havePrev = true
		return
	}
	change := b.Close - r.prevClose
	r.prevClose = b.Close

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	if r.count < r.period {
		r.gainSum += gain
		r.lossSum += loss
		r.count++
		if r.count == r.period {
			r.avgGain = r.gainSum / float64(r.period)
			r.avgLoss = r.lossSum / float64(r.period)
		}
		return
	}
	r.avgGain = wilder(r.avgGain, gain, r.period)
	r.avgLoss = wilder(r.avgLoss, loss, r.period)
}

func (r *RSI) Ready() bool { return r.count >= r.period }

// Value returns RSI in [0,100]. A flat window reads 50.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return 0
	}
	if r.avgLoss == 0 {
		if r.avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := r.avgGain / r.avgLoss
	return 100 - 100/(1+rs)
}
