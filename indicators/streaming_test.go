package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/meanrev/market"
)

var baseTime = time.Date(2024, 1, 8, 15, 0, 0, 0, time.UTC)

func closes(vals ...float64) []market.Bar {
	bars := make([]market.Bar, len(vals))
	for i, c := range vals {
		start := baseTime.Add(time.Duration(i) * time.Minute)
		bars[i] = market.Bar{
			Start: start, End: start.Add(time.Minute),
			Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 100,
			SessionID: "2024-01-08", Interval: time.Minute,
		}
	}
	return bars
}

func TestSimpleMAStreaming(t *testing.T) {
	bars := closes(102, 105, 106, 108, 110)

	t.Run("basic functionality", func(t *testing.T) {
		ma := NewMA(3)
		assert.Equal(t, "MA(3)", ma.Name())
		assert.Equal(t, 3, ma.Warmup())
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())

		ma.Update(bars[0])
		ma.Update(bars[1])
		assert.False(t, ma.Ready())

		ma.Update(bars[2])
		assert.True(t, ma.Ready())
		assert.InDelta(t, (102.0+105.0+106.0)/3.0, ma.Value(), 0.001)

		ma.Update(bars[3])
		assert.InDelta(t, (105.0+106.0+108.0)/3.0, ma.Value(), 0.001)
	})

	t.Run("reset functionality", func(t *testing.T) {
		ma := NewMA(2)
		ma.Update(bars[0])
		ma.Update(bars[1])
		assert.True(t, ma.Ready())

		ma.Reset()
		assert.False(t, ma.Ready())
		assert.Equal(t, 0.0, ma.Value())
	})
}

func TestExponentialMAStreaming(t *testing.T) {
	bars := closes(102, 105, 106, 108, 110, 111, 113)

	t.Run("seeded by simple average", func(t *testing.T) {
		ema := NewEMA(3)
		assert.Equal(t, "EMA(3)", ema.Name())

		ema.Update(bars[0])
		ema.Update(bars[1])
		assert.False(t, ema.Ready())

		ema.Update(bars[2])
		require.True(t, ema.Ready())
		seed := (102.0 + 105.0 + 106.0) / 3.0
		assert.InDelta(t, seed, ema.Value(), 0.001)

		// multiplier = 2/(3+1) = 0.5
		ema.Update(bars[3])
		assert.InDelta(t, (108.0-seed)*0.5+seed, ema.Value(), 0.001)
	})

	t.Run("reset functionality", func(t *testing.T) {
		ema := NewEMA(2)
		ema.Update(bars[0])
		ema.Update(bars[1])
		assert.True(t, ema.Ready())

		ema.Reset()
		assert.False(t, ema.Ready())
		assert.Equal(t, 0.0, ema.Value())
	})
}

func TestAverageTrueRangeStreaming(t *testing.T) {
	hlc := [][3]float64{{10, 8, 9}, {11, 9, 10}, {12, 10, 11}, {11, 9, 10}, {12, 10, 11}, {13, 11, 12}}
	bars := make([]market.Bar, len(hlc))
	for i, v := range hlc {
		bars[i] = market.Bar{High: v[0], Low: v[1], Close: v[2], Open: v[2]}
	}

	atr := NewATR(3)
	assert.Equal(t, 4, atr.Warmup())
	for i, b := range bars {
		atr.Update(b)
		if i < 3 {
			assert.False(t, atr.Ready(), "bar %d", i)
		}
	}
	require.True(t, atr.Ready())
	// Every true range is 2, so the Wilder average stays at 2.
	assert.InDelta(t, 2.0, atr.Value(), 1e-9)
}

func TestTrueRange(t *testing.T) {
	current := market.Bar{High: 110, Low: 100, Close: 105}
	previous := market.Bar{Close: 112}
	assert.Equal(t, 12.0, trueRange(current, previous))
}

func TestRSI(t *testing.T) {
	t.Run("all gains reads 100", func(t *testing.T) {
		rsi := NewRSI(5)
		for _, b := range closes(1, 2, 3, 4, 5, 6, 7) {
			rsi.Update(b)
		}
		require.True(t, rsi.Ready())
		assert.Equal(t, 100.0, rsi.Value())
	})

	t.Run("all losses reads 0", func(t *testing.T) {
		rsi := NewRSI(5)
		for _, b := range closes(10, 9, 8, 7, 6, 5) {
			rsi.Update(b)
		}
		require.True(t, rsi.Ready())
		assert.InDelta(t, 0.0, rsi.Value(), 1e-9)
	})

	t.Run("alternating moves read 50", func(t *testing.T) {
		rsi := NewRSI(4)
		for _, b := range closes(10, 11, 10, 11, 10) {
			rsi.Update(b)
		}
		require.True(t, rsi.Ready())
		assert.InDelta(t, 50.0, rsi.Value(), 1e-9)
	})

	t.Run("wilder smoothing", func(t *testing.T) {
		rsi := NewRSI(2)
		// changes: +2, -1 seed avgGain=1 avgLoss=0.5; then +1 -> gain=(1+1)/2=1, loss=0.25
		for _, b := range closes(10, 12, 11, 12) {
			rsi.Update(b)
		}
		assert.InDelta(t, 100-100/(1+1/0.25), rsi.Value(), 1e-9)
	})
}

func TestBollinger(t *testing.T) {
	bb := NewBollinger(4, 2)
	for _, b := range closes(2, 4, 4, 6) {
		bb.Update(b)
	}
	require.True(t, bb.Ready())
	upper, mid, lower := bb.Bands()
	// mean 4, population variance (4+0+0+4)/4 = 2
	assert.InDelta(t, 4.0, mid, 1e-9)
	assert.InDelta(t, 4+2*math.Sqrt2, upper, 1e-9)
	assert.InDelta(t, 4-2*math.Sqrt2, lower, 1e-9)

	// window slides: 4,4,6,8 -> mean 5.5
	bb.Update(closes(8)[0])
	_, mid, _ = bb.Bands()
	assert.InDelta(t, 5.5, mid, 1e-9)
}

func TestStdDev(t *testing.T) {
	sd := NewStdDev(4)
	for _, b := range closes(2, 4, 4) {
		sd.Update(b)
	}
	assert.False(t, sd.Ready())
	assert.Zero(t, sd.Value())

	sd.Update(closes(6)[0])
	require.True(t, sd.Ready())
	assert.InDelta(t, math.Sqrt2, sd.Value(), 1e-9)
	assert.InDelta(t, 4.0, sd.Mean(), 1e-9)

	sd.Reset()
	assert.False(t, sd.Ready())
}

func TestStdDevAtPriceLevel(t *testing.T) {
	const period = 20
	sd := NewStdDev(period)
	vals := make([]float64, 20000)
	for i := range vals {
		vals[i] = 5000 + 0.25*float64(i%3) + 0.25*float64(i%7)
	}
	for _, b := range closes(vals...) {
		sd.Update(b)
	}

	last := vals[len(vals)-period:]
	var m, ss float64
	for _, v := range last {
		m += v
	}
	m /= period
	for _, v := range last {
		ss += (v - m) * (v - m)
	}
	require.True(t, sd.Ready())
	assert.InDelta(t, math.Sqrt(ss/period), sd.Value(), 1e-9)

	flat := NewStdDev(period)
	for range 5000 {
		flat.Update(market.Bar{Close: 5000.25})
	}
	assert.Zero(t, flat.Value())
}

func TestVWAPResetsOnSession(t *testing.T) {
	v := NewVWAP()
	b1 := market.Bar{High: 11, Low: 9, Close: 10, Volume: 100, SessionID: "a"}
	b2 := market.Bar{High: 21, Low: 19, Close: 20, Volume: 300, SessionID: "a"}
	v.Update(b1)
	v.Update(b2)
	assert.InDelta(t, (10*100+20*300)/400.0, v.Value(), 1e-9)

	b3 := market.Bar{High: 31, Low: 29, Close: 30, Volume: 50, SessionID: "b"}
	v.Update(b3)
	assert.InDelta(t, 30.0, v.Value(), 1e-9)
	assert.Equal(t, "b", v.Session())
}

func TestADXTrendingSeries(t *testing.T) {
	adx := NewADX(5)
	assert.Equal(t, 11, adx.Warmup())

	for i := 0; i < 30; i++ {
		c := 100 + float64(i)
		adx.Update(market.Bar{Open: c, High: c + 1, Low: c - 1, Close: c})
		if i < 10 {
			assert.False(t, adx.Ready(), "bar %d", i)
		}
	}
	require.True(t, adx.Ready())
	// A steady uptrend has no -DM, so DX and ADX are 100.
	assert.InDelta(t, 100.0, adx.Value(), 1e-6)
	plus, minus := adx.DI()
	assert.Greater(t, plus, minus)

	adx.Reset()
	assert.False(t, adx.Ready())
	assert.Equal(t, 0.0, adx.Value())
}

func TestIndicatorInterface(t *testing.T) {
	var inds = []Indicator{
		NewMA(5), NewEMA(5), NewATR(5), NewRSI(5), NewADX(5),
		NewStdDev(5), NewBollinger(5, 2), NewKeltner(5, 5, 1.5), NewVWAP(), NewVolumeMA(5),
	}
	for _, ind := range inds {
		assert.NotEmpty(t, ind.Name())
		assert.Positive(t, ind.Warmup())
		assert.False(t, ind.Ready())
	}
}
