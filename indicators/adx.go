package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/meanrev/market"
)

// ADX implements Wilder's Average Directional Index (trend strength).
// Usage:
//
//	adx := indicators.NewADX(14)
//	adx.Update(bar)
//	if adx.Ready() && adx.Value() >= 25 { ... }
type ADX struct {
	period int

	prev     market.Bar
	havePrev bool

	// Wilder-smoothed averages after warmup.
	tr  float64
	pdm float64
	mdm float64

	pdi, mdi float64

	adx   float64
	dxSum float64

	// count of bars processed, including the first prev seed
	count int
	ready bool
}

func NewADX(period int) *ADX {
	return &ADX{period: period}
}

func (a *ADX) Name() string {
	return fmt.Sprintf("ADX(%d)", a.period)
}

// Warmup is Period bars to seed the TR/DM averages, Period DX values to
// seed ADX, and one leading bar for the first difference.
func (a *ADX) Warmup() int { return 2*a.period + 1 }

func (a *ADX) Reset() {
	*a = ADX{period: a.period}
}

func (a *ADX) Value() float64 {
	if !a.ready {
		return 0
	}
	return a.adx
}

// DI returns the current +DI and -DI.
func (a *ADX) DI() (plus, minus float64) { return a.pdi, a.mdi }

func (a *ADX) Ready() bool {
	return a.ready
}

func (a *ADX) Update(b market.Bar) {
	if !a.havePrev {
		a.prev = b
		a.havePrev = true
		a.count = 1
		return
	}

	upMove := b.High - a.prev.High
	downMove := a.prev.Low - b.Low

	var pdm, mdm float64
	if upMove > downMove && upMove > 0 {
		pdm = upMove
	}
	if downMove > upMove && downMove > 0 {
		mdm = downMove
	}
	tr := trueRange(b, a.prev)

	a.prev = b
	a.count++

	p := a.period
	if a.count <= p+1 {
		a.tr += tr
		a.pdm += pdm
		a.mdm += mdm
		if a.count == p+1 {
			a.tr /= float64(p)
			a.pdm /= float64(p)
			a.mdm /= float64(p)
			a.updateDI()
		}
		return
	}

	a.tr = wilder(a.tr, tr, p)
	a.pdm = wilder(a.pdm, pdm, p)
	a.mdm = wilder(a.mdm, mdm, p)
	dx := a.updateDI()

	// DX values from count Period+2 through 2*Period+1 seed ADX.
	if !a.ready {
		a.dxSum += dx
		if a.count == 2*p+1 {
			a.adx = a.dxSum / float64(p)
			a.ready = true
		}
		return
	}
	a.adx = wilder(a.adx, dx, p)
}

func (a *ADX) updateDI() float64 {
	if a.tr == 0 {
		a.pdi, a.mdi = 0, 0
		return 0
	}
	a.pdi = 100 * a.pdm / a.tr
	a.mdi = 100 * a.mdm / a.tr
	den := a.pdi + a.mdi
	if den == 0 {
		return 0
	}
	return 100 * math.Abs(a.pdi-a.mdi) / den
}
