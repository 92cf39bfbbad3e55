package sim

import "github.com/rustyeddy/meanrev/market"

// hitStop reports whether the bar traded through the stop and the
// price a stop order would get, which is the open on a gap.
func hitStop(p *Position, b market.Bar) (float64, bool) {
	if p.Direction == market.Long {
		if b.Low <= p.Stop {
			return min(b.Open, p.Stop), true
		}
		return 0, false
	}
	if b.High >= p.Stop {
		return max(b.Open, p.Stop), true
	}
	return 0, false
}

// hitLimit reports whether a favourable limit at level traded, and the
// fill, which improves to the open on a gap.
func hitLimit(d market.Direction, level float64, b market.Bar) (float64, bool) {
	if d == market.Long {
		if b.High >= level {
			return max(b.Open, level), true
		}
		return 0, false
	}
	if b.Low <= level {
		return min(b.Open, level), true
	}
	return 0, false
}

// better returns whichever of a and b is the tighter stop for d.
func better(d market.Direction, a, b float64) float64 {
	if d == market.Long {
		return max(a, b)
	}
	return min(a, b)
}
