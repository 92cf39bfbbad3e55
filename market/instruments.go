// market/instruments.go
package market

import (
	"fmt"
	"math"
)

// Instrument describes contract economics. PointValue is the account
// currency value of a one point move for one unit.
type Instrument struct {
	Symbol            string  `yaml:"symbol" json:"symbol" default:"MES" validate:"required"`
	TickSize          float64 `yaml:"tick_size" json:"tick_size" default:"0.25" validate:"gt=0"`
	PointValue        float64 `yaml:"point_value" json:"point_value" default:"5" validate:"gt=0"`
	CommissionPerSide float64 `yaml:"commission_per_side" json:"commission_per_side" default:"0.31" validate:"gte=0"`
}

var Instruments = map[string]Instrument{
	"MES": {
		Symbol:            "MES",
		TickSize:          0.25,
		PointValue:        5,
		CommissionPerSide: 0.31,
	},
	"ES": {
		Symbol:            "ES",
		TickSize:          0.25,
		PointValue:        50,
		CommissionPerSide: 1.29,
	},
	"MNQ": {
		Symbol:            "MNQ",
		TickSize:          0.25,
		PointValue:        2,
		CommissionPerSide: 0.31,
	},
}

// LookupInstrument returns the built-in contract details for symbol.
func LookupInstrument(symbol string) (Instrument, error) {
	in, ok := Instruments[symbol]
	if !ok {
		return Instrument{}, fmt.Errorf("unknown instrument %q", symbol)
	}
	return in, nil
}

// Round rounds price to the nearest tick. Instruments without a tick
// size are returned unchanged.
func (i Instrument) Round(price float64) float64 {
	if i.TickSize <= 0 {
		return price
	}
	return math.Round(math.Round(price/i.TickSize)*i.TickSize*1e10) / 1e10
}

// Ticks converts a price distance into ticks.
func (i Instrument) Ticks(distance float64) float64 {
	if i.TickSize <= 0 {
		return distance
	}
	return distance / i.TickSize
}
