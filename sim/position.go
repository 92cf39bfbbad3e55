package sim

import (
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/meanrev/market"
)

var ErrInvalidTransition = errors.New("invalid position transition")

// Status is the lifecycle state of a position.
type Status int

const (
	Pending Status = iota
	Open
	PartiallyClosed
	Closed
	Cancelled
)

var statusNames = map[Status]string{
	Pending:         "pending",
	Open:            "open",
	PartiallyClosed: "partially_closed",
	Closed:          "closed",
	Cancelled:       "cancelled",
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Active reports whether the position still counts toward exposure.
func (s Status) Active() bool {
	return s == Pending || s == Open || s == PartiallyClosed
}

var transitions = map[Status][]Status{
	Pending:         {Open, Cancelled},
	Open:            {PartiallyClosed, Closed},
	PartiallyClosed: {Closed},
}

// CanTransition reports whether from→to is an allowed lifecycle step.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Position is one order from submission to its last exit.
type Position struct {
	ID         string
	StrategyID string
	Direction  market.Direction
	Status     Status

	SignalTime time.Time
	EntryTime  time.Time
	EntryPrice float64
	Quantity   int
	Remaining  int

	Stop        float64
	InitialStop float64
	Target      float64

	TrailingStop   float64
	TrailingActive bool
	ScaledOutQty   int

	ExitTime time.Time

	// per-unit entry costs carried into each exit's trade
	entrySlip float64
	entryFee  float64
}

func (p *Position) transition(to Status) error {
	if !CanTransition(p.Status, to) {
		return fmt.Errorf("%w: %s -> %s (position %s)", ErrInvalidTransition, p.Status, to, p.ID)
	}
	p.Status = to
	return nil
}

// InitialRisk is the per-unit distance from the fill to the original stop.
func (p *Position) InitialRisk() float64 {
	return (p.EntryPrice - p.InitialStop) * p.Direction.Sign()
}

// Unrealized returns the open P&L at mark, before exit costs.
func (p *Position) Unrealized(mark, pointValue float64) float64 {
	if p.Status != Open && p.Status != PartiallyClosed {
		return 0
	}
	return (mark - p.EntryPrice) * p.Direction.Sign() * float64(p.Remaining) * pointValue
}
