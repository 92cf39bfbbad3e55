// Package sim fills orders against bars and manages each position from
// entry to its last exit.
package sim

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rustyeddy/meanrev/market"
)

var ErrInvalidOrder = errors.New("invalid order")

// IDSource hands out position and trade identifiers.
type IDSource interface {
	Next(at time.Time) string
}

type TrailingConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" default:"true"`
	// ActivationR is the favourable move, in multiples of the initial
	// risk, before the stop starts trailing.
	ActivationR float64 `yaml:"activation_r" json:"activation_r" default:"1" validate:"gte=0"`
	ATRMult     float64 `yaml:"atr_mult" json:"atr_mult" default:"1.5" validate:"gt=0"`
}

type ScaleOutConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled" default:"true"`
	// R is the intermediate target in multiples of the initial risk.
	R        float64 `yaml:"r" json:"r" default:"1" validate:"gt=0"`
	Fraction float64 `yaml:"fraction" json:"fraction" default:"0.5" validate:"gt=0,lt=1"`
}

type Config struct {
	Instrument      market.Instrument `yaml:"instrument" json:"instrument"`
	StartingBalance float64           `yaml:"starting_balance" json:"starting_balance" default:"10000" validate:"gt=0"`
	// Slippage is added against the trader on market fills, in price
	// units plus whole ticks.
	Slippage      float64        `yaml:"slippage" json:"slippage" default:"0" validate:"gte=0"`
	SlippageTicks int            `yaml:"slippage_ticks" json:"slippage_ticks" default:"1" validate:"gte=0"`
	Trailing      TrailingConfig `yaml:"trailing" json:"trailing"`
	ScaleOut      ScaleOutConfig `yaml:"scale_out" json:"scale_out"`
}

func DefaultConfig() Config {
	return Config{
		Instrument:      market.Instruments["MES"],
		StartingBalance: 10000,
		SlippageTicks:   1,
		Trailing:        TrailingConfig{Enabled: true, ActivationR: 1, ATRMult: 1.5},
		ScaleOut:        ScaleOutConfig{Enabled: true, R: 1, Fraction: 0.5},
	}
}

func (c Config) Validate() error {
	switch {
	case c.Instrument.TickSize <= 0:
		return fmt.Errorf("sim.instrument.tick_size must be positive")
	case c.Instrument.PointValue <= 0:
		return fmt.Errorf("sim.instrument.point_value must be positive")
	case c.Instrument.CommissionPerSide < 0:
		return fmt.Errorf("sim.instrument.commission_per_side must not be negative")
	case c.StartingBalance <= 0:
		return fmt.Errorf("sim.starting_balance must be positive")
	case c.Slippage < 0 || c.SlippageTicks < 0:
		return fmt.Errorf("sim slippage must not be negative")
	case c.Trailing.Enabled && (c.Trailing.ATRMult <= 0 || c.Trailing.ActivationR < 0):
		return fmt.Errorf("sim.trailing needs a positive atr_mult and non-negative activation_r")
	case c.ScaleOut.Enabled && (c.ScaleOut.R <= 0 || c.ScaleOut.Fraction <= 0 || c.ScaleOut.Fraction >= 1):
		return fmt.Errorf("sim.scale_out needs a positive r and a fraction in (0,1)")
	}
	return nil
}

// OrderRequest is an approved, sized order waiting for the next bar.
type OrderRequest struct {
	StrategyID string
	Direction  market.Direction
	Quantity   int
	Stop       float64
	Target     float64
	SignalTime time.Time
}

// Simulator is the paper execution venue. It is driven by one pipeline
// but guards its state so readers on other goroutines see whole bars.
type Simulator struct {
	mu        sync.Mutex
	cfg       Config
	ids       IDSource
	positions []*Position
	balance   float64
	fills     int
}

func NewSimulator(cfg Config, ids IDSource) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if ids == nil {
		return nil, fmt.Errorf("sim: id source required")
	}
	return &Simulator{cfg: cfg, ids: ids, balance: cfg.StartingBalance}, nil
}

func (s *Simulator) slip() float64 {
	return s.cfg.Slippage + float64(s.cfg.SlippageTicks)*s.cfg.Instrument.TickSize
}

// Submit queues an order to fill at the next bar's open.
func (s *Simulator) Submit(req OrderRequest) (*Position, error) {
	if req.Quantity < 1 {
		return nil, fmt.Errorf("%w: quantity %d", ErrInvalidOrder, req.Quantity)
	}
	if req.Direction != market.Long && req.Direction != market.Short {
		return nil, fmt.Errorf("%w: direction %d", ErrInvalidOrder, req.Direction)
	}
	if req.Stop <= 0 || math.IsNaN(req.Stop) {
		return nil, fmt.Errorf("%w: stop %.2f", ErrInvalidOrder, req.Stop)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.cfg.Instrument
	p := &Position{
		ID:          s.ids.Next(req.SignalTime),
		StrategyID:  req.StrategyID,
		Direction:   req.Direction,
		Status:      Pending,
		SignalTime:  req.SignalTime,
		Quantity:    req.Quantity,
		Remaining:   req.Quantity,
		Stop:        in.Round(req.Stop),
		InitialStop: in.Round(req.Stop),
	}
	if req.Target > 0 {
		p.Target = in.Round(req.Target)
	}
	s.positions = append(s.positions, p)
	cp := *p
	return &cp, nil
}

// OnBar advances every position through b. Pending orders fill at the
// open, then exits are checked with the stop first when both sides
// trade, then the trailing stop ratchets for the next bar using atr.
func (s *Simulator) OnBar(b market.Bar, atr float64) ([]Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var trades []Trade
	for _, p := range s.positions {
		if p.Status == Pending {
			if err := s.fill(p, b); err != nil {
				return trades, err
			}
		}
		out, err := s.manage(p, b)
		trades = append(trades, out...)
		if err != nil {
			return trades, err
		}
		if p.Status == Open || p.Status == PartiallyClosed {
			s.trail(p, b, atr)
		}
	}
	s.prune()
	return trades, nil
}

func (s *Simulator) fill(p *Position, b market.Bar) error {
	if err := p.transition(Open); err != nil {
		return err
	}
	in := s.cfg.Instrument
	slip := s.slip()
	p.EntryPrice = in.Round(b.Open + p.Direction.Sign()*slip)
	p.EntryTime = b.Start
	p.entrySlip = math.Abs(p.EntryPrice - b.Open)
	p.entryFee = in.CommissionPerSide
	s.balance -= p.entryFee * float64(p.Quantity)
	s.fills++
	return nil
}

func (s *Simulator) manage(p *Position, b market.Bar) ([]Trade, error) {
	if p.Status != Open && p.Status != PartiallyClosed {
		return nil, nil
	}
	in := s.cfg.Instrument

	if px, ok := hitStop(p, b); ok {
		reason := ExitStop
		if p.TrailingActive {
			reason = ExitTrailing
		}
		fill := in.Round(px - p.Direction.Sign()*s.slip())
		t, err := s.exit(p, p.Remaining, fill, math.Abs(fill-px), b.End, reason)
		return []Trade{t}, err
	}

	var trades []Trade
	if lvl, ok := s.scaleOutLevel(p); ok {
		if px, hit := hitLimit(p.Direction, lvl, b); hit {
			qty := int(math.Floor(float64(p.Quantity) * s.cfg.ScaleOut.Fraction))
			if qty >= 1 && qty < p.Remaining {
				t, err := s.exit(p, qty, in.Round(px), 0, b.End, ExitScaleOut)
				if err != nil {
					return trades, err
				}
				trades = append(trades, t)
				p.ScaledOutQty = qty
				p.Stop = better(p.Direction, p.Stop, p.EntryPrice)
			}
		}
	}

	if p.Target > 0 {
		if px, ok := hitLimit(p.Direction, p.Target, b); ok {
			t, err := s.exit(p, p.Remaining, in.Round(px), 0, b.End, ExitTarget)
			trades = append(trades, t)
			return trades, err
		}
	}
	return trades, nil
}

// scaleOutLevel is the intermediate target, when scale-out applies and
// the level sits before the final target.
func (s *Simulator) scaleOutLevel(p *Position) (float64, bool) {
	if !s.cfg.ScaleOut.Enabled || p.ScaledOutQty > 0 || p.Status != Open {
		return 0, false
	}
	risk := p.InitialRisk()
	if risk <= 0 {
		return 0, false
	}
	lvl := s.cfg.Instrument.Round(p.EntryPrice + p.Direction.Sign()*s.cfg.ScaleOut.R*risk)
	if p.Target > 0 && (p.Target-lvl)*p.Direction.Sign() <= 0 {
		return 0, false
	}
	return lvl, true
}

// trail activates and ratchets the trailing stop. It never loosens.
func (s *Simulator) trail(p *Position, b market.Bar, atr float64) {
	if !s.cfg.Trailing.Enabled || atr <= 0 {
		return
	}
	dir := p.Direction.Sign()
	if !p.TrailingActive {
		risk := p.InitialRisk()
		if risk <= 0 || (b.Close-p.EntryPrice)*dir < s.cfg.Trailing.ActivationR*risk {
			return
		}
		p.TrailingActive = true
	}
	cand := s.cfg.Instrument.Round(b.Close - dir*s.cfg.Trailing.ATRMult*atr)
	if p.TrailingStop == 0 {
		p.TrailingStop = cand
	} else {
		p.TrailingStop = better(p.Direction, p.TrailingStop, cand)
	}
	p.Stop = better(p.Direction, p.Stop, p.TrailingStop)
}

// exit closes qty of p at price. exitSlip is the per-unit slippage
// already included in price.
func (s *Simulator) exit(p *Position, qty int, price, exitSlip float64, at time.Time, reason ExitReason) (Trade, error) {
	to := PartiallyClosed
	if qty >= p.Remaining {
		qty = p.Remaining
		to = Closed
	}
	if p.Status == PartiallyClosed && to == PartiallyClosed {
		return Trade{}, fmt.Errorf("%w: second partial exit on %s", ErrInvalidTransition, p.ID)
	}
	if p.Status != to {
		if err := p.transition(to); err != nil {
			return Trade{}, err
		}
	}

	in := s.cfg.Instrument
	dir := p.Direction.Sign()
	q := float64(qty)
	gross := (price - p.EntryPrice) * dir * q * in.PointValue
	exitFee := in.CommissionPerSide * q
	fees := p.entryFee*q + exitFee

	p.Remaining -= qty
	if p.Remaining == 0 {
		p.ExitTime = at
	}
	s.balance += gross - exitFee

	var r float64
	if risk := p.InitialRisk(); risk > 0 {
		r = (price - p.EntryPrice) * dir / risk
	}
	return Trade{
		ID:          s.ids.Next(at),
		PositionID:  p.ID,
		StrategyID:  p.StrategyID,
		Direction:   p.Direction,
		EntryTime:   p.EntryTime,
		EntryPrice:  p.EntryPrice,
		ExitTime:    at,
		ExitPrice:   price,
		Quantity:    qty,
		GrossPnL:    gross,
		Fees:        fees,
		Slippage:    (p.entrySlip + exitSlip) * q * in.PointValue,
		RealizedPnL: gross - fees,
		RMultiple:   r,
		Reason:      reason,
		Final:       p.Remaining == 0,
	}, nil
}

// CloseAll exits every open position at b's close and cancels pending
// orders.
func (s *Simulator) CloseAll(b market.Bar, reason ExitReason) ([]Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.cfg.Instrument
	var trades []Trade
	for _, p := range s.positions {
		switch p.Status {
		case Pending:
			if err := p.transition(Cancelled); err != nil {
				return trades, err
			}
		case Open, PartiallyClosed:
			fill := in.Round(b.Close - p.Direction.Sign()*s.slip())
			t, err := s.exit(p, p.Remaining, fill, math.Abs(fill-b.Close), b.End, reason)
			if err != nil {
				return trades, err
			}
			trades = append(trades, t)
		}
	}
	s.prune()
	return trades, nil
}

// CancelPending drops every order that has not filled and returns how
// many there were.
func (s *Simulator) CancelPending() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, p := range s.positions {
		if p.Status == Pending {
			_ = p.transition(Cancelled)
			n++
		}
	}
	s.prune()
	return n
}

func (s *Simulator) prune() {
	kept := s.positions[:0]
	for _, p := range s.positions {
		if p.Status.Active() {
			kept = append(kept, p)
		}
	}
	for i := len(kept); i < len(s.positions); i++ {
		s.positions[i] = nil
	}
	s.positions = kept
}

// Positions returns copies of every active position in submission order.
func (s *Simulator) Positions() []Position {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, *p)
	}
	return out
}

// Fills counts orders filled since the simulator was created.
func (s *Simulator) Fills() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fills
}

// ActiveCount counts pending and open positions.
func (s *Simulator) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.positions)
}

// Balance is the starting balance plus realized results net of all
// commissions paid so far.
func (s *Simulator) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Equity is the balance plus open P&L at mark.
func (s *Simulator) Equity(mark float64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	eq := s.balance
	for _, p := range s.positions {
		eq += p.Unrealized(mark, s.cfg.Instrument.PointValue)
	}
	return eq
}

func (s *Simulator) Instrument() market.Instrument { return s.cfg.Instrument }
