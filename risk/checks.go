package risk

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/signals"
)

// Reason is the code of the first gate step a signal failed.
type Reason string

const (
	ReasonApproved        Reason = "approved"
	ReasonDailyLossLimit  Reason = "daily-loss-limit"
	ReasonWeeklyLossLimit Reason = "weekly-loss-limit"
	ReasonDailyTradeLimit Reason = "daily-trade-limit"
	ReasonLossCooldown    Reason = "loss-cooldown"
	ReasonVenueClosed     Reason = "venue-closed"
	ReasonStrategyWindow  Reason = "strategy-window"
	ReasonNewsBlackout    Reason = "news-blackout"
	ReasonPositionLimit   Reason = "position-limit"
	ReasonInvalidStop     Reason = "invalid-stop"
	ReasonStopDistance    Reason = "stop-distance"
	ReasonSizeTooSmall    Reason = "size-too-small"
	ReasonInvalidSizing   Reason = "invalid-sizing"
)

// Reasons lists every rejection code in gate order.
func Reasons() []Reason {
	return []Reason{
		ReasonDailyLossLimit, ReasonWeeklyLossLimit, ReasonDailyTradeLimit, ReasonLossCooldown,
		ReasonVenueClosed, ReasonStrategyWindow, ReasonNewsBlackout, ReasonPositionLimit,
		ReasonInvalidStop, ReasonStopDistance, ReasonSizeTooSmall, ReasonInvalidSizing,
	}
}

// Input is everything the gate needs about one signal.
type Input struct {
	Signal        signals.Scored
	Window        market.TimeWindow
	ATR           float64
	Equity        float64
	OpenPositions int
}

// Decision is the outcome of one gate evaluation.
type Decision struct {
	Approved bool
	Reason   Reason
	// Step is the 1-based gate step that rejected the signal, or 0.
	Step     int
	Message  string
	Quantity int
	Stop     float64
	Target   float64
	// RiskAmount is the loss at the stop for Quantity contracts.
	RiskAmount float64
	Signal     signals.Scored
}

func (d *Decision) reject(step int, reason Reason, format string, args ...any) {
	d.Approved = false
	d.Step = step
	d.Reason = reason
	d.Message = fmt.Sprintf(format, args...)
}

// Gate runs the seven ordered checks. The first failing step decides
// the rejection and no later step is evaluated.
type Gate struct {
	policy Policy
	hours  *market.Calendar
	news   *signals.NewsFilter
	limits *DailyLimits
	sizer  Sizer
	log    zerolog.Logger
}

// NewGate wires a gate. A nil calendar never closes the venue and a nil
// news filter never blacks out.
func NewGate(p Policy, hours *market.Calendar, news *signals.NewsFilter, limits *DailyLimits, sizer Sizer, log zerolog.Logger) *Gate {
	if limits == nil {
		limits = NewDailyLimits()
	}
	if sizer.MaxRiskFraction == 0 {
		sizer.MaxRiskFraction = p.MaxRiskFraction
	}
	return &Gate{
		policy: p,
		hours:  hours,
		news:   news,
		limits: limits,
		sizer:  sizer,
		log:    log.With().Str("component", "risk").Logger(),
	}
}

func (g *Gate) Limits() *DailyLimits { return g.limits }

func (g *Gate) Evaluate(in Input) Decision {
	d := g.evaluate(in)
	ev := g.log.Info()
	if !d.Approved {
		ev = ev.Str("reason", string(d.Reason)).Int("step", d.Step).Str("detail", d.Message)
	} else {
		ev = ev.Int("qty", d.Quantity).Float64("risk", d.RiskAmount)
	}
	ev.Str("strategy", in.Signal.StrategyID).
		Str("dir", in.Signal.Direction.String()).
		Float64("confidence", in.Signal.Confidence).
		Time("at", in.Signal.Time).
		Bool("approved", d.Approved).
		Msg("risk decision")
	return d
}

func (g *Gate) evaluate(in Input) Decision {
	sig := in.Signal
	at := sig.Time
	d := Decision{Signal: sig, Stop: sig.Stop, Target: sig.Target}

	// 1. Circuit breakers
	st := g.limits.Snapshot()
	if limit := -g.policy.MaxDailyLoss * in.Equity; st.RealizedToday < limit {
		d.reject(1, ReasonDailyLossLimit, "day realized %.2f < limit %.2f", st.RealizedToday, limit)
		return d
	}
	if limit := -g.policy.MaxWeeklyLoss * in.Equity; st.RealizedWeek < limit {
		d.reject(1, ReasonWeeklyLossLimit, "week realized %.2f < limit %.2f", st.RealizedWeek, limit)
		return d
	}
	if g.policy.MaxTradesPerDay > 0 && st.TradesToday >= g.policy.MaxTradesPerDay {
		d.reject(1, ReasonDailyTradeLimit, "trades today %d >= max %d", st.TradesToday, g.policy.MaxTradesPerDay)
		return d
	}
	if g.policy.LossCooldown > 0 && !st.LastLoss.IsZero() && at.Sub(st.LastLoss) < g.policy.LossCooldown {
		d.reject(1, ReasonLossCooldown, "last loss at %s, cooldown %s", st.LastLoss.Format(time.RFC3339), g.policy.LossCooldown)
		return d
	}

	// 2. Venue hours
	if g.hours != nil && !g.hours.IsOpen(at) {
		d.reject(2, ReasonVenueClosed, "venue closed at %s", at.Format(time.RFC3339))
		return d
	}

	// 3. Strategy window
	loc := time.UTC
	if g.hours != nil {
		loc = g.hours.Location()
	}
	if !in.Window.Contains(at, loc) {
		d.reject(3, ReasonStrategyWindow, "%s outside window %s", market.ClockOf(at.In(loc)), in.Window)
		return d
	}

	// 4. News
	if ev, blocked := g.news.Blocked(at); blocked {
		d.reject(4, ReasonNewsBlackout, "%s %s at %s", ev.Class, ev.Name, ev.Time.Format(time.RFC3339))
		return d
	}

	// 5. Exposure
	if in.OpenPositions >= g.policy.MaxConcurrent {
		d.reject(5, ReasonPositionLimit, "open positions %d >= max %d", in.OpenPositions, g.policy.MaxConcurrent)
		return d
	}

	// 6. Stop placement
	dist := (sig.Entry - sig.Stop) * sig.Direction.Sign()
	if dist <= 0 || math.IsNaN(dist) {
		d.reject(6, ReasonInvalidStop, "stop %.2f on wrong side of %s entry %.2f", sig.Stop, sig.Direction, sig.Entry)
		return d
	}
	if in.ATR <= 0 {
		d.reject(6, ReasonStopDistance, "no ATR to judge stop distance")
		return d
	}
	if r := dist / in.ATR; r < g.policy.MinStopATR || r > g.policy.MaxStopATR {
		d.reject(6, ReasonStopDistance, "stop %.2f ATR outside [%.2f, %.2f]", r, g.policy.MinStopATR, g.policy.MaxStopATR)
		return d
	}

	// 7. Sizing
	qty, err := g.sizer.Size(in.Equity, g.policy.RiskFraction, sig.Entry, sig.Stop)
	if err != nil {
		reason := ReasonSizeTooSmall
		if errors.Is(err, ErrInvalidSizing) {
			reason = ReasonInvalidSizing
		}
		d.reject(7, reason, "%v", err)
		return d
	}

	d.Approved = true
	d.Reason = ReasonApproved
	d.Quantity = qty
	d.RiskAmount = g.sizer.Exposure(qty, sig.Entry, sig.Stop)
	return d
}
