package risk

import (
	"context"
	"time"

	"github.com/rustyeddy/meanrev/market"
)

// DailyLimitState is the only risk state that survives a restart.
type DailyLimitState struct {
	Session       string    `json:"session"`
	Week          string    `json:"week"`
	RealizedToday float64   `json:"realized_today"`
	RealizedWeek  float64   `json:"realized_week"`
	TradesToday   int       `json:"trades_today"`
	LastLoss      time.Time `json:"last_loss"`
}

// StateStore persists DailyLimitState between runs. Load reports false
// when nothing has been saved yet.
type StateStore interface {
	Load(ctx context.Context) (DailyLimitState, bool, error)
	Save(ctx context.Context, s DailyLimitState) error
}

// DailyLimits accumulates realized P&L and entries for the current
// session and week. It is owned by a single pipeline and is not safe
// for concurrent use.
type DailyLimits struct {
	state DailyLimitState
}

func NewDailyLimits() *DailyLimits {
	return &DailyLimits{}
}

// ResetDay starts a new session.
func (d *DailyLimits) ResetDay(session string) {
	d.state.Session = session
	d.state.RealizedToday = 0
	d.state.TradesToday = 0
	d.state.LastLoss = time.Time{}
}

// ResetWeek starts a new week. The day counters are left to the
// session event that follows.
func (d *DailyLimits) ResetWeek(week string) {
	d.state.Week = week
	d.state.RealizedWeek = 0
}

// Apply resets the counters named by a calendar event. Events for the
// session or week already held are ignored, so restored state survives
// replaying the boundary.
func (d *DailyLimits) Apply(ev market.CalendarEvent) {
	switch ev.Kind {
	case market.WeekStart:
		if ev.Week != d.state.Week {
			d.ResetWeek(ev.Week)
		}
	case market.SessionStart:
		if ev.SessionID != d.state.Session {
			d.ResetDay(ev.SessionID)
		}
	}
}

// RecordEntry counts a filled entry toward the daily trade limit.
// Orders cancelled before they fill are never counted.
func (d *DailyLimits) RecordEntry() {
	d.state.TradesToday++
}

// RecordTrade books the realized P&L of one exit.
func (d *DailyLimits) RecordTrade(pnl float64, at time.Time) {
	d.state.RealizedToday += pnl
	d.state.RealizedWeek += pnl
	if pnl < 0 {
		d.state.LastLoss = at
	}
}

func (d *DailyLimits) Snapshot() DailyLimitState { return d.state }

func (d *DailyLimits) Restore(s DailyLimitState) { d.state = s }
