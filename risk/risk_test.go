package risk

import (
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/meanrev/market"
	"github.com/rustyeddy/meanrev/signals"
)

// Wednesday 10:00 CST.
var at = time.Date(2024, 1, 10, 16, 0, 0, 0, time.UTC)

func cme(t *testing.T) *market.Calendar {
	t.Helper()
	cal, err := market.NewCalendar(market.CalendarConfig{
		Timezone:         "America/Chicago",
		SessionOpen:      "17:00",
		SessionClose:     "16:00",
		SkipOpenMinutes:  5,
		SkipCloseMinutes: 5,
	})
	require.NoError(t, err)
	return cal
}

func input() Input {
	return Input{
		Signal: signals.Scored{
			Raw: signals.Raw{
				Direction:  market.Long,
				Entry:      5000,
				Stop:       4995,
				Target:     5010,
				StrategyID: "mr",
				Time:       at,
			},
			Confidence: 0.6,
		},
		Window:        market.TimeWindow{Start: market.MustClock("08:30"), End: market.MustClock("15:00")},
		ATR:           4,
		Equity:        10000,
		OpenPositions: 0,
	}
}

func newGate(t *testing.T, news *signals.NewsFilter, limits *DailyLimits) *Gate {
	t.Helper()
	return NewGate(DefaultPolicy(), cme(t), news, limits, Sizer{}, zerolog.Nop())
}

func TestSizerScenario(t *testing.T) {
	t.Parallel()
	s := Sizer{MaxRiskFraction: 0.015}

	qty, err := s.Size(10000, 0.015, 5000, 4990)
	require.NoError(t, err)
	assert.Equal(t, 15, qty)
	assert.Equal(t, 150.0, s.Exposure(qty, 5000, 4990), "boundary exposure is accepted")

	// Risk above the cap is clamped.
	qty, err = s.Size(10000, 0.05, 5000, 4990)
	require.NoError(t, err)
	assert.Equal(t, 15, qty)
}

func TestSizerVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		sizer   Sizer
		equity  float64
		risk    float64
		entry   float64
		stop    float64
		want    int
		wantErr error
	}{
		{"point value", Sizer{PointValue: 5}, 10000, 0.015, 5000, 4990, 3, nil},
		{"max quantity", Sizer{MaxQuantity: 2}, 10000, 0.015, 5000, 4990, 2, nil},
		{"short side", Sizer{}, 10000, 0.01, 5000, 5004, 25, nil},
		{"too small", Sizer{}, 1000, 0.01, 5000, 4980, 0, ErrSizeTooSmall},
		{"no equity", Sizer{}, 0, 0.01, 5000, 4990, 0, ErrInvalidSizing},
		{"negative risk", Sizer{}, 1000, -0.01, 5000, 4990, 0, ErrInvalidSizing},
		{"zero distance", Sizer{}, 1000, 0.01, 5000, 5000, 0, ErrInvalidSizing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := tt.sizer.Size(tt.equity, tt.risk, tt.entry, tt.stop)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSizerNeverExceedsBudget(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewSource(7))
	s := Sizer{MaxRiskFraction: 0.015, PointValue: 5}

	for i := 0; i < 5000; i++ {
		equity := 1000 + rng.Float64()*100000
		risk := rng.Float64() * 0.03
		entry := 1000 + rng.Float64()*5000
		stop := entry + (rng.Float64()-0.5)*50
		if entry == stop || risk == 0 {
			continue
		}
		qty, err := s.Size(equity, risk, entry, stop)
		if err != nil {
			require.ErrorIs(t, err, ErrSizeTooSmall)
			continue
		}
		budget := equity * min(risk, s.MaxRiskFraction)
		require.LessOrEqual(t, s.Exposure(qty, entry, stop), budget, "iteration %d", i)
		require.GreaterOrEqual(t, qty, 1)
	}
}

func TestGateApproves(t *testing.T) {
	t.Parallel()
	g := newGate(t, nil, nil)

	d := g.Evaluate(input())
	require.True(t, d.Approved, d.Message)
	assert.Equal(t, ReasonApproved, d.Reason)
	assert.Equal(t, 0, d.Step)
	// 1% of 10000 over a 5 point stop.
	assert.Equal(t, 20, d.Quantity)
	assert.Equal(t, 100.0, d.RiskAmount)
	assert.Equal(t, 4995.0, d.Stop)
	assert.Equal(t, 5010.0, d.Target)
}

func TestGateRejections(t *testing.T) {
	t.Parallel()
	fomc := signals.NewNewsFilter(signals.DefaultBuffers(), []signals.Event{{Class: signals.FOMC, Name: "rate decision", Time: at.Add(20 * time.Minute)}})

	tests := []struct {
		name   string
		mut    func(*Input)
		limits func(*DailyLimits)
		news   *signals.NewsFilter
		step   int
		reason Reason
	}{
		{name: "daily loss", limits: func(l *DailyLimits) { l.RecordTrade(-301, at.Add(-time.Hour)) }, step: 1, reason: ReasonDailyLossLimit},
		{name: "weekly loss", limits: func(l *DailyLimits) { l.Restore(DailyLimitState{RealizedWeek: -601}) }, step: 1, reason: ReasonWeeklyLossLimit},
		{name: "trade count", limits: func(l *DailyLimits) { l.Restore(DailyLimitState{TradesToday: 10}) }, step: 1, reason: ReasonDailyTradeLimit},
		{name: "cooldown", limits: func(l *DailyLimits) { l.RecordTrade(-10, at.Add(-30*time.Second)) }, step: 1, reason: ReasonLossCooldown},
		{name: "saturday", mut: func(in *Input) { in.Signal.Time = time.Date(2024, 1, 13, 16, 0, 0, 0, time.UTC) }, step: 2, reason: ReasonVenueClosed},
		{name: "maintenance break", mut: func(in *Input) { in.Signal.Time = time.Date(2024, 1, 10, 22, 30, 0, 0, time.UTC) }, step: 2, reason: ReasonVenueClosed},
		{name: "before window", mut: func(in *Input) { in.Signal.Time = time.Date(2024, 1, 10, 13, 0, 0, 0, time.UTC) }, step: 3, reason: ReasonStrategyWindow},
		{name: "news", news: fomc, step: 4, reason: ReasonNewsBlackout},
		{name: "positions", mut: func(in *Input) { in.OpenPositions = 2 }, step: 5, reason: ReasonPositionLimit},
		{name: "wrong side stop", mut: func(in *Input) { in.Signal.Stop = 5005 }, step: 6, reason: ReasonInvalidStop},
		{name: "stop too tight", mut: func(in *Input) { in.Signal.Stop = 4999.5 }, step: 6, reason: ReasonStopDistance},
		{name: "stop too wide", mut: func(in *Input) { in.Signal.Stop = 4990 }, step: 6, reason: ReasonStopDistance},
		{name: "no atr", mut: func(in *Input) { in.ATR = 0 }, step: 6, reason: ReasonStopDistance},
		{name: "tiny account", mut: func(in *Input) { in.Equity = 100 }, step: 7, reason: ReasonSizeTooSmall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			limits := NewDailyLimits()
			if tt.limits != nil {
				tt.limits(limits)
			}
			in := input()
			if tt.mut != nil {
				tt.mut(&in)
			}
			d := newGate(t, tt.news, limits).Evaluate(in)
			assert.False(t, d.Approved)
			assert.Equal(t, tt.reason, d.Reason, d.Message)
			assert.Equal(t, tt.step, d.Step)
			assert.Zero(t, d.Quantity)
		})
	}
}

func TestGateLossLimitBoundary(t *testing.T) {
	t.Parallel()
	limits := NewDailyLimits()
	limits.RecordTrade(-300, at.Add(-time.Hour))
	d := newGate(t, nil, limits).Evaluate(input())
	assert.True(t, d.Approved, "exactly -3%% still trades: %s", d.Message)
}

func TestGateShortCircuits(t *testing.T) {
	t.Parallel()

	// Closed venue and a bad stop: step 2 wins.
	in := input()
	in.Signal.Time = time.Date(2024, 1, 13, 16, 0, 0, 0, time.UTC)
	in.Signal.Stop = 5005
	d := newGate(t, nil, nil).Evaluate(in)
	assert.Equal(t, ReasonVenueClosed, d.Reason)

	// Every step failing: step 1 wins.
	limits := NewDailyLimits()
	limits.RecordTrade(-1000, at.Add(-time.Hour))
	in.OpenPositions = 5
	in.Equity = 100
	news := signals.NewNewsFilter(signals.DefaultBuffers(), []signals.Event{{Class: signals.CPI, Time: in.Signal.Time}})
	d = newGate(t, news, limits).Evaluate(in)
	assert.Equal(t, ReasonDailyLossLimit, d.Reason)
	assert.Equal(t, 1, d.Step)
}

func TestGatePositionLimitScenario(t *testing.T) {
	t.Parallel()
	g := newGate(t, nil, nil)

	open := 0
	var reasons []Reason
	for i := 0; i < 3; i++ {
		in := input()
		in.Signal.Time = at.Add(time.Duration(i) * 5 * time.Minute)
		in.Signal.Confidence = 1
		in.OpenPositions = open
		d := g.Evaluate(in)
		reasons = append(reasons, d.Reason)
		if d.Approved {
			open++
		}
	}
	assert.Equal(t, []Reason{ReasonApproved, ReasonApproved, ReasonPositionLimit}, reasons)
}

func TestGateNewsScenario(t *testing.T) {
	t.Parallel()
	news := signals.NewNewsFilter(signals.DefaultBuffers(), []signals.Event{{Class: signals.NFP, Name: "payrolls", Time: at.Add(-10 * time.Minute)}})

	in := input()
	in.Signal.Confidence = 1
	d := newGate(t, news, nil).Evaluate(in)
	assert.Equal(t, ReasonNewsBlackout, d.Reason)
	assert.Contains(t, d.Message, "payrolls")

	d = newGate(t, nil, nil).Evaluate(in)
	assert.True(t, d.Approved)
}

func TestDailyLimits(t *testing.T) {
	t.Parallel()
	l := NewDailyLimits()

	l.Apply(market.CalendarEvent{Kind: market.WeekStart, Week: "2024-W02"})
	l.Apply(market.CalendarEvent{Kind: market.SessionStart, SessionID: "2024-01-08"})
	l.RecordEntry()
	l.RecordTrade(-50, at)
	l.RecordTrade(20, at.Add(time.Minute))

	st := l.Snapshot()
	assert.Equal(t, "2024-01-08", st.Session)
	assert.Equal(t, "2024-W02", st.Week)
	assert.Equal(t, -30.0, st.RealizedToday)
	assert.Equal(t, -30.0, st.RealizedWeek)
	assert.Equal(t, 1, st.TradesToday)
	assert.Equal(t, at, st.LastLoss, "wins do not move the last loss")

	// Replaying the same session keeps the counters.
	l.Apply(market.CalendarEvent{Kind: market.SessionStart, SessionID: "2024-01-08"})
	assert.Equal(t, -30.0, l.Snapshot().RealizedToday)

	l.Apply(market.CalendarEvent{Kind: market.SessionStart, SessionID: "2024-01-09"})
	st = l.Snapshot()
	assert.Zero(t, st.RealizedToday)
	assert.Zero(t, st.TradesToday)
	assert.True(t, st.LastLoss.IsZero())
	assert.Equal(t, -30.0, st.RealizedWeek)

	l.Apply(market.CalendarEvent{Kind: market.WeekStart, Week: "2024-W03"})
	assert.Zero(t, l.Snapshot().RealizedWeek)

	restored := NewDailyLimits()
	restored.Restore(st)
	assert.Equal(t, st, restored.Snapshot())
}

func TestPolicyValidate(t *testing.T) {
	t.Parallel()
	require.NoError(t, DefaultPolicy().Validate())

	tests := []struct {
		name string
		mut  func(*Policy)
	}{
		{"negative risk", func(p *Policy) { p.RiskFraction = -0.01 }},
		{"risk above cap", func(p *Policy) { p.RiskFraction = 0.02 }},
		{"weekly tighter than daily", func(p *Policy) { p.MaxWeeklyLoss = 0.01 }},
		{"no positions", func(p *Policy) { p.MaxConcurrent = 0 }},
		{"inverted stop bounds", func(p *Policy) { p.MinStopATR = 3 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPolicy()
			tt.mut(&p)
			assert.Error(t, p.Validate())
		})
	}
}
