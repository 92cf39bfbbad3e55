package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // sessions are defined in exchange-local time
)

const minutesPerDay = 24 * 60

// Clock is a time of day expressed in minutes after midnight.
type Clock int

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("clock %q: bad minute", s)
	}
	return Clock(h*60 + m), nil
}

// MustClock is ParseClock for constants.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

// TimeWindow is a time-of-day range [Start, End). A window whose Start
// is after its End wraps midnight. The zero window (Start == End) is
// unbounded.
type TimeWindow struct {
	Start Clock
	End   Clock
}

// ParseWindow builds a window from two "HH:MM" strings.
func ParseWindow(start, end string) (TimeWindow, error) {
	s, err := ParseClock(start)
	if err != nil {
		return TimeWindow{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return TimeWindow{}, err
	}
	return TimeWindow{Start: s, End: e}, nil
}

// Contains reports whether t, viewed in loc, falls inside the window.
func (w TimeWindow) Contains(t time.Time, loc *time.Location) bool {
	if w.Start == w.End {
		return true
	}
	c := ClockOf(t.In(loc))
	if w.Start < w.End {
		return c >= w.Start && c < w.End
	}
	return c >= w.Start || c < w.End
}

func (w TimeWindow) String() string {
	if w.Start == w.End {
		return "always"
	}
	return w.Start.String() + "-" + w.End.String()
}

// CalendarConfig describes the venue's trading session.
type CalendarConfig struct {
	Timezone         string `yaml:"timezone" json:"timezone" default:"America/Chicago" validate:"required"`
	SessionOpen      string `yaml:"session_open" json:"session_open" default:"17:00" validate:"required"`
	SessionClose     string `yaml:"session_close" json:"session_close" default:"16:00" validate:"required"`
	SkipOpenMinutes  int    `yaml:"skip_open_minutes" json:"skip_open_minutes" default:"5" validate:"gte=0"`
	SkipCloseMinutes int    `yaml:"skip_close_minutes" json:"skip_close_minutes" default:"5" validate:"gte=0"`
}

// Calendar answers session questions for one venue. A session whose open
// is later in the day than its close runs overnight (CME Globex style:
// Sunday evening to Friday afternoon with a daily maintenance break) and
// takes the date of the day it closes as its session id.
type Calendar struct {
	loc       *time.Location
	open      Clock
	close     Clock
	skipOpen  int
	skipClose int
}

// NewCalendar validates cfg and loads its time zone.
func NewCalendar(cfg CalendarConfig) (*Calendar, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("calendar timezone: %w", err)
	}
	open, err := ParseClock(cfg.SessionOpen)
	if err != nil {
		return nil, fmt.Errorf("calendar session_open: %w", err)
	}
	closeAt, err := ParseClock(cfg.SessionClose)
	if err != nil {
		return nil, fmt.Errorf("calendar session_close: %w", err)
	}
	if open == closeAt {
		return nil, fmt.Errorf("calendar session_open and session_close must differ")
	}
	return &Calendar{
		loc:       loc,
		open:      open,
		close:     closeAt,
		skipOpen:  cfg.SkipOpenMinutes,
		skipClose: cfg.SkipCloseMinutes,
	}, nil
}

// Location returns the venue's time zone.
func (c *Calendar) Location() *time.Location { return c.loc }

func (c *Calendar) overnight() bool { return c.open > c.close }

// SessionID returns the trading date ("2006-01-02") t belongs to.
func (c *Calendar) SessionID(t time.Time) string {
	lt := t.In(c.loc)
	if c.overnight() && ClockOf(lt) >= c.open {
		lt = lt.AddDate(0, 0, 1)
	}
	return lt.Format(time.DateOnly)
}

// WeekID returns the ISO week ("2006-W01") of t's session date.
func (c *Calendar) WeekID(t time.Time) string {
	d, err := time.ParseInLocation(time.DateOnly, c.SessionID(t), c.loc)
	if err != nil {
		return ""
	}
	y, w := d.ISOWeek()
	return fmt.Sprintf("%04d-W%02d", y, w)
}

// IsOpen reports whether t is inside trading hours, excluding the
// configured minutes right after the open and right before the close.
func (c *Calendar) IsOpen(t time.Time) bool {
	lt := t.In(c.loc)
	now := ClockOf(lt)
	if !c.inSession(lt.Weekday(), now) {
		return false
	}
	sinceOpen := (int(now) - int(c.open) + minutesPerDay) % minutesPerDay
	if sinceOpen < c.skipOpen {
		return false
	}
	toClose := (int(c.close) - int(now) + minutesPerDay) % minutesPerDay
	if c.skipClose > 0 && toClose <= c.skipClose {
		return false
	}
	return true
}

// InSession reports whether the venue trades at t, ignoring the skip
// windows.
func (c *Calendar) InSession(t time.Time) bool {
	lt := t.In(c.loc)
	return c.inSession(lt.Weekday(), ClockOf(lt))
}

func (c *Calendar) inSession(day time.Weekday, now Clock) bool {
	if !c.overnight() {
		if day == time.Saturday || day == time.Sunday {
			return false
		}
		return now >= c.open && now < c.close
	}
	switch day {
	case time.Saturday:
		return false
	case time.Sunday:
		return now >= c.open
	case time.Friday:
		return now < c.close
	default:
		return now >= c.open || now < c.close
	}
}

// EventKind classifies a calendar boundary.
type EventKind int

const (
	SessionStart EventKind = iota + 1
	WeekStart
)

func (k EventKind) String() string {
	switch k {
	case SessionStart:
		return "session_start"
	case WeekStart:
		return "week_start"
	default:
		return "unknown"
	}
}

// CalendarEvent marks the first bar of a new session or week.
type CalendarEvent struct {
	Kind      EventKind
	SessionID string
	Week      string
	Time      time.Time
}

// BoundaryTracker turns a bar stream into explicit session and week
// boundary events.
type BoundaryTracker struct {
	cal     *Calendar
	session string
	week    string
}

func NewBoundaryTracker(cal *Calendar) *BoundaryTracker {
	return &BoundaryTracker{cal: cal}
}

// Observe returns the boundary events crossed by b, week first.
func (bt *BoundaryTracker) Observe(b Bar) []CalendarEvent {
	session := b.SessionID
	if session == "" {
		session = bt.cal.SessionID(b.Start)
	}
	week := bt.cal.WeekID(b.Start)

	var evs []CalendarEvent
	if week != bt.week {
		bt.week = week
		evs = append(evs, CalendarEvent{Kind: WeekStart, SessionID: session, Week: week, Time: b.Start})
	}
	if session != bt.session {
		bt.session = session
		evs = append(evs, CalendarEvent{Kind: SessionStart, SessionID: session, Week: week, Time: b.Start})
	}
	return evs
}
