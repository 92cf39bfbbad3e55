package signals

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EventClass groups scheduled releases that share a blackout buffer.
type EventClass string

const (
	FOMC  EventClass = "FOMC"
	NFP   EventClass = "NFP"
	CPI   EventClass = "CPI"
	Other EventClass = "OTHER"
)

// Buffer is the blackout before and after an event.
type Buffer struct {
	Before time.Duration `yaml:"before" json:"before"`
	After  time.Duration `yaml:"after" json:"after"`
}

// DefaultBuffers returns the standard macro-event buffers. A rate
// decision blocks longer than a routine release.
func DefaultBuffers() map[EventClass]Buffer {
	return map[EventClass]Buffer{
		FOMC:  {Before: 30 * time.Minute, After: 60 * time.Minute},
		NFP:   {Before: 15 * time.Minute, After: 45 * time.Minute},
		CPI:   {Before: 15 * time.Minute, After: 30 * time.Minute},
		Other: {Before: 10 * time.Minute, After: 15 * time.Minute},
	}
}

// Event is one scheduled release.
type Event struct {
	Class EventClass `yaml:"class" json:"class"`
	Name  string     `yaml:"name" json:"name"`
	Time  time.Time  `yaml:"time" json:"time"`
}

// NewsFilter answers whether a timestamp is inside any event's blackout.
type NewsFilter struct {
	buffers   map[EventClass]Buffer
	events    []Event
	maxBefore time.Duration
	maxAfter  time.Duration
}

// NewNewsFilter copies buffers and events. Classes without a buffer use
// the Other buffer.
func NewNewsFilter(buffers map[EventClass]Buffer, events []Event) *NewsFilter {
	f := &NewsFilter{buffers: make(map[EventClass]Buffer, len(buffers))}
	for c, b := range buffers {
		f.buffers[EventClass(strings.ToUpper(string(c)))] = b
	}
	for _, b := range f.buffers {
		f.maxBefore = max(f.maxBefore, b.Before)
		f.maxAfter = max(f.maxAfter, b.After)
	}
	f.events = append([]Event(nil), events...)
	for i := range f.events {
		f.events[i].Class = EventClass(strings.ToUpper(string(f.events[i].Class)))
	}
	sort.SliceStable(f.events, func(i, j int) bool { return f.events[i].Time.Before(f.events[j].Time) })
	return f
}

func (f *NewsFilter) buffer(c EventClass) Buffer {
	if b, ok := f.buffers[c]; ok {
		return b
	}
	return f.buffers[Other]
}

// Blocked returns the first event whose window [time-before, time+after]
// contains t.
func (f *NewsFilter) Blocked(t time.Time) (Event, bool) {
	if f == nil || len(f.events) == 0 {
		return Event{}, false
	}
	// Only events in [t-maxAfter, t+maxBefore] can cover t.
	i := sort.Search(len(f.events), func(i int) bool {
		return !f.events[i].Time.Before(t.Add(-f.maxAfter))
	})
	limit := t.Add(f.maxBefore)
	for ; i < len(f.events) && !f.events[i].Time.After(limit); i++ {
		ev := f.events[i]
		b := f.buffer(ev.Class)
		if !t.Before(ev.Time.Add(-b.Before)) && !t.After(ev.Time.Add(b.After)) {
			return ev, true
		}
	}
	return Event{}, false
}

// Events returns the loaded schedule in time order.
func (f *NewsFilter) Events() []Event {
	return append([]Event(nil), f.events...)
}

type calendarFile struct {
	Events []Event `yaml:"events"`
}

// LoadEvents reads a YAML economic calendar:
//
//	events:
//	  - class: FOMC
//	    name: rate decision
//	    time: 2024-01-31T13:00:00-06:00
func LoadEvents(r io.Reader) ([]Event, error) {
	var cf calendarFile
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode news calendar: %w", err)
	}
	for i, ev := range cf.Events {
		if ev.Time.IsZero() {
			return nil, fmt.Errorf("news calendar event %d (%s): time is required", i, ev.Name)
		}
		if ev.Class == "" {
			cf.Events[i].Class = Other
		}
	}
	return cf.Events, nil
}
