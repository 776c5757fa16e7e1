// Package schedule imports events and their sessions from iCalendar feeds.
package schedule

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-ical"

	"rollcall/internal/attendance"
)

// propTolerance carries the late tolerance in minutes on a parent VEVENT.
const propTolerance = "X-ROLLCALL-TOLERANCE"

type component struct {
	uid     string
	parent  string
	summary string
	start   time.Time
	end     time.Time
	status  string
	tol     *int
}

// Parse reads every VEVENT in r. A VEVENT whose RELATED-TO names another
// VEVENT's UID becomes a session of that event instead of an event of its
// own. Times without a zone are read in loc.
func Parse(r io.Reader, loc *time.Location) ([]attendance.Event, error) {
	if loc == nil {
		loc = time.UTC
	}
	var comps []component
	dec := ical.NewDecoder(r)
	for {
		cal, err := dec.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode calendar: %w", err)
		}
		for _, child := range cal.Children {
			if child.Name != ical.CompEvent {
				continue
			}
			c, err := parseComponent(child, loc)
			if err != nil {
				return nil, err
			}
			comps = append(comps, c)
		}
	}
	return assemble(comps)
}

func parseComponent(comp *ical.Component, loc *time.Location) (component, error) {
	var c component
	if p := comp.Props.Get(ical.PropUID); p != nil {
		c.uid = strings.TrimSpace(p.Value)
	}
	if c.uid == "" {
		return c, fmt.Errorf("vevent without UID")
	}
	if p := comp.Props.Get(ical.PropRelatedTo); p != nil {
		c.parent = strings.TrimSpace(p.Value)
	}
	if p := comp.Props.Get(ical.PropSummary); p != nil {
		c.summary = p.Value
	}
	if p := comp.Props.Get(ical.PropStatus); p != nil {
		c.status = strings.ToUpper(p.Value)
	}
	p := comp.Props.Get(ical.PropDateTimeStart)
	if p == nil {
		return c, fmt.Errorf("vevent %s: missing DTSTART", c.uid)
	}
	start, err := p.DateTime(loc)
	if err != nil {
		return c, fmt.Errorf("vevent %s: DTSTART: %w", c.uid, err)
	}
	c.start = start.In(loc)
	if p := comp.Props.Get(ical.PropDateTimeEnd); p != nil {
		end, err := p.DateTime(loc)
		if err != nil {
			return c, fmt.Errorf("vevent %s: DTEND: %w", c.uid, err)
		}
		c.end = end.In(loc)
	}
	if p := comp.Props.Get(propTolerance); p != nil {
		n, err := strconv.Atoi(strings.TrimSpace(p.Value))
		if err != nil {
			return c, fmt.Errorf("vevent %s: %s: %w", c.uid, propTolerance, err)
		}
		c.tol = &n
	}
	return c, nil
}

func assemble(comps []component) ([]attendance.Event, error) {
	byUID := make(map[string]int, len(comps))
	var events []attendance.Event
	for _, c := range comps {
		if c.parent != "" {
			continue
		}
		if _, dup := byUID[c.uid]; dup {
			return nil, fmt.Errorf("duplicate event UID %s", c.uid)
		}
		byUID[c.uid] = len(events)
		e := attendance.Event{
			ID:                   c.uid,
			Name:                 c.summary,
			StartsAt:             c.start,
			LateToleranceMinutes: c.tol,
			Status:               attendance.EventUpcoming,
		}
		if c.status == "CANCELLED" {
			e.Status = attendance.EventCancelled
		}
		events = append(events, e)
	}
	for _, c := range comps {
		if c.parent == "" {
			continue
		}
		i, ok := byUID[c.parent]
		if !ok {
			return nil, fmt.Errorf("session %s: unknown parent %s", c.uid, c.parent)
		}
		events[i].Sessions = append(events[i].Sessions, attendance.Session{
			ID:    c.uid,
			Name:  c.summary,
			Start: clock(c.start),
			End:   clock(c.end),
		})
	}
	for i := range events {
		sort.SliceStable(events[i].Sessions, func(a, b int) bool {
			return secs(events[i].Sessions[a].Start) < secs(events[i].Sessions[b].Start)
		})
		if err := events[i].Sessions.Validate(); err != nil {
			return nil, fmt.Errorf("event %s: %w", events[i].ID, err)
		}
	}
	return events, nil
}

func clock(t time.Time) attendance.ClockTime {
	if t.IsZero() {
		return attendance.ClockTime{}
	}
	return attendance.ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

func secs(c attendance.ClockTime) int { return c.Hour*3600 + c.Minute*60 + c.Second }
