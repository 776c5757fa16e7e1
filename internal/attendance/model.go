package attendance

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultTolerance is the late tolerance applied when an event has none.
const DefaultTolerance = 15

// DefaultSessionID keys the check-in log of events without a schedule.
const DefaultSessionID = "main"

// Status is the attendance state of a member at an event.
type Status string

const (
	StatusPresent     Status = "present"
	StatusPresentLate Status = "present_late"
	StatusExcused     Status = "excused"
	StatusExcusedLate Status = "excused_late"
	StatusAbsent      Status = "absent"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusPresentLate, StatusExcused, StatusExcusedLate, StatusAbsent:
		return true
	}
	return false
}

func (s Status) IsPresent() bool { return s == StatusPresent || s == StatusPresentLate }
func (s Status) IsExcused() bool { return s == StatusExcused || s == StatusExcusedLate }

// EventStatus is the lifecycle state of an event.
type EventStatus string

const (
	EventUpcoming  EventStatus = "upcoming"
	EventCompleted EventStatus = "completed"
	EventCancelled EventStatus = "cancelled"
)

// ClockTime is a wall-clock time of day without a date.
type ClockTime struct {
	Hour, Minute, Second int
}

// ParseClock parses "HH:MM" or "HH:MM:SS".
func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid time of day %q", s)
}

func (c ClockTime) String() string {
	if c.Second != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
	}
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// On places the clock time on the calendar date of day, in day's location.
func (c ClockTime) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, day.Location())
}

func (c ClockTime) seconds() int { return c.Hour*3600 + c.Minute*60 + c.Second }

func (c ClockTime) MarshalJSON() ([]byte, error) { return json.Marshal(c.String()) }

func (c *ClockTime) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Session is a named sub-window of an event.
type Session struct {
	ID    string    `json:"id"`
	Name  string    `json:"name"`
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

// Schedule is the ordered session list of an event, stored as JSON.
type Schedule []Session

// Validate checks ids are unique and every window is well formed.
func (s Schedule) Validate() error {
	seen := make(map[string]struct{}, len(s))
	for _, sess := range s {
		if sess.ID == "" {
			return fmt.Errorf("session id required")
		}
		if _, dup := seen[sess.ID]; dup {
			return fmt.Errorf("duplicate session id %q", sess.ID)
		}
		seen[sess.ID] = struct{}{}
		if sess.End.seconds() != 0 && sess.End.seconds() <= sess.Start.seconds() {
			return fmt.Errorf("session %q ends before it starts", sess.ID)
		}
	}
	return nil
}

// Value implements driver.Valuer.
func (s Schedule) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]Session(s))
	return string(b), err
}

// Scan implements sql.Scanner.
func (s *Schedule) Scan(v any) error {
	raw, err := jsonBytes(v)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if len(raw) == 0 {
		*s = nil
		return nil
	}
	var out []Session
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if err := Schedule(out).Validate(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	*s = out
	return nil
}

// Event is a scheduled gathering members are invited to.
type Event struct {
	ID                   string      `json:"id" db:"id"`
	TenantID             string      `json:"tenant_id" db:"tenant_id"`
	Name                 string      `json:"name" db:"name"`
	StartsAt             time.Time   `json:"starts_at" db:"starts_at"`
	Sessions             Schedule    `json:"sessions" db:"sessions"`
	LateToleranceMinutes *int        `json:"late_tolerance_minutes,omitempty" db:"late_tolerance_minutes"`
	Status               EventStatus `json:"status" db:"status"`
	ActualStartTime      *time.Time  `json:"actual_start_time,omitempty" db:"actual_start_at"`
}

// Tolerance returns the late tolerance in minutes, never negative.
func (e Event) Tolerance() int {
	if e.LateToleranceMinutes == nil {
		return DefaultTolerance
	}
	if *e.LateToleranceMinutes < 0 {
		return 0
	}
	return *e.LateToleranceMinutes
}

// Session looks up a session by id.
func (e Event) Session(id string) (Session, bool) {
	for _, s := range e.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// ReferenceStart is the instant lateness is measured from for sessionID.
// An empty id means the session LogKey records it under. Unknown session
// ids fall back to the event start.
func (e Event) ReferenceStart(sessionID string) time.Time {
	if s, ok := e.Session(e.LogKey(sessionID)); ok {
		return s.Start.On(e.StartsAt)
	}
	return e.StartsAt
}

// LogKey is the logs key a check-in for sessionID is recorded under.
func (e Event) LogKey(sessionID string) string {
	if _, ok := e.Session(sessionID); ok {
		return sessionID
	}
	if sessionID == "" && len(e.Sessions) > 0 {
		return e.Sessions[0].ID
	}
	if sessionID == "" {
		return DefaultSessionID
	}
	return sessionID
}

// IsOpen reports whether live check-in has been opened.
func (e Event) IsOpen() bool {
	return e.ActualStartTime != nil && e.Status != EventCancelled
}

// Member is a person who can be invited to events.
type Member struct {
	ID             string `json:"id" db:"id"`
	TenantID       string `json:"tenant_id" db:"tenant_id"`
	Name           string `json:"name" db:"name"`
	GroupID        string `json:"group_id,omitempty" db:"group_id"`
	DivisionID     string `json:"division_id,omitempty" db:"division_id"`
	OrganizationID string `json:"organization_id,omitempty" db:"organization_id"`
}

// Assigned reports whether the member holds a group or division assignment.
func (m Member) Assigned() bool { return m.GroupID != "" || m.DivisionID != "" }

// SessionLog maps a session id to the instant that session's check-in occurred.
type SessionLog map[string]time.Time

// Value implements driver.Valuer.
func (l SessionLog) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]time.Time(l))
	return string(b), err
}

// Scan implements sql.Scanner.
func (l *SessionLog) Scan(v any) error {
	raw, err := jsonBytes(v)
	if err != nil {
		return fmt.Errorf("session log: %w", err)
	}
	out := SessionLog{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, (*map[string]time.Time)(&out)); err != nil {
			return fmt.Errorf("session log: %w", err)
		}
	}
	*l = out
	return nil
}

// Record is the attendance of one member at one event.
type Record struct {
	TenantID    string     `json:"tenant_id" db:"tenant_id"`
	EventID     string     `json:"event_id" db:"event_id"`
	MemberID    string     `json:"member_id" db:"member_id"`
	Status      Status     `json:"status" db:"status"`
	CheckInTime *time.Time `json:"check_in_time,omitempty" db:"check_in_at"`
	LeaveReason string     `json:"leave_reason,omitempty" db:"leave_reason"`
	Logs        SessionLog `json:"logs" db:"logs"`
}

// CheckedInSession returns the logs key whose instant is the record's
// check-in time, i.e. the session the stored status was classified for.
func (r Record) CheckedInSession() (string, bool) {
	if r.CheckInTime == nil {
		return "", false
	}
	// stores keep timestamps to the microsecond
	want := r.CheckInTime.Truncate(time.Microsecond)
	for key, at := range r.Logs {
		if at.Truncate(time.Microsecond).Equal(want) {
			return key, true
		}
	}
	return "", false
}

// Invite is the placeholder record created when a member is invited.
func Invite(tenantID, eventID, memberID string) Record {
	return Record{TenantID: tenantID, EventID: eventID, MemberID: memberID, Status: StatusAbsent, Logs: SessionLog{}}
}

func jsonBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	default:
		return nil, fmt.Errorf("unsupported type %T", v)
	}
}
