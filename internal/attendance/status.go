package attendance

import "fmt"

// Color is the display tone of a label.
type Color string

const (
	ColorSuccess Color = "success"
	ColorWarning Color = "warning"
	ColorDanger  Color = "danger"
	ColorInfo    Color = "info"
)

// Label is the display status of one attendance record.
type Label struct {
	Text    string   `json:"text"`
	Color   Color    `json:"color"`
	Verdict *Verdict `json:"verdict,omitempty"`
}

// ResolveStatus phrases a record for display. It returns nil when there is
// no record. With a sessionID the check-in logged for that session is
// measured against that session's start; a session the member has not
// checked into reads "Not checked in". Without one, the record's check-in
// time is measured against the start of the session it was logged for.
func ResolveStatus(rec *Record, event Event, sessionID string) *Label {
	if rec == nil {
		return nil
	}
	switch rec.Status {
	case StatusExcused:
		return &Label{Text: "Excused", Color: ColorWarning}
	case StatusExcusedLate:
		return &Label{Text: "Excused (Late)", Color: ColorWarning}
	case StatusAbsent:
		return &Label{Text: "Absent", Color: ColorDanger}
	}

	observed := rec.CheckInTime
	session := sessionID
	switch {
	case sessionID != "":
		session = event.LogKey(sessionID)
		if at, ok := rec.Logs[session]; ok {
			observed = &at
		} else if len(rec.Logs) > 0 {
			return &Label{Text: "Not checked in", Color: ColorDanger}
		}
	case observed != nil:
		session, _ = rec.CheckedInSession()
	}
	if observed == nil {
		return &Label{Text: "Present (manual)", Color: ColorSuccess}
	}

	v := event.ClassifyAt(session, *observed)
	switch {
	case v.IsLate:
		return &Label{Text: fmt.Sprintf("Late (%s)", lateBy(v)), Color: ColorWarning, Verdict: &v}
	case v.LateMinutes > 0:
		return &Label{Text: fmt.Sprintf("Late (within tolerance, %s)", lateBy(v)), Color: ColorInfo, Verdict: &v}
	default:
		return &Label{Text: "On time", Color: ColorSuccess, Verdict: &v}
	}
}

// lateBy formats the lateness of v; arrivals under a minute late read "<1m".
func lateBy(v Verdict) string {
	if v.LateMinutes < 1 {
		return "<1m"
	}
	return fmt.Sprintf("%dm", v.LateMinutes)
}
