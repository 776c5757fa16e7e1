package attendance

import (
	"sort"
	"time"
)

// Tier is the qualitative activity bucket of a member.
type Tier string

const (
	TierExcellent Tier = "EXCELLENT"
	TierGood      Tier = "GOOD"
	TierFair      Tier = "FAIR"
	TierPoor      Tier = "POOR"
	TierNone      Tier = "NONE"
)

// TierFor buckets a percentage. Members never invited in range are unscored.
func TierFor(invited int, percentage float64) Tier {
	switch {
	case invited == 0:
		return TierNone
	case percentage >= 85:
		return TierExcellent
	case percentage >= 70:
		return TierGood
	case percentage >= 50:
		return TierFair
	default:
		return TierPoor
	}
}

// Assessment is the derived attendance standing of one member.
type Assessment struct {
	MemberID      string  `json:"member_id"`
	Name          string  `json:"name"`
	Invited       int     `json:"invited"`
	Present       int     `json:"present"`
	Excused       int     `json:"excused"`
	Absent        int     `json:"absent"`
	Percentage    float64 `json:"percentage"`
	Tier          Tier    `json:"tier"`
	NeverAttended bool    `json:"never_attended"`
}

// RecapFilter narrows the event population counted by Aggregate.
// Zero values do not filter.
type RecapFilter struct {
	Year    int          `form:"year" json:"year,omitempty"`
	Months  []time.Month `form:"month" json:"months,omitempty"`
	GroupID string       `form:"group_id" json:"group_id,omitempty"`
	EventID string       `form:"event_id" json:"event_id,omitempty"`
}

func (f RecapFilter) matches(e Event) bool {
	if f.EventID != "" && e.ID != f.EventID {
		return false
	}
	if f.Year != 0 && e.StartsAt.Year() != f.Year {
		return false
	}
	if len(f.Months) == 0 {
		return true
	}
	for _, m := range f.Months {
		if e.StartsAt.Month() == m {
			return true
		}
	}
	return false
}

func (f RecapFilter) eligible(m Member) bool {
	if !m.Assigned() {
		return false
	}
	return f.GroupID == "" || m.GroupID == f.GroupID
}

// Aggregate computes an assessment for every assigned member holding at
// least one attendance record. Counts only cover events matching filter.
func Aggregate(members []Member, records []Record, events []Event, filter RecapFilter) map[string]Assessment {
	inRange := make(map[string]struct{}, len(events))
	for _, e := range events {
		if filter.matches(e) {
			inRange[e.ID] = struct{}{}
		}
	}
	byMember := make(map[string][]Record)
	for _, r := range records {
		byMember[r.MemberID] = append(byMember[r.MemberID], r)
	}

	out := make(map[string]Assessment)
	for _, m := range members {
		recs, invitedEver := byMember[m.ID]
		if !invitedEver || !filter.eligible(m) {
			continue
		}
		a := Assessment{MemberID: m.ID, Name: m.Name}
		for _, r := range recs {
			if _, ok := inRange[r.EventID]; !ok {
				continue
			}
			a.Invited++
			switch {
			case r.Status.IsPresent():
				a.Present++
			case r.Status.IsExcused():
				a.Excused++
			case r.Status == StatusAbsent:
				a.Absent++
			}
		}
		if a.Invited > 0 {
			a.Percentage = float64(a.Present) / float64(a.Invited) * 100
			a.NeverAttended = a.Present == 0
		}
		a.Tier = TierFor(a.Invited, a.Percentage)
		out[m.ID] = a
	}
	return out
}

// Rank orders assessments by percentage descending, then name ascending.
func Rank(assessments map[string]Assessment) []Assessment {
	out := make([]Assessment, 0, len(assessments))
	for _, a := range assessments {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Percentage != out[j].Percentage {
			return out[i].Percentage > out[j].Percentage
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out
}

// EventSummary counts the roster of one event by state.
type EventSummary struct {
	EventID string `json:"event_id"`
	Present int    `json:"present"`
	Excused int    `json:"excused"`
	Absent  int    `json:"absent"`
	Total   int    `json:"total"`
}

// Summarize counts the records belonging to eventID.
func Summarize(eventID string, records []Record) EventSummary {
	s := EventSummary{EventID: eventID}
	for _, r := range records {
		if r.EventID != eventID {
			continue
		}
		s.Total++
		switch {
		case r.Status.IsPresent():
			s.Present++
		case r.Status.IsExcused():
			s.Excused++
		default:
			s.Absent++
		}
	}
	return s
}

func sortHistory(rows []HistoryRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Event.StartsAt.After(rows[j].Event.StartsAt)
	})
}
