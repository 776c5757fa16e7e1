package attendance

import "sort"

// RosterDiff is the change set that brings a stored roster to its target.
type RosterDiff struct {
	EventID  string   `json:"event_id"`
	ToAdd    []string `json:"to_add"`
	ToRemove []string `json:"to_remove"`
}

// Empty reports whether the roster already matches the target.
func (d RosterDiff) Empty() bool { return len(d.ToAdd) == 0 && len(d.ToRemove) == 0 }

// Reconcile diffs the target invitee ids against the records currently
// stored for eventID. Records of other events are ignored. Both outputs are
// sorted and free of duplicates.
func Reconcile(eventID string, target []string, current []Record) RosterDiff {
	want := make(map[string]struct{}, len(target))
	for _, id := range target {
		if id != "" {
			want[id] = struct{}{}
		}
	}
	have := make(map[string]struct{}, len(current))
	for _, r := range current {
		if r.EventID == eventID {
			have[r.MemberID] = struct{}{}
		}
	}

	diff := RosterDiff{EventID: eventID, ToAdd: []string{}, ToRemove: []string{}}
	for id := range want {
		if _, ok := have[id]; !ok {
			diff.ToAdd = append(diff.ToAdd, id)
		}
	}
	for id := range have {
		if _, ok := want[id]; !ok {
			diff.ToRemove = append(diff.ToRemove, id)
		}
	}
	sort.Strings(diff.ToAdd)
	sort.Strings(diff.ToRemove)
	return diff
}

// RosterPlan is a diff together with the history its removals would discard.
type RosterPlan struct {
	RosterDiff
	Discards []Record `json:"discards"`
}

// Plan computes the diff and lists removed records that hold a check-in.
func Plan(eventID string, target []string, current []Record) RosterPlan {
	plan := RosterPlan{RosterDiff: Reconcile(eventID, target, current), Discards: []Record{}}
	removed := make(map[string]struct{}, len(plan.ToRemove))
	for _, id := range plan.ToRemove {
		removed[id] = struct{}{}
	}
	for _, r := range current {
		if _, ok := removed[r.MemberID]; !ok || r.EventID != eventID {
			continue
		}
		if r.Status.IsPresent() || r.Status.IsExcused() {
			plan.Discards = append(plan.Discards, r)
		}
	}
	sort.Slice(plan.Discards, func(i, j int) bool { return plan.Discards[i].MemberID < plan.Discards[j].MemberID })
	return plan
}
