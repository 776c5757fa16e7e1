package attendance

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

var errStoreDown = errors.New("store down")

// fakeStore is an in-memory Store. The fail* fields inject errors.
type fakeStore struct {
	mu      sync.Mutex
	members map[string]Member
	events  map[string]Event
	records map[string]Record

	failUpsert bool
	failInsert bool
	failDelete bool
	upserts    int
}

func newFakeStore(members ...Member) *fakeStore {
	s := &fakeStore{members: map[string]Member{}, events: map[string]Event{}, records: map[string]Record{}}
	for _, m := range members {
		s.members[m.TenantID+"/"+m.ID] = m
	}
	return s
}

func recKey(tenantID, eventID, memberID string) string {
	return tenantID + "/" + eventID + "/" + memberID
}

func (s *fakeStore) UpsertMember(_ context.Context, m Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.TenantID+"/"+m.ID] = m
	return nil
}

func (s *fakeStore) GetMember(_ context.Context, tenantID, memberID string) (Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[tenantID+"/"+memberID]
	if !ok {
		return Member{}, ErrUnknownMember
	}
	return m, nil
}

func (s *fakeStore) SelectMembers(_ context.Context, tenantID string, f MemberFilter) ([]Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := map[string]bool{}
	for _, id := range f.IDs {
		ids[id] = true
	}
	var out []Member
	for _, m := range s.members {
		if m.TenantID != tenantID {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(f.Search)) {
			continue
		}
		if f.GroupID != "" && m.GroupID != f.GroupID {
			continue
		}
		if len(ids) > 0 && !ids[m.ID] {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) GetEvent(_ context.Context, tenantID, eventID string) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[tenantID+"/"+eventID]
	if !ok {
		return Event{}, ErrEventNotFound
	}
	return e, nil
}

func (s *fakeStore) SelectEvents(_ context.Context, tenantID string, f EventFilter) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.TenantID != tenantID || (f.Status != "" && e.Status != f.Status) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *fakeStore) CreateEvent(_ context.Context, e Event) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.TenantID+"/"+e.ID] = e
	return e, nil
}

func (s *fakeStore) UpdateEvent(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.TenantID+"/"+e.ID]; !ok {
		return ErrEventNotFound
	}
	s.events[e.TenantID+"/"+e.ID] = e
	return nil
}

func (s *fakeStore) SelectAttendance(_ context.Context, tenantID, eventID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if r.TenantID == tenantID && (eventID == "" || r.EventID == eventID) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EventID != out[j].EventID {
			return out[i].EventID < out[j].EventID
		}
		return out[i].MemberID < out[j].MemberID
	})
	return out, nil
}

func (s *fakeStore) GetRecord(_ context.Context, tenantID, eventID, memberID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[recKey(tenantID, eventID, memberID)]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *fakeStore) UpsertAttendance(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert {
		return errStoreDown
	}
	s.upserts++
	s.records[recKey(rec.TenantID, rec.EventID, rec.MemberID)] = rec
	return nil
}

func (s *fakeStore) MergeCheckIn(_ context.Context, rec Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert {
		return Record{}, errStoreDown
	}
	s.upserts++
	k := recKey(rec.TenantID, rec.EventID, rec.MemberID)
	logs := SessionLog{}
	for key, at := range s.records[k].Logs {
		logs[key] = at
	}
	for key, at := range rec.Logs {
		logs[key] = at
	}
	rec.Logs = logs
	s.records[k] = rec
	return rec, nil
}

func (s *fakeStore) InsertAttendance(_ context.Context, recs []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failInsert {
		return errStoreDown
	}
	for _, r := range recs {
		k := recKey(r.TenantID, r.EventID, r.MemberID)
		if _, ok := s.records[k]; !ok {
			s.records[k] = r
		}
	}
	return nil
}

func (s *fakeStore) DeleteAttendance(_ context.Context, tenantID, eventID string, memberIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDelete {
		return errStoreDown
	}
	for _, id := range memberIDs {
		delete(s.records, recKey(tenantID, eventID, id))
	}
	return nil
}

type fakeAudit struct {
	mu     sync.Mutex
	events []ScanEvent
	err    error
}

func (a *fakeAudit) PublishScan(_ context.Context, evt ScanEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt)
	return a.err
}

type countingRecorder struct {
	checkins     map[Severity]int
	rosterOK     int
	rosterKO     int
	auditDropped int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{checkins: map[Severity]int{}}
}

func (r *countingRecorder) CheckIn(sev Severity) { r.checkins[sev]++ }

func (r *countingRecorder) Roster(_, _ int, err error) {
	if err != nil {
		r.rosterKO++
		return
	}
	r.rosterOK++
}

func (r *countingRecorder) AuditDropped() { r.auditDropped++ }
