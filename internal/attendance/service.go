package attendance

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"rollcall/internal/logger"
)

// EventInput is the editable part of an event.
type EventInput struct {
	Name                 string      `json:"name" validate:"required,max=200"`
	StartsAt             time.Time   `json:"starts_at" validate:"required"`
	Sessions             Schedule    `json:"sessions" validate:"dive"`
	LateToleranceMinutes *int        `json:"late_tolerance_minutes" validate:"omitempty,min=0,max=1440"`
	Status               EventStatus `json:"status" validate:"omitempty,oneof=upcoming completed cancelled"`
}

// Service coordinates rosters, check-ins and recaps for one store.
// Every call names the tenant it operates on.
type Service struct {
	store Store
	proc  *Processor
	rec   Recorder
	log   logger.Logger
	loc   *time.Location
}

// NewService creates a service backed by a store. audit, rec and log may be nil.
func NewService(store Store, audit AuditSink, rec Recorder, log logger.Logger, loc *time.Location) *Service {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		store: store,
		proc:  NewProcessor(store, store, audit, rec, log),
		rec:   rec,
		log:   log,
		loc:   loc,
	}
}

func (s *Service) event(ctx context.Context, tenantID, eventID string) (Event, error) {
	e, err := s.store.GetEvent(ctx, tenantID, eventID)
	if err != nil {
		return Event{}, err
	}
	e.StartsAt = e.StartsAt.In(s.loc)
	return e, nil
}

// CreateEvent stores a new event and invites the given members.
func (s *Service) CreateEvent(ctx context.Context, tenantID string, in EventInput, invitees []string) (Event, RosterPlan, error) {
	if err := in.Sessions.Validate(); err != nil {
		return Event{}, RosterPlan{}, err
	}
	e := Event{
		ID:                   uuid.NewString(),
		TenantID:             tenantID,
		Name:                 in.Name,
		StartsAt:             in.StartsAt,
		Sessions:             in.Sessions,
		LateToleranceMinutes: in.LateToleranceMinutes,
		Status:               in.Status,
	}
	if e.Status == "" {
		e.Status = EventUpcoming
	}
	created, err := s.store.CreateEvent(ctx, e)
	if err != nil {
		return Event{}, RosterPlan{}, &StoreWriteError{Op: "create event", Err: err}
	}
	s.log.Info("event created", map[string]interface{}{"tenant": tenantID, "event": created.ID, "invitees": len(invitees)})
	plan, err := s.SaveRoster(ctx, tenantID, created.ID, invitees, true)
	return created, plan, err
}

// UpdateEvent applies an edit. The roster is saved separately.
func (s *Service) UpdateEvent(ctx context.Context, tenantID, eventID string, in EventInput) (Event, error) {
	if err := in.Sessions.Validate(); err != nil {
		return Event{}, err
	}
	e, err := s.event(ctx, tenantID, eventID)
	if err != nil {
		return Event{}, err
	}
	e.Name = in.Name
	e.StartsAt = in.StartsAt
	e.Sessions = in.Sessions
	e.LateToleranceMinutes = in.LateToleranceMinutes
	if in.Status != "" {
		e.Status = in.Status
	}
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return Event{}, &StoreWriteError{Op: "update event", Err: err}
	}
	return e, nil
}

// OpenEvent opens live check-in. The open instant is set once.
func (s *Service) OpenEvent(ctx context.Context, tenantID, eventID string) (Event, error) {
	e, err := s.event(ctx, tenantID, eventID)
	if err != nil {
		return Event{}, err
	}
	if e.ActualStartTime != nil {
		return e, ErrAlreadyOpen
	}
	if e.Status == EventCancelled {
		return e, ErrSessionNotOpen
	}
	now := s.proc.now().In(s.loc)
	e.ActualStartTime = &now
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return Event{}, &StoreWriteError{Op: "open event", Err: err}
	}
	s.log.Info("event opened", map[string]interface{}{"tenant": tenantID, "event": eventID})
	return e, nil
}

// SetEventStatus moves an event through its lifecycle.
func (s *Service) SetEventStatus(ctx context.Context, tenantID, eventID string, status EventStatus) (Event, error) {
	e, err := s.event(ctx, tenantID, eventID)
	if err != nil {
		return Event{}, err
	}
	e.Status = status
	if err := s.store.UpdateEvent(ctx, e); err != nil {
		return Event{}, &StoreWriteError{Op: "update event", Err: err}
	}
	return e, nil
}

// ListEvents returns the tenant's events in the service location.
func (s *Service) ListEvents(ctx context.Context, tenantID string, f EventFilter) ([]Event, error) {
	events, err := s.store.SelectEvents(ctx, tenantID, f)
	if err != nil {
		return nil, err
	}
	for i := range events {
		events[i].StartsAt = events[i].StartsAt.In(s.loc)
	}
	return events, nil
}

// PlanRoster previews the changes saving target would make.
func (s *Service) PlanRoster(ctx context.Context, tenantID, eventID string, target []string) (RosterPlan, error) {
	if _, err := s.event(ctx, tenantID, eventID); err != nil {
		return RosterPlan{}, err
	}
	current, err := s.store.SelectAttendance(ctx, tenantID, eventID)
	if err != nil {
		return RosterPlan{}, err
	}
	return Plan(eventID, target, current), nil
}

// SaveRoster brings the stored roster in line with target. Removing members
// who already checked in requires confirmDiscard; otherwise the plan is
// returned with ErrDiscardsHistory and nothing is written.
func (s *Service) SaveRoster(ctx context.Context, tenantID, eventID string, target []string, confirmDiscard bool) (RosterPlan, error) {
	plan, err := s.PlanRoster(ctx, tenantID, eventID, target)
	if err != nil {
		return RosterPlan{}, err
	}
	if len(plan.Discards) > 0 && !confirmDiscard {
		return plan, ErrDiscardsHistory
	}
	err = s.applyRoster(ctx, tenantID, plan.RosterDiff)
	s.rec.Roster(len(plan.ToAdd), len(plan.ToRemove), err)
	if err != nil {
		s.log.Error("roster save failed", err, map[string]interface{}{"tenant": tenantID, "event": eventID})
		return plan, err
	}
	if !plan.Empty() {
		s.log.Info("roster saved", map[string]interface{}{
			"tenant": tenantID, "event": eventID, "added": len(plan.ToAdd), "removed": len(plan.ToRemove),
		})
	}
	return plan, nil
}

func (s *Service) applyRoster(ctx context.Context, tenantID string, diff RosterDiff) error {
	if diff.Empty() {
		return nil
	}
	invites := make([]Record, 0, len(diff.ToAdd))
	for _, id := range diff.ToAdd {
		invites = append(invites, Invite(tenantID, diff.EventID, id))
	}
	if w, ok := s.store.(RosterWriter); ok {
		if err := w.ApplyRoster(ctx, tenantID, diff.EventID, invites, diff.ToRemove); err != nil {
			return &StoreWriteError{Op: "apply roster", Err: err}
		}
		return nil
	}

	if len(invites) > 0 {
		if err := s.store.InsertAttendance(ctx, invites); err != nil {
			var partial *PartialBatchError
			if errors.As(err, &partial) {
				return err
			}
			return &StoreWriteError{Op: "insert attendance", Err: err}
		}
	}
	if len(diff.ToRemove) > 0 {
		if err := s.store.DeleteAttendance(ctx, tenantID, diff.EventID, diff.ToRemove); err != nil {
			if len(diff.ToAdd) > 0 {
				return &PartialBatchError{Applied: diff.ToAdd, Failed: diff.ToRemove, Err: err}
			}
			return &StoreWriteError{Op: "delete attendance", Err: err}
		}
	}
	return nil
}

// Stage resolves and classifies a scan without writing it.
func (s *Service) Stage(ctx context.Context, a Attempt) Attempt {
	a.Token = uuid.NewString()
	e, err := s.event(ctx, a.TenantID, a.EventID)
	if err != nil {
		s.rec.CheckIn(SeverityError)
		return a.fail(err)
	}
	staged := s.proc.Stage(ctx, e, a)
	if staged.State == StateFailed {
		s.log.Debug("check-in rejected", staged.Outcome.Err, map[string]interface{}{"tenant": a.TenantID, "event": a.EventID})
	}
	return staged
}

// Commit confirms a staged attempt against the current state of its event.
func (s *Service) Commit(ctx context.Context, a Attempt, choice Disposition, reason string) Attempt {
	e, err := s.event(ctx, a.TenantID, a.EventID)
	if err != nil {
		a.Outcome = failed(err)
		return a
	}
	out := s.proc.Commit(ctx, e, a, choice, reason)
	if out.Outcome.Severity == SeverityError {
		s.log.Error("check-in commit failed", out.Outcome.Err, map[string]interface{}{"tenant": a.TenantID, "event": a.EventID})
	}
	return out
}

// Abandon drops a staged attempt.
func (s *Service) Abandon(a Attempt) Attempt {
	return s.proc.Abandon(a)
}

// ResetRecord puts a member back to absent with no check-in.
func (s *Service) ResetRecord(ctx context.Context, tenantID, eventID, memberID string) error {
	rec, err := s.store.GetRecord(ctx, tenantID, eventID, memberID)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrRecordNotFound
	}
	if err := s.store.UpsertAttendance(ctx, Invite(tenantID, eventID, memberID)); err != nil {
		return &StoreWriteError{Op: "reset attendance", Err: err}
	}
	return nil
}

// SearchMembers lists manual-entry candidates for query.
func (s *Service) SearchMembers(ctx context.Context, tenantID, query string) ([]Candidate, error) {
	members, err := s.store.SelectMembers(ctx, tenantID, MemberFilter{Search: query})
	if err != nil {
		return nil, err
	}
	return MatchCandidates(query, members), nil
}

// Recap ranks members by attendance over the filtered events.
func (s *Service) Recap(ctx context.Context, tenantID string, f RecapFilter) ([]Assessment, error) {
	members, err := s.store.SelectMembers(ctx, tenantID, MemberFilter{GroupID: f.GroupID})
	if err != nil {
		return nil, err
	}
	records, err := s.store.SelectAttendance(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}
	events, err := s.ListEvents(ctx, tenantID, EventFilter{})
	if err != nil {
		return nil, err
	}
	return Rank(Aggregate(members, records, events, f)), nil
}

// Summary counts the roster of one event.
func (s *Service) Summary(ctx context.Context, tenantID, eventID string) (EventSummary, error) {
	if _, err := s.event(ctx, tenantID, eventID); err != nil {
		return EventSummary{}, err
	}
	records, err := s.store.SelectAttendance(ctx, tenantID, eventID)
	if err != nil {
		return EventSummary{}, err
	}
	return Summarize(eventID, records), nil
}

// RosterEntry is one invited member with their display status.
type RosterEntry struct {
	Member Member `json:"member"`
	Record Record `json:"record"`
	Label  *Label `json:"label"`
}

// Roster lists the invitees of an event labelled for sessionID.
func (s *Service) Roster(ctx context.Context, tenantID, eventID, sessionID string) ([]RosterEntry, error) {
	e, err := s.event(ctx, tenantID, eventID)
	if err != nil {
		return nil, err
	}
	records, err := s.store.SelectAttendance(ctx, tenantID, eventID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.MemberID)
	}
	byID := map[string]Member{}
	if len(ids) > 0 {
		members, err := s.store.SelectMembers(ctx, tenantID, MemberFilter{IDs: ids})
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			byID[m.ID] = m
		}
	}
	out := make([]RosterEntry, 0, len(records))
	for i := range records {
		m, ok := byID[records[i].MemberID]
		if !ok {
			m = Member{ID: records[i].MemberID, TenantID: tenantID}
		}
		out = append(out, RosterEntry{Member: m, Record: records[i], Label: ResolveStatus(&records[i], e, sessionID)})
	}
	return out, nil
}

// HistoryRow is one past event of a member.
type HistoryRow struct {
	Event  Event  `json:"event"`
	Record Record `json:"record"`
	Label  *Label `json:"label"`
}

// History lists a member's attendance over the filtered events, newest first.
func (s *Service) History(ctx context.Context, tenantID, memberID string, f RecapFilter) ([]HistoryRow, error) {
	events, err := s.ListEvents(ctx, tenantID, EventFilter{})
	if err != nil {
		return nil, err
	}
	records, err := s.store.SelectAttendance(ctx, tenantID, "")
	if err != nil {
		return nil, err
	}
	byEvent := make(map[string]Event, len(events))
	for _, e := range events {
		if f.matches(e) {
			byEvent[e.ID] = e
		}
	}
	var out []HistoryRow
	for i := range records {
		e, ok := byEvent[records[i].EventID]
		if !ok || records[i].MemberID != memberID {
			continue
		}
		out = append(out, HistoryRow{Event: e, Record: records[i], Label: ResolveStatus(&records[i], e, "")})
	}
	sortHistory(out)
	return out, nil
}

// RecordStatus labels one member's record at an event, nil when not invited.
func (s *Service) RecordStatus(ctx context.Context, tenantID, eventID, memberID, sessionID string) (*Label, error) {
	e, err := s.event(ctx, tenantID, eventID)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetRecord(ctx, tenantID, eventID, memberID)
	if err != nil {
		return nil, err
	}
	return ResolveStatus(rec, e, sessionID), nil
}

// ImportEvents stores events produced elsewhere, keeping their ids.
func (s *Service) ImportEvents(ctx context.Context, tenantID string, events []Event) ([]Event, error) {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		if err := e.Sessions.Validate(); err != nil {
			return out, err
		}
		e.TenantID = tenantID
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Status == "" {
			e.Status = EventUpcoming
		}
		created, err := s.store.CreateEvent(ctx, e)
		if err != nil {
			return out, &StoreWriteError{Op: "import event", Err: err}
		}
		out = append(out, created)
	}
	s.log.Info("events imported", map[string]interface{}{"tenant": tenantID, "count": len(out)})
	return out, nil
}

// SaveMember creates or updates a member of the directory.
func (s *Service) SaveMember(ctx context.Context, m Member) error {
	if err := s.store.UpsertMember(ctx, m); err != nil {
		return &StoreWriteError{Op: "save member", Err: err}
	}
	return nil
}
