package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rollcall/internal/logger"
)

// State is the step a check-in attempt has reached.
type State string

const (
	StateIdle      State = "idle"
	StateResolved  State = "resolved"
	StateStaged    State = "staged"
	StateCommitted State = "committed"
	StateAbandoned State = "abandoned"
	StateFailed    State = "failed"
)

var transitions = map[State][]State{
	StateIdle:     {StateResolved, StateFailed},
	StateResolved: {StateStaged, StateFailed},
	StateStaged:   {StateCommitted, StateAbandoned, StateFailed},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return len(transitions[s]) == 0 }

func (s State) canMove(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Disposition is the operator's choice when confirming a staged check-in.
type Disposition string

const (
	DispositionPresent Disposition = "present"
	DispositionExcused Disposition = "excused"
)

// StatusFor maps a disposition and lateness to the stored status.
func StatusFor(d Disposition, late bool) Status {
	switch {
	case d == DispositionExcused && late:
		return StatusExcusedLate
	case d == DispositionExcused:
		return StatusExcused
	case late:
		return StatusPresentLate
	default:
		return StatusPresent
	}
}

// Attempt is one scan or manual entry moving through the check-in steps.
// Outcome is only set once the attempt commits, is abandoned or fails.
type Attempt struct {
	Token      string     `json:"token"`
	TenantID   string     `json:"tenant_id"`
	EventID    string     `json:"event_id"`
	SessionID  string     `json:"session_id"`
	Identifier string     `json:"identifier"`
	Mode       LookupMode `json:"mode"`
	Source     string     `json:"source,omitempty"`
	State      State      `json:"state"`
	Member     *Member    `json:"member,omitempty"`
	Verdict    Verdict    `json:"verdict"`
	Options    []Status   `json:"options,omitempty"`
	StagedAt   time.Time  `json:"staged_at,omitempty"`
	Record     *Record    `json:"record,omitempty"`
	Outcome    Outcome    `json:"outcome"`
}

// NewAttempt starts an idle attempt for a raw identifier.
func NewAttempt(tenantID, eventID, sessionID, identifier string, mode LookupMode) Attempt {
	if mode == "" {
		mode = LookupScan
	}
	return Attempt{
		TenantID:   tenantID,
		EventID:    eventID,
		SessionID:  sessionID,
		Identifier: identifier,
		Mode:       mode,
		State:      StateIdle,
	}
}

func (a Attempt) moveTo(to State) (Attempt, error) {
	if !a.State.canMove(to) {
		return a, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, to)
	}
	a.State = to
	return a, nil
}

func (a Attempt) fail(err error) Attempt {
	a.State = StateFailed
	a.Outcome = failed(err)
	return a
}

// Resolved records the member an identifier resolved to.
func (a Attempt) Resolved(m Member) (Attempt, error) {
	next, err := a.moveTo(StateResolved)
	if err != nil {
		return a, err
	}
	next.Member = &m
	return next, nil
}

// Staged records the lateness computed at staging and the dispositions on offer.
func (a Attempt) Staged(v Verdict, at time.Time) (Attempt, error) {
	next, err := a.moveTo(StateStaged)
	if err != nil {
		return a, err
	}
	next.Verdict = v
	next.StagedAt = at
	next.Options = []Status{StatusFor(DispositionPresent, v.IsLate), StatusFor(DispositionExcused, v.IsLate)}
	return next, nil
}

// Committed records the written record and its outcome.
func (a Attempt) Committed(rec Record, out Outcome) (Attempt, error) {
	next, err := a.moveTo(StateCommitted)
	if err != nil {
		return a, err
	}
	next.Record = &rec
	next.Outcome = out
	return next, nil
}

// Abandoned drops a staged attempt without writing anything.
func (a Attempt) Abandoned() (Attempt, error) {
	next, err := a.moveTo(StateAbandoned)
	if err != nil {
		return a, err
	}
	next.Outcome = Outcome{Severity: SeverityInfo, Message: "check-in cancelled"}
	return next, nil
}

// Processor resolves, stages and commits check-ins.
type Processor struct {
	members MemberDirectory
	records RecordStore
	audit   AuditSink
	rec     Recorder
	log     logger.Logger
	now     func() time.Time
}

// NewProcessor builds a processor. audit, rec and log may be nil.
func NewProcessor(members MemberDirectory, records RecordStore, audit AuditSink, rec Recorder, log logger.Logger) *Processor {
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = logger.Nop{}
	}
	return &Processor{members: members, records: records, audit: audit, rec: rec, log: log, now: time.Now}
}

func (p *Processor) resolve(ctx context.Context, a Attempt) (Member, error) {
	m, err := p.members.GetMember(ctx, a.TenantID, a.Identifier)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrUnknownMember) || a.Mode != LookupManual {
		return Member{}, err
	}
	all, err := p.members.SelectMembers(ctx, a.TenantID, MemberFilter{Search: a.Identifier})
	if err != nil {
		return Member{}, err
	}
	candidates := MatchCandidates(a.Identifier, all)
	if len(candidates) == 0 {
		return Member{}, ErrUnknownMember
	}
	return candidates[0].Member, nil
}

// Stage resolves the identifier, checks the event is open and computes
// lateness. Nothing is written. A failed attempt carries an error outcome.
func (p *Processor) Stage(ctx context.Context, event Event, a Attempt) Attempt {
	m, err := p.resolve(ctx, a)
	if err != nil {
		p.rec.CheckIn(SeverityError)
		return a.fail(err)
	}
	if a, err = a.Resolved(m); err != nil {
		return a.fail(err)
	}
	if !event.IsOpen() {
		p.rec.CheckIn(SeverityError)
		return a.fail(ErrSessionNotOpen)
	}
	now := p.now()
	staged, err := a.Staged(event.ClassifyAt(a.SessionID, now), now)
	if err != nil {
		return a.fail(err)
	}
	return staged
}

// Commit writes the staged check-in with the chosen disposition. Lateness is
// classified again at commit time so the stored status always matches the
// stored check-in time. A store failure leaves the attempt staged so the
// operator can retry it.
func (p *Processor) Commit(ctx context.Context, event Event, a Attempt, choice Disposition, reason string) Attempt {
	if a.State != StateStaged || a.Member == nil {
		a.Outcome = failed(fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, StateCommitted))
		return a
	}
	if !event.IsOpen() {
		p.rec.CheckIn(SeverityError)
		return a.fail(ErrSessionNotOpen)
	}

	now := p.now()
	v := event.ClassifyAt(a.SessionID, now)
	rec := Invite(a.TenantID, event.ID, a.Member.ID)
	rec.Status = StatusFor(choice, v.IsLate)
	rec.CheckInTime = &now
	rec.Logs = SessionLog{event.LogKey(a.SessionID): now}
	if choice == DispositionExcused {
		rec.LeaveReason = reason
	}

	// the store merges logs so other sessions' check-ins are kept
	stored, err := p.records.MergeCheckIn(ctx, rec)
	if err != nil {
		p.rec.CheckIn(SeverityError)
		a.Outcome = failed(&StoreWriteError{Op: "upsert attendance", Err: err})
		return a
	}
	rec = stored

	out := commitOutcome(a.Member.Name, rec.Status, v)
	committed, err := a.Committed(rec, out)
	if err != nil {
		return a.fail(err)
	}
	committed.Verdict = v
	p.rec.CheckIn(out.Severity)

	if p.audit != nil {
		evt := ScanEvent{
			TenantID:  a.TenantID,
			EventID:   event.ID,
			MemberID:  a.Member.ID,
			SessionID: event.LogKey(a.SessionID),
			Status:    rec.Status,
			Source:    a.Source,
			ScannedAt: now,
		}
		// the record is already committed; a lost audit entry must not undo it
		if err := p.audit.PublishScan(ctx, evt); err != nil {
			p.rec.AuditDropped()
			p.log.Error("scan audit entry dropped", err, map[string]interface{}{
				"tenant": evt.TenantID, "event": evt.EventID, "member": evt.MemberID, "session": evt.SessionID,
			})
		}
	}
	return committed
}

// Abandon cancels a staged attempt. It never touches the store.
func (p *Processor) Abandon(a Attempt) Attempt {
	next, err := a.Abandoned()
	if err != nil {
		a.Outcome = failed(err)
		return a
	}
	return next
}

func commitOutcome(name string, st Status, v Verdict) Outcome {
	switch st {
	case StatusPresent:
		return Outcome{Severity: SeveritySuccess, Message: name + " checked in"}
	case StatusPresentLate:
		return Outcome{Severity: SeverityWarning, Message: fmt.Sprintf("%s checked in %s late", name, lateBy(v))}
	case StatusExcusedLate:
		return Outcome{Severity: SeverityInfo, Message: fmt.Sprintf("%s excused (%s late)", name, lateBy(v))}
	default:
		return Outcome{Severity: SeverityInfo, Message: name + " excused"}
	}
}
