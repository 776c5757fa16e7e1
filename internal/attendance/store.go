package attendance

import (
	"context"
	"time"
)

// MemberFilter narrows SelectMembers. Zero values do not filter.
type MemberFilter struct {
	Search  string
	GroupID string
	IDs     []string
}

// EventFilter narrows SelectEvents. Zero values do not filter.
type EventFilter struct {
	From   time.Time
	To     time.Time
	Status EventStatus
}

// MemberDirectory resolves members. GetMember returns ErrUnknownMember when
// no member has the id.
type MemberDirectory interface {
	GetMember(ctx context.Context, tenantID, memberID string) (Member, error)
	SelectMembers(ctx context.Context, tenantID string, f MemberFilter) ([]Member, error)
}

// RecordStore persists attendance records keyed by (event, member).
// GetRecord returns nil without error when no record exists. An empty
// eventID selects every record of the tenant.
type RecordStore interface {
	SelectAttendance(ctx context.Context, tenantID, eventID string) ([]Record, error)
	GetRecord(ctx context.Context, tenantID, eventID, memberID string) (*Record, error)
	UpsertAttendance(ctx context.Context, rec Record) error
	// MergeCheckIn upserts rec like UpsertAttendance but adds rec.Logs to
	// the stored logs in the same write, and returns the stored record.
	MergeCheckIn(ctx context.Context, rec Record) (Record, error)
	InsertAttendance(ctx context.Context, recs []Record) error
	DeleteAttendance(ctx context.Context, tenantID, eventID string, memberIDs []string) error
}

// RosterWriter applies one event's roster change atomically. Stores that
// implement it make roster saves all-or-nothing; others apply the invite and
// removal batches separately.
type RosterWriter interface {
	ApplyRoster(ctx context.Context, tenantID, eventID string, invites []Record, remove []string) error
}

// EventStore persists events. GetEvent returns ErrEventNotFound when missing.
type EventStore interface {
	GetEvent(ctx context.Context, tenantID, eventID string) (Event, error)
	SelectEvents(ctx context.Context, tenantID string, f EventFilter) ([]Event, error)
	CreateEvent(ctx context.Context, e Event) (Event, error)
	UpdateEvent(ctx context.Context, e Event) error
}

// Store is everything the service needs from persistence.
type Store interface {
	MemberDirectory
	RecordStore
	EventStore
	UpsertMember(ctx context.Context, m Member) error
}

// ScanEvent is one committed check-in, kept for audit.
type ScanEvent struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"tenant_id" db:"tenant_id"`
	EventID   string    `json:"event_id" db:"event_id"`
	MemberID  string    `json:"member_id" db:"member_id"`
	SessionID string    `json:"session_id" db:"session_id"`
	Status    Status    `json:"status" db:"status"`
	Source    string    `json:"source" db:"source"`
	ScannedAt time.Time `json:"scanned_at" db:"scanned_at"`
}

// AuditSink receives scan events after they are committed.
type AuditSink interface {
	PublishScan(ctx context.Context, evt ScanEvent) error
}

// Recorder observes engine activity.
type Recorder interface {
	CheckIn(sev Severity)
	Roster(added, removed int, err error)
	// AuditDropped counts a committed check-in whose scan event was not published.
	AuditDropped()
}

type nopRecorder struct{}

func (nopRecorder) CheckIn(Severity)       {}
func (nopRecorder) Roster(int, int, error) {}
func (nopRecorder) AuditDropped()          {}
