package attendance

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Repository persists attendance data in Postgres or SQLite.
type Repository struct {
	db *sqlx.DB
}

var (
	_ Store        = (*Repository)(nil)
	_ RosterWriter = (*Repository)(nil)
)

// NewRepository creates a repo.
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

const memberColumns = `id, tenant_id, name, group_id, division_id, organization_id`

// UpsertMember creates or updates a directory entry.
func (r *Repository) UpsertMember(ctx context.Context, m Member) error {
	if m.ID == "" || m.TenantID == "" {
		return errors.New("member and tenant id required")
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO members (`+memberColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			name = excluded.name,
			group_id = excluded.group_id,
			division_id = excluded.division_id,
			organization_id = excluded.organization_id
	`), m.ID, m.TenantID, m.Name, m.GroupID, m.DivisionID, m.OrganizationID)
	return errors.Wrap(err, "upsert member")
}

// GetMember returns a member by exact id.
func (r *Repository) GetMember(ctx context.Context, tenantID, memberID string) (Member, error) {
	var m Member
	err := r.db.GetContext(ctx, &m, r.db.Rebind(`
		SELECT `+memberColumns+` FROM members WHERE tenant_id = ? AND id = ?
	`), tenantID, strings.TrimSpace(memberID))
	if errors.Is(err, sql.ErrNoRows) {
		return Member{}, ErrUnknownMember
	}
	return m, errors.Wrap(err, "get member")
}

// SelectMembers lists members matching the filter, ordered by name.
func (r *Repository) SelectMembers(ctx context.Context, tenantID string, f MemberFilter) ([]Member, error) {
	query := `SELECT ` + memberColumns + ` FROM members WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if s := strings.TrimSpace(f.Search); s != "" {
		query += ` AND LOWER(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(s)+"%")
	}
	if f.GroupID != "" {
		query += ` AND group_id = ?`
		args = append(args, f.GroupID)
	}
	if len(f.IDs) > 0 {
		query += ` AND id IN (?)`
		args = append(args, f.IDs)
	}
	query += ` ORDER BY name, id`

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select members")
	}
	var out []Member
	err = r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...)
	return out, errors.Wrap(err, "select members")
}

const eventColumns = `id, tenant_id, name, starts_at, sessions, late_tolerance_minutes, status, actual_start_at`

// CreateEvent writes a new event.
func (r *Repository) CreateEvent(ctx context.Context, e Event) (Event, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), e.ID, e.TenantID, e.Name, e.StartsAt.UTC(), e.Sessions, e.LateToleranceMinutes, e.Status, utcPtr(e.ActualStartTime))
	if err != nil {
		return Event{}, errors.Wrap(err, "create event")
	}
	return e, nil
}

// UpdateEvent overwrites the editable fields of an event.
func (r *Repository) UpdateEvent(ctx context.Context, e Event) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE events
		SET name = ?, starts_at = ?, sessions = ?, late_tolerance_minutes = ?, status = ?, actual_start_at = ?
		WHERE tenant_id = ? AND id = ?
	`), e.Name, e.StartsAt.UTC(), e.Sessions, e.LateToleranceMinutes, e.Status, utcPtr(e.ActualStartTime), e.TenantID, e.ID)
	if err != nil {
		return errors.Wrap(err, "update event")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// GetEvent returns a single event by id.
func (r *Repository) GetEvent(ctx context.Context, tenantID, eventID string) (Event, error) {
	var e Event
	err := r.db.GetContext(ctx, &e, r.db.Rebind(`
		SELECT `+eventColumns+` FROM events WHERE tenant_id = ? AND id = ?
	`), tenantID, eventID)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, ErrEventNotFound
	}
	return e, errors.Wrap(err, "get event")
}

// SelectEvents returns events with basic filters, oldest first.
func (r *Repository) SelectEvents(ctx context.Context, tenantID string, f EventFilter) ([]Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if !f.From.IsZero() {
		query += ` AND starts_at >= ?`
		args = append(args, f.From.UTC())
	}
	if !f.To.IsZero() {
		query += ` AND starts_at < ?`
		args = append(args, f.To.UTC())
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY starts_at, id`

	var out []Event
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...)
	return out, errors.Wrap(err, "select events")
}

const recordColumns = `tenant_id, event_id, member_id, status, check_in_at, leave_reason, logs`

// SelectAttendance returns the records of one event, or of the tenant when eventID is empty.
func (r *Repository) SelectAttendance(ctx context.Context, tenantID, eventID string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM attendance WHERE tenant_id = ?`
	args := []interface{}{tenantID}
	if eventID != "" {
		query += ` AND event_id = ?`
		args = append(args, eventID)
	}
	query += ` ORDER BY event_id, member_id`

	var out []Record
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...)
	return out, errors.Wrap(err, "select attendance")
}

// GetRecord returns the record of a member at an event, or nil.
func (r *Repository) GetRecord(ctx context.Context, tenantID, eventID, memberID string) (*Record, error) {
	var rec Record
	err := r.db.GetContext(ctx, &rec, r.db.Rebind(`
		SELECT `+recordColumns+` FROM attendance
		WHERE tenant_id = ? AND event_id = ? AND member_id = ?
	`), tenantID, eventID, memberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get attendance")
	}
	return &rec, nil
}

// UpsertAttendance writes a record atomically on its (event, member) key.
func (r *Repository) UpsertAttendance(ctx context.Context, rec Record) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO attendance (`+recordColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, event_id, member_id) DO UPDATE SET
			status = excluded.status,
			check_in_at = excluded.check_in_at,
			leave_reason = excluded.leave_reason,
			logs = excluded.logs,
			updated_at = excluded.updated_at
	`), rec.TenantID, rec.EventID, rec.MemberID, rec.Status, utcPtr(rec.CheckInTime), rec.LeaveReason, rec.Logs, time.Now().UTC())
	return errors.Wrap(err, "upsert attendance")
}

// MergeCheckIn writes a check-in, merging its session logs into the stored
// ones so concurrent check-ins for different sessions both survive.
func (r *Repository) MergeCheckIn(ctx context.Context, rec Record) (Record, error) {
	merge := `attendance.logs || excluded.logs`
	if r.db.DriverName() == "sqlite3" {
		merge = `json_patch(attendance.logs, excluded.logs)`
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return Record{}, errors.Wrap(err, "begin check-in")
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO attendance (`+recordColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, event_id, member_id) DO UPDATE SET
			status = excluded.status,
			check_in_at = excluded.check_in_at,
			leave_reason = excluded.leave_reason,
			logs = `+merge+`,
			updated_at = excluded.updated_at
	`), rec.TenantID, rec.EventID, rec.MemberID, rec.Status, utcPtr(rec.CheckInTime), rec.LeaveReason, rec.Logs, time.Now().UTC())
	if err != nil {
		return Record{}, errors.Wrap(err, "merge check-in")
	}

	var out Record
	err = tx.GetContext(ctx, &out, tx.Rebind(`
		SELECT `+recordColumns+` FROM attendance
		WHERE tenant_id = ? AND event_id = ? AND member_id = ?
	`), rec.TenantID, rec.EventID, rec.MemberID)
	if err != nil {
		return Record{}, errors.Wrap(err, "read check-in")
	}
	return out, errors.Wrap(tx.Commit(), "commit check-in")
}

// InsertAttendance invites members in one transaction. Existing records are kept.
func (r *Repository) InsertAttendance(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin insert attendance")
	}
	defer func() { _ = tx.Rollback() }()

	if err := insertInvites(ctx, tx, recs); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "commit insert attendance")
}

// DeleteAttendance removes the records of the given members at an event.
func (r *Repository) DeleteAttendance(ctx context.Context, tenantID, eventID string, memberIDs []string) error {
	if len(memberIDs) == 0 {
		return nil
	}
	return deleteRecords(ctx, r.db, tenantID, eventID, memberIDs)
}

// ApplyRoster removes and invites members of one event in a single
// transaction; either the whole roster change lands or none of it does.
func (r *Repository) ApplyRoster(ctx context.Context, tenantID, eventID string, invites []Record, remove []string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin roster")
	}
	defer func() { _ = tx.Rollback() }()

	if len(remove) > 0 {
		if err := deleteRecords(ctx, tx, tenantID, eventID, remove); err != nil {
			return err
		}
	}
	if len(invites) > 0 {
		if err := insertInvites(ctx, tx, invites); err != nil {
			return err
		}
	}
	return errors.Wrap(tx.Commit(), "commit roster")
}

func insertInvites(ctx context.Context, tx *sqlx.Tx, recs []Record) error {
	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO attendance (`+recordColumns+`, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, event_id, member_id) DO NOTHING
	`))
	if err != nil {
		return errors.Wrap(err, "prepare insert attendance")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx, rec.TenantID, rec.EventID, rec.MemberID, rec.Status, utcPtr(rec.CheckInTime), rec.LeaveReason, rec.Logs, now); err != nil {
			return errors.Wrapf(err, "insert attendance for member %s", rec.MemberID)
		}
	}
	return nil
}

func deleteRecords(ctx context.Context, db sqlx.ExtContext, tenantID, eventID string, memberIDs []string) error {
	query, args, err := sqlx.In(`
		DELETE FROM attendance WHERE tenant_id = ? AND event_id = ? AND member_id IN (?)
	`, tenantID, eventID, memberIDs)
	if err != nil {
		return errors.Wrap(err, "delete attendance")
	}
	_, err = db.ExecContext(ctx, db.Rebind(query), args...)
	return errors.Wrap(err, "delete attendance")
}

// AppendScanEvent adds an entry to the audit log.
func (r *Repository) AppendScanEvent(ctx context.Context, evt ScanEvent) error {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO scan_events (id, tenant_id, event_id, member_id, session_id, status, source, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`), evt.ID, evt.TenantID, evt.EventID, evt.MemberID, evt.SessionID, evt.Status, evt.Source, evt.ScannedAt.UTC())
	return errors.Wrap(err, "append scan event")
}

// ListScanEvents returns the audit trail of an event, optionally for one member.
func (r *Repository) ListScanEvents(ctx context.Context, tenantID, eventID, memberID string, limit, offset int) ([]ScanEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT id, tenant_id, event_id, member_id, session_id, status, source, scanned_at
		FROM scan_events WHERE tenant_id = ? AND event_id = ?`
	args := []interface{}{tenantID, eventID}
	if memberID != "" {
		query += ` AND member_id = ?`
		args = append(args, memberID)
	}
	query += ` ORDER BY scanned_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	var out []ScanEvent
	err := r.db.SelectContext(ctx, &out, r.db.Rebind(query), args...)
	return out, errors.Wrap(err, "list scan events")
}

// UpsertDevice ensures a scan station record exists.
func (r *Repository) UpsertDevice(ctx context.Context, tenantID, deviceID string) error {
	if deviceID == "" || tenantID == "" {
		return errors.New("device and tenant id required")
	}
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO devices (tenant_id, device_id, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT (tenant_id, device_id) DO NOTHING
	`), tenantID, deviceID, time.Now().UTC())
	return errors.Wrap(err, "upsert device")
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, deviceID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO refresh_tokens (device_id, token, expires_at)
		VALUES (?, ?, ?)
	`), deviceID, token, expiresAt.UTC())
	return errors.Wrap(err, "save refresh token")
}

// RevokeRefreshToken marks a token revoked.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE refresh_tokens SET revoked = TRUE WHERE token = ?`), token)
	return errors.Wrap(err, "revoke refresh token")
}

// RefreshTokenActive reports whether a token was issued and not revoked.
func (r *Repository) RefreshTokenActive(ctx context.Context, token string) (bool, error) {
	var revoked bool
	err := r.db.GetContext(ctx, &revoked, r.db.Rebind(`SELECT revoked FROM refresh_tokens WHERE token = ?`), token)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "get refresh token")
	}
	return !revoked, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
