package attendance_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollcall/internal/attendance"
	"rollcall/internal/store"
)

func newRepo(t *testing.T) *attendance.Repository {
	t.Helper()
	db, err := store.NewDB(store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(context.Background(), db))
	return attendance.NewRepository(db.Client)
}

func seedEvent(t *testing.T, repo *attendance.Repository, id string) attendance.Event {
	t.Helper()
	tol := 10
	e, err := repo.CreateEvent(context.Background(), attendance.Event{
		ID:                   id,
		TenantID:             "t1",
		Name:                 "Event " + id,
		StartsAt:             time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC),
		Sessions:             attendance.Schedule{{ID: "am", Name: "Morning", Start: attendance.ClockTime{Hour: 9}, End: attendance.ClockTime{Hour: 12}}},
		LateToleranceMinutes: &tol,
		Status:               attendance.EventUpcoming,
	})
	require.NoError(t, err)
	return e
}

func TestRepositoryMembers(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	for _, m := range []attendance.Member{
		{ID: "m1", TenantID: "t1", Name: "Ayu Lestari", GroupID: "g1"},
		{ID: "m2", TenantID: "t1", Name: "Budi", GroupID: "g2"},
		{ID: "m3", TenantID: "t2", Name: "Ayu Other", GroupID: "g1"},
	} {
		require.NoError(t, repo.UpsertMember(ctx, m))
	}
	require.NoError(t, repo.UpsertMember(ctx, attendance.Member{ID: "m2", TenantID: "t1", Name: "Budi Santoso", GroupID: "g2"}))

	m, err := repo.GetMember(ctx, "t1", " m2 ")
	require.NoError(t, err)
	assert.Equal(t, "Budi Santoso", m.Name)

	_, err = repo.GetMember(ctx, "t1", "m3")
	assert.True(t, errors.Is(err, attendance.ErrUnknownMember))

	found, err := repo.SelectMembers(ctx, "t1", attendance.MemberFilter{Search: "ayu"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "m1", found[0].ID)

	found, err = repo.SelectMembers(ctx, "t1", attendance.MemberFilter{IDs: []string{"m1", "m2", "m3"}})
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = repo.SelectMembers(ctx, "t1", attendance.MemberFilter{GroupID: "g2"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "m2", found[0].ID)
}

func TestRepositoryEvents(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	e := seedEvent(t, repo, "e1")

	got, err := repo.GetEvent(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.True(t, got.StartsAt.Equal(e.StartsAt))
	assert.Equal(t, e.Sessions, got.Sessions)
	assert.Equal(t, 10, got.Tolerance())
	assert.Nil(t, got.ActualStartTime)

	now := time.Now().Truncate(time.Second)
	got.ActualStartTime = &now
	got.Status = attendance.EventCompleted
	require.NoError(t, repo.UpdateEvent(ctx, got))
	got, err = repo.GetEvent(ctx, "t1", "e1")
	require.NoError(t, err)
	require.NotNil(t, got.ActualStartTime)
	assert.True(t, got.ActualStartTime.Equal(now))
	assert.Equal(t, attendance.EventCompleted, got.Status)

	_, err = repo.GetEvent(ctx, "t2", "e1")
	assert.True(t, errors.Is(err, attendance.ErrEventNotFound))
	err = repo.UpdateEvent(ctx, attendance.Event{ID: "nope", TenantID: "t1"})
	assert.True(t, errors.Is(err, attendance.ErrEventNotFound))

	events, err := repo.SelectEvents(ctx, "t1", attendance.EventFilter{Status: attendance.EventCompleted})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestRepositoryAttendance(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	seedEvent(t, repo, "e1")
	seedEvent(t, repo, "e2")

	require.NoError(t, repo.InsertAttendance(ctx, []attendance.Record{
		attendance.Invite("t1", "e1", "a"),
		attendance.Invite("t1", "e1", "b"),
		attendance.Invite("t1", "e2", "a"),
	}))

	checkIn := time.Date(2024, 5, 4, 9, 5, 0, 0, time.UTC)
	require.NoError(t, repo.UpsertAttendance(ctx, attendance.Record{
		TenantID: "t1", EventID: "e1", MemberID: "a", Status: attendance.StatusPresent,
		CheckInTime: &checkIn, Logs: attendance.SessionLog{"am": checkIn},
	}))

	// re-inviting keeps the existing check-in
	require.NoError(t, repo.InsertAttendance(ctx, []attendance.Record{attendance.Invite("t1", "e1", "a")}))

	rec, err := repo.GetRecord(ctx, "t1", "e1", "a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, attendance.StatusPresent, rec.Status)
	require.NotNil(t, rec.CheckInTime)
	assert.True(t, rec.CheckInTime.Equal(checkIn))
	assert.True(t, rec.Logs["am"].Equal(checkIn))

	rec, err = repo.GetRecord(ctx, "t1", "e1", "zzz")
	require.NoError(t, err)
	assert.Nil(t, rec)

	all, err := repo.SelectAttendance(ctx, "t1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	require.NoError(t, repo.DeleteAttendance(ctx, "t1", "e1", []string{"a", "b"}))
	e1, err := repo.SelectAttendance(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Empty(t, e1)
	all, err = repo.SelectAttendance(ctx, "t1", "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRepositoryInsertIsAtomic(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	seedEvent(t, repo, "e1")

	// the second record violates the event foreign key
	err := repo.InsertAttendance(ctx, []attendance.Record{
		attendance.Invite("t1", "e1", "a"),
		attendance.Invite("t1", "missing", "b"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member b")

	recs, err := repo.SelectAttendance(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestRepositoryMergeCheckInKeepsOtherSessions(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	seedEvent(t, repo, "e1")
	require.NoError(t, repo.InsertAttendance(ctx, []attendance.Record{attendance.Invite("t1", "e1", "a")}))

	am := time.Date(2024, 5, 4, 9, 5, 0, 0, time.UTC)
	pm := time.Date(2024, 5, 4, 13, 35, 0, 0, time.UTC)
	// both stations built their write from the same stale read of the record
	checkIn := func(session string, at time.Time, status attendance.Status) attendance.Record {
		rec := attendance.Invite("t1", "e1", "a")
		rec.Status = status
		rec.CheckInTime = &at
		rec.Logs = attendance.SessionLog{session: at}
		return rec
	}
	first, err := repo.MergeCheckIn(ctx, checkIn("am", am, attendance.StatusPresent))
	require.NoError(t, err)
	assert.Len(t, first.Logs, 1)

	second, err := repo.MergeCheckIn(ctx, checkIn("pm", pm, attendance.StatusPresentLate))
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPresentLate, second.Status)
	require.Len(t, second.Logs, 2)
	assert.True(t, second.Logs["am"].Equal(am))
	assert.True(t, second.Logs["pm"].Equal(pm))

	stored, err := repo.GetRecord(ctx, "t1", "e1", "a")
	require.NoError(t, err)
	assert.Equal(t, second.Logs, stored.Logs)
	session, ok := stored.CheckedInSession()
	require.True(t, ok)
	assert.Equal(t, "pm", session)

	// a re-scan of the same session replaces only that entry
	later := am.Add(time.Minute)
	third, err := repo.MergeCheckIn(ctx, checkIn("am", later, attendance.StatusPresent))
	require.NoError(t, err)
	require.Len(t, third.Logs, 2)
	assert.True(t, third.Logs["am"].Equal(later))
	assert.True(t, third.Logs["pm"].Equal(pm))
}

func TestRepositoryMergeCheckInConcurrent(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	seedEvent(t, repo, "e1")

	sessions := []string{"s1", "s2", "s3", "s4"}
	base := time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i, session := range sessions {
		wg.Add(1)
		go func(session string, at time.Time) {
			defer wg.Done()
			rec := attendance.Invite("t1", "e1", "a")
			rec.Status = attendance.StatusPresent
			rec.CheckInTime = &at
			rec.Logs = attendance.SessionLog{session: at}
			_, err := repo.MergeCheckIn(ctx, rec)
			assert.NoError(t, err)
		}(session, base.Add(time.Duration(i)*time.Minute))
	}
	wg.Wait()

	rec, err := repo.GetRecord(ctx, "t1", "e1", "a")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Len(t, rec.Logs, len(sessions))
}

func TestRepositoryApplyRoster(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	seedEvent(t, repo, "e1")
	require.NoError(t, repo.InsertAttendance(ctx, []attendance.Record{
		attendance.Invite("t1", "e1", "a"),
		attendance.Invite("t1", "e1", "b"),
	}))

	require.NoError(t, repo.ApplyRoster(ctx, "t1", "e1",
		[]attendance.Record{attendance.Invite("t1", "e1", "c")}, []string{"a"}))
	recs, err := repo.SelectAttendance(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, memberIDs(recs))

	// the failing invite rolls back the removal made earlier in the transaction
	err = repo.ApplyRoster(ctx, "t1", "e1", []attendance.Record{
		attendance.Invite("t1", "e1", "d"),
		attendance.Invite("t1", "missing", "zzz"),
	}, []string{"b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "member zzz")

	recs, err = repo.SelectAttendance(ctx, "t1", "e1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, memberIDs(recs))
}

func memberIDs(recs []attendance.Record) []string {
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.MemberID)
	}
	return out
}

func TestRepositoryScanEvents(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 4, 9, 0, 0, 0, time.UTC)
	for i, member := range []string{"a", "b", "a"} {
		require.NoError(t, repo.AppendScanEvent(ctx, attendance.ScanEvent{
			ID: string(rune('x' + i)), TenantID: "t1", EventID: "e1", MemberID: member,
			SessionID: "main", Status: attendance.StatusPresent, ScannedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	// redelivery is idempotent
	require.NoError(t, repo.AppendScanEvent(ctx, attendance.ScanEvent{ID: "x", TenantID: "t1", EventID: "e1", MemberID: "a", ScannedAt: base}))

	scans, err := repo.ListScanEvents(ctx, "t1", "e1", "", 0, 0)
	require.NoError(t, err)
	require.Len(t, scans, 3)
	assert.Equal(t, "z", scans[0].ID, "newest first")

	scans, err = repo.ListScanEvents(ctx, "t1", "e1", "a", 10, 0)
	require.NoError(t, err)
	assert.Len(t, scans, 2)
}

func TestRepositoryRefreshTokens(t *testing.T) {
	repo := newRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.UpsertDevice(ctx, "t1", "gate-1"))
	require.NoError(t, repo.UpsertDevice(ctx, "t1", "gate-1"))
	require.NoError(t, repo.SaveRefreshToken(ctx, "gate-1", "tok", time.Now().Add(time.Hour)))

	active, err := repo.RefreshTokenActive(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, repo.RevokeRefreshToken(ctx, "tok"))
	active, err = repo.RefreshTokenActive(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, active)

	active, err = repo.RefreshTokenActive(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, active)
}
