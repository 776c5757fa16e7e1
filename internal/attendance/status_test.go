package attendance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(h, m int) *time.Time {
	t := time.Date(2024, 5, 4, h, m, 0, 0, time.UTC)
	return &t
}

func TestResolveStatus(t *testing.T) {
	tol := 15
	event := Event{ID: "e1", StartsAt: *at(9, 0), LateToleranceMinutes: &tol}

	tests := []struct {
		name  string
		rec   Record
		text  string
		color Color
	}{
		{"absent", Record{Status: StatusAbsent}, "Absent", ColorDanger},
		{"excused", Record{Status: StatusExcused, CheckInTime: at(9, 30)}, "Excused", ColorWarning},
		{"excused late", Record{Status: StatusExcusedLate}, "Excused (Late)", ColorWarning},
		{"manual", Record{Status: StatusPresent}, "Present (manual)", ColorSuccess},
		{"early", Record{Status: StatusPresent, CheckInTime: at(8, 50)}, "On time", ColorSuccess},
		{"within tolerance", Record{Status: StatusPresent, CheckInTime: at(9, 10)}, "Late (within tolerance, 10m)", ColorInfo},
		{"beyond tolerance", Record{Status: StatusPresentLate, CheckInTime: at(9, 20)}, "Late (20m)", ColorWarning},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			label := ResolveStatus(&rec, event, "")
			require.NotNil(t, label)
			assert.Equal(t, tt.text, label.Text)
			assert.Equal(t, tt.color, label.Color)
		})
	}

	assert.Nil(t, ResolveStatus(nil, event, ""))
}

func TestResolveStatusSessions(t *testing.T) {
	tol := 15
	event := Event{
		ID:                   "e1",
		StartsAt:             *at(8, 0),
		LateToleranceMinutes: &tol,
		Sessions: Schedule{
			{ID: "am", Start: ClockTime{Hour: 9}},
			{ID: "pm", Start: ClockTime{Hour: 13, Minute: 30}},
		},
	}
	pmOnly := Record{Status: StatusPresent, CheckInTime: at(13, 35), Logs: SessionLog{"pm": *at(13, 35)}}
	both := Record{
		Status:      StatusPresentLate,
		CheckInTime: at(13, 50),
		Logs:        SessionLog{"am": *at(9, 5), "pm": *at(13, 50)},
	}

	tests := []struct {
		name    string
		rec     Record
		session string
		text    string
		color   Color
	}{
		{"check-in measured against its own session", pmOnly, "", "Late (within tolerance, 5m)", ColorInfo},
		{"named session", pmOnly, "pm", "Late (within tolerance, 5m)", ColorInfo},
		{"session without a check-in", pmOnly, "am", "Not checked in", ColorDanger},
		{"earlier session of many", both, "am", "Late (within tolerance, 5m)", ColorInfo},
		{"latest check-in", both, "", "Late (20m)", ColorWarning},
		{"no logs falls back to first session", Record{Status: StatusPresent, CheckInTime: at(9, 3)}, "", "Late (within tolerance, 3m)", ColorInfo},
		{"no logs with named session", Record{Status: StatusPresent, CheckInTime: at(13, 40)}, "pm", "Late (within tolerance, 10m)", ColorInfo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := tt.rec
			label := ResolveStatus(&rec, event, tt.session)
			require.NotNil(t, label)
			assert.Equal(t, tt.text, label.Text)
			assert.Equal(t, tt.color, label.Color)
		})
	}
}

func TestResolveStatusAgreesWithStoredStatus(t *testing.T) {
	tol := 15
	event := Event{
		StartsAt:             *at(8, 0),
		LateToleranceMinutes: &tol,
		Sessions:             Schedule{{ID: "am", Start: ClockTime{Hour: 9}}, {ID: "pm", Start: ClockTime{Hour: 13, Minute: 30}}},
	}
	for _, session := range []string{"", "am", "pm"} {
		for offset := -10; offset <= 40; offset += 5 {
			checkIn := event.ReferenceStart(session).Add(time.Duration(offset) * time.Minute)
			v := event.ClassifyAt(session, checkIn)
			rec := Record{
				Status:      StatusFor(DispositionPresent, v.IsLate),
				CheckInTime: &checkIn,
				Logs:        SessionLog{event.LogKey(session): checkIn},
			}
			label := ResolveStatus(&rec, event, "")
			require.NotNil(t, label.Verdict)
			assert.Equal(t, rec.Status == StatusPresentLate, label.Verdict.IsLate, "session=%q offset=%d", session, offset)
		}
	}
}

func TestResolveStatusSubMinute(t *testing.T) {
	zero := 0
	event := Event{StartsAt: *at(9, 0), LateToleranceMinutes: &zero}
	checkIn := at(9, 0).Add(30 * time.Second)
	label := ResolveStatus(&Record{Status: StatusPresentLate, CheckInTime: &checkIn}, event, "")
	require.NotNil(t, label)
	assert.Equal(t, "Late (<1m)", label.Text)
}
