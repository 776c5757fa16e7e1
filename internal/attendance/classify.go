package attendance

import (
	"math"
	"time"
)

// Verdict is the punctuality of one observed check-in.
type Verdict struct {
	LateMinutes int  `json:"late_minutes"`
	IsLate      bool `json:"is_late"`
}

// WithinTolerance reports an arrival after the start that the tolerance still covers.
func (v Verdict) WithinTolerance() bool { return v.LateMinutes > 0 && !v.IsLate }

// Classify measures observed against start. LateMinutes is floored and may be
// negative for early arrivals. A check-in is late only once the elapsed time
// exceeds the tolerance window; negative tolerances count as zero.
func Classify(start, observed time.Time, toleranceMinutes int) Verdict {
	if toleranceMinutes < 0 {
		toleranceMinutes = 0
	}
	elapsed := observed.Sub(start)
	return Verdict{
		LateMinutes: int(math.Floor(elapsed.Minutes())),
		IsLate:      elapsed > 0 && elapsed > time.Duration(toleranceMinutes)*time.Minute,
	}
}

// ClassifyAt classifies observed against the session's reference start and the event tolerance.
func (e Event) ClassifyAt(sessionID string, observed time.Time) Verdict {
	return Classify(e.ReferenceStart(sessionID), observed, e.Tolerance())
}
