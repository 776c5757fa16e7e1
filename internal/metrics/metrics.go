package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"rollcall/internal/attendance"
)

// Metrics exposes engine counters to prometheus.
type Metrics struct {
	checkins    *prometheus.CounterVec
	rosterOps   *prometheus.CounterVec
	rosterFails prometheus.Counter
	rateLimited prometheus.Counter
	auditDrops  prometheus.Counter
}

var _ attendance.Recorder = (*Metrics)(nil)

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		checkins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "checkins_total",
			Help:      "Check-in attempts by outcome severity.",
		}, []string{"severity"}),
		rosterOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "roster_changes_total",
			Help:      "Invitees added to or removed from event rosters.",
		}, []string{"op"}),
		rosterFails: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "roster_failures_total",
			Help:      "Roster saves that failed in whole or in part.",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}),
		auditDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rollcall",
			Name:      "scan_audit_dropped_total",
			Help:      "Committed check-ins whose scan audit entry could not be queued.",
		}),
	}
	reg.MustRegister(m.checkins, m.rosterOps, m.rosterFails, m.rateLimited, m.auditDrops)
	return m
}

func (m *Metrics) CheckIn(sev attendance.Severity) {
	m.checkins.WithLabelValues(string(sev)).Inc()
}

func (m *Metrics) Roster(added, removed int, err error) {
	if err != nil {
		m.rosterFails.Inc()
		return
	}
	m.rosterOps.WithLabelValues("add").Add(float64(added))
	m.rosterOps.WithLabelValues("remove").Add(float64(removed))
}

func (m *Metrics) AuditDropped() {
	m.auditDrops.Inc()
}

// RateLimited counts a rejected request.
func (m *Metrics) RateLimited() {
	m.rateLimited.Inc()
}
