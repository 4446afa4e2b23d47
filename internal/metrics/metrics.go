// Package metrics defines the Prometheus collectors exported by cruciverba.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes recorded by SubmissionsTotal.
const (
	OutcomeAccepted  = "accepted"
	OutcomeInvalid   = "invalid"
	OutcomeDuplicate = "duplicate"
	OutcomeHoneypot  = "honeypot"
	OutcomeError     = "error"
)

// Metrics holds the application collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	submissions    *prometheus.CounterVec
	deletions      *prometheus.CounterVec
	exports        prometheus.Counter
	securityEvents *prometheus.CounterVec
	logins         *prometheus.CounterVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		submissions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cruciverba_submissions_total",
			Help: "Contribution submissions by outcome",
		}, []string{"outcome"}),
		deletions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cruciverba_deletions_total",
			Help: "Admin delete requests by outcome",
		}, []string{"outcome"}),
		exports: factory.NewCounter(prometheus.CounterOpts{
			Name: "cruciverba_exports_total",
			Help: "Completed CSV exports",
		}),
		securityEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cruciverba_security_events_total",
			Help: "Security events by type",
		}, []string{"event"}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cruciverba_logins_total",
			Help: "Login attempts by gate and result",
		}, []string{"gate", "result"}),
	}
}

// Submission counts one submission with the given outcome.
func (m *Metrics) Submission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

// Deletion counts one delete request with the given outcome ("deleted", "not_found", "error").
func (m *Metrics) Deletion(outcome string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(outcome).Inc()
}

// Export counts one completed CSV export.
func (m *Metrics) Export() {
	if m == nil {
		return
	}
	m.exports.Inc()
}

// SecurityEvent counts one security event of the given type.
func (m *Metrics) SecurityEvent(event string) {
	if m == nil {
		return
	}
	m.securityEvents.WithLabelValues(event).Inc()
}

// Login counts one login attempt.
func (m *Metrics) Login(gate string, granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.logins.WithLabelValues(gate, result).Inc()
}
