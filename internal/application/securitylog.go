package application

import (
	"log/slog"

	"github.com/ericfisherdev/cruciverba/internal/metrics"
)

// Security event types.
const (
	EventInvalidFormPassword  = "INVALID_FORM_PASSWORD"
	EventInvalidAdminPassword = "INVALID_ADMIN_PASSWORD"
	EventCSRFError            = "CSRF_ERROR"
	EventRateLimitExceeded    = "RATE_LIMIT_EXCEEDED"
	EventHoneypotTriggered    = "HONEYPOT_TRIGGERED"
	EventUnauthorizedAdmin    = "UNAUTHORIZED_ADMIN_ACTION"
)

// SecurityLog records suspicious or failed security-relevant actions.
type SecurityLog struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewSecurityLog creates a SecurityLog. m may be nil.
func NewSecurityLog(logger *slog.Logger, m *metrics.Metrics) *SecurityLog {
	return &SecurityLog{logger: logger, metrics: m}
}

// Event logs a security event at warn level and counts it.
func (s *SecurityLog) Event(event, clientIP, details string) {
	s.logger.Warn("security event",
		"event", event,
		"client_ip", clientIP,
		"details", details,
	)
	s.metrics.SecurityEvent(event)
}
