package application

import (
	"crypto/subtle"
	"errors"
	"log/slog"

	"github.com/ericfisherdev/cruciverba/internal/domain/model"
	"github.com/ericfisherdev/cruciverba/internal/metrics"
)

// ErrInvalidSecret is returned by AttemptLogin when the submitted secret does
// not match. It carries no information about which gate failed.
var ErrInvalidSecret = errors.New("invalid secret")

// attemptPreviewRunes is how much of a wrong password is kept in the security log.
const attemptPreviewRunes = 3

// AccessService checks submitted secrets against the configured secret of each gate.
type AccessService struct {
	formSecret  string
	adminSecret string
	sanitizer   *Sanitizer
	security    *SecurityLog
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewAccessService creates an AccessService with separate secrets for the
// contributor gate and the admin gate.
func NewAccessService(
	formSecret string,
	adminSecret string,
	sanitizer *Sanitizer,
	security *SecurityLog,
	m *metrics.Metrics,
	logger *slog.Logger,
) *AccessService {
	return &AccessService{
		formSecret:  formSecret,
		adminSecret: adminSecret,
		sanitizer:   sanitizer,
		security:    security,
		metrics:     m,
		logger:      logger,
	}
}

// AttemptLogin compares submitted against the secret of gate, case-sensitively.
// Returns nil when access is granted and ErrInvalidSecret otherwise. A failed
// attempt is recorded as a security event with a truncated copy of the attempt.
func (s *AccessService) AttemptLogin(gate model.Gate, submitted, clientIP string) error {
	attempt := s.sanitizer.Sanitize(submitted)

	var expected, failureEvent string
	switch gate {
	case model.GateContributor:
		expected, failureEvent = s.formSecret, EventInvalidFormPassword
	case model.GateAdmin:
		expected, failureEvent = s.adminSecret, EventInvalidAdminPassword
	default:
		return ErrInvalidSecret
	}

	if expected != "" && subtle.ConstantTimeCompare([]byte(attempt), []byte(expected)) == 1 {
		s.logger.Info("successful login", "gate", string(gate), "client_ip", clientIP)
		s.metrics.Login(string(gate), true)
		return nil
	}

	s.security.Event(failureEvent, clientIP, "Attempted password: "+truncateAttempt(attempt))
	s.metrics.Login(string(gate), false)
	return ErrInvalidSecret
}

func truncateAttempt(attempt string) string {
	runes := []rune(attempt)
	if len(runes) > attemptPreviewRunes {
		runes = runes[:attemptPreviewRunes]
	}
	return string(runes) + "***"
}
