package application

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/ericfisherdev/cruciverba/internal/domain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAccessService(buf *bytes.Buffer) *AccessService {
	logger := slog.New(slog.NewTextHandler(buf, nil))
	return NewAccessService("bianca", "bianca2024", NewSanitizer(), NewSecurityLog(logger, nil), nil, logger)
}

func TestAccessService_AttemptLogin_Granted(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestAccessService(&buf)

	require.NoError(t, svc.AttemptLogin(model.GateContributor, "bianca", "10.0.0.1"))
	require.NoError(t, svc.AttemptLogin(model.GateAdmin, "bianca2024", "10.0.0.1"))
	assert.Contains(t, buf.String(), "successful login")
	assert.NotContains(t, buf.String(), "security event")
}

func TestAccessService_AttemptLogin_SecretsAreIndependent(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestAccessService(&buf)

	assert.ErrorIs(t, svc.AttemptLogin(model.GateAdmin, "bianca", "10.0.0.1"), ErrInvalidSecret)
	assert.ErrorIs(t, svc.AttemptLogin(model.GateContributor, "bianca2024", "10.0.0.1"), ErrInvalidSecret)
}

func TestAccessService_AttemptLogin_CaseSensitive(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestAccessService(&buf)

	assert.ErrorIs(t, svc.AttemptLogin(model.GateContributor, "Bianca", "10.0.0.1"), ErrInvalidSecret)
	assert.ErrorIs(t, svc.AttemptLogin(model.GateContributor, "BIANCA", "10.0.0.1"), ErrInvalidSecret)
}

func TestAccessService_AttemptLogin_DeniedLogsTruncatedAttempt(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestAccessService(&buf)

	err := svc.AttemptLogin(model.GateContributor, "wrong_password", "10.0.0.9")
	require.ErrorIs(t, err, ErrInvalidSecret)

	out := buf.String()
	assert.Contains(t, out, "security event")
	assert.Contains(t, out, EventInvalidFormPassword)
	assert.Contains(t, out, "10.0.0.9")
	assert.Contains(t, out, "wro***")
	assert.NotContains(t, out, "wrong_password")
}

func TestAccessService_AttemptLogin_AdminDeniedEvent(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestAccessService(&buf)

	require.ErrorIs(t, svc.AttemptLogin(model.GateAdmin, "x", "10.0.0.9"), ErrInvalidSecret)
	assert.Contains(t, buf.String(), EventInvalidAdminPassword)
	assert.Contains(t, buf.String(), "x***")
}

func TestAccessService_AttemptLogin_EmptyAndUnknown(t *testing.T) {
	var buf bytes.Buffer
	svc := newTestAccessService(&buf)

	assert.ErrorIs(t, svc.AttemptLogin(model.GateContributor, "", "10.0.0.1"), ErrInvalidSecret)
	assert.ErrorIs(t, svc.AttemptLogin(model.Gate("other"), "bianca", "10.0.0.1"), ErrInvalidSecret)

	unconfigured := NewAccessService("", "", NewSanitizer(), NewSecurityLog(slog.New(slog.NewTextHandler(&buf, nil)), nil), nil, slog.Default())
	assert.ErrorIs(t, unconfigured.AttemptLogin(model.GateAdmin, "", "10.0.0.1"), ErrInvalidSecret,
		"an empty configured secret never grants access")
}

func TestTruncateAttempt(t *testing.T) {
	assert.Equal(t, "abc***", truncateAttempt("abcdef"))
	assert.Equal(t, "ab***", truncateAttempt("ab"))
	assert.Equal(t, "***", truncateAttempt(""))
	assert.Equal(t, "càt***", truncateAttempt("càttivo"))
}
