package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.Gate.CookieName)
	assert.Equal(t, []string{"/admin", "/api/admin"}, cfg.Gate.ProtectedPrefixes)
	assert.Equal(t, "*", cfg.Gate.AdminIPWhitelist)
	assert.Equal(t, "/login", cfg.Gate.SignInPath)
	assert.Equal(t, "/forbidden", cfg.Gate.ForbiddenPath)
	assert.Equal(t, 30*time.Second, cfg.Gate.Leeway)
	assert.Equal(t, 1024, cfg.Gate.EventBuffer)
	assert.Equal(t, "security_alert_queue", cfg.RabbitMQ.AlertQueue)
	assert.Equal(t, 15*time.Second, cfg.API.Timeout)
	assert.Equal(t, "file", cfg.Session.Backend)

	assert.ErrorIs(t, cfg.ValidateGateway(), ErrMissingSecret)
	assert.ErrorIs(t, cfg.ValidateAlerter(), ErrMissingRabbitMQ)
	assert.NoError(t, cfg.ValidateClient())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("GATE_SECRET", "s3cret")
	t.Setenv("GATE_PROTECTED_PREFIXES", "/admin,/internal")
	t.Setenv("GATE_ADMIN_IP_WHITELIST", "10.0.0.0/8")
	t.Setenv("GATE_LEEWAY", "1m")
	t.Setenv("SESSION_BACKEND", "ldap")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.NoError(t, cfg.ValidateGateway())
	assert.Equal(t, []string{"/admin", "/internal"}, cfg.Gate.ProtectedPrefixes)
	assert.Equal(t, "10.0.0.0/8", cfg.Gate.AdminIPWhitelist)
	assert.Equal(t, time.Minute, cfg.Gate.Leeway)
	assert.ErrorIs(t, cfg.ValidateClient(), ErrSessionBackend)
}

func TestLoadConfigReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("EMAIL_ALERT_RECIPIENTS=a@x.com,b@x.com\nAPI_TIMEOUT=3s\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("EMAIL_ALERT_RECIPIENTS")
		os.Unsetenv("API_TIMEOUT")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"a@x.com", "b@x.com"}, cfg.Email.AlertRecipients)
	assert.Equal(t, 3*time.Second, cfg.API.Timeout)
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("GATE_RATE_BURST", "lots")

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}
