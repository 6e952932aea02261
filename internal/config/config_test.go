package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	assert.Empty(t, cfg.AuthSecret)
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
}

func TestLoadFallsBackOnInvalidTokenTTL(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "zero")
	t.Setenv("APP_ENV", "Development")

	cfg := Load()
	assert.Equal(t, 480, cfg.AccessTokenTTLMinutes)
	assert.True(t, cfg.Development())
}

func TestLoadNormalisesDatabaseSchema(t *testing.T) {
	t.Setenv("DB_SCHEMA", "  Shop_North ")

	assert.Equal(t, "shop_north", Load().DatabaseSchema)
}

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	settings, err := LoadSettings(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultSettings(), settings)
	assert.Equal(t, 10, settings.Security.MaxConcurrentSessions)
	assert.Equal(t, "AMP", settings.UI.ReceiptPrefix)
}

func TestLoadSettingsMergesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
security:
  max_concurrent_sessions: 3
ui:
  receipt_prefix: KIOSK
  timezone: Europe/Berlin
notifications:
  smtp:
    host: mail.example.com
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	settings, err := LoadSettings(path)
	require.NoError(t, err)

	assert.Equal(t, 3, settings.Security.MaxConcurrentSessions)
	assert.Equal(t, 3600, settings.Security.SessionTimeoutSeconds)
	assert.Equal(t, "KIOSK", settings.UI.ReceiptPrefix)
	assert.Equal(t, "EUR", settings.UI.Currency)
	assert.Equal(t, "mail.example.com", settings.Notifications.SMTP.Host)
	assert.Equal(t, 587, settings.Notifications.SMTP.Port)
	assert.Equal(t, "Europe/Berlin", settings.UI.Location().String())
}

func TestValidateRejectsUnknownStorageDriver(t *testing.T) {
	settings := DefaultSettings()
	settings.Backup.Driver = "ftp"
	settings.Security.SessionTimeoutSeconds = 0

	err := settings.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backup.driver")
	assert.Contains(t, err.Error(), "session_timeout_seconds")
}

func TestValidateRequiresBucketForS3(t *testing.T) {
	settings := DefaultSettings()
	settings.Backup.Driver = "s3"

	assert.ErrorContains(t, settings.Validate(), "backup.s3.bucket")

	settings.Backup.S3.Bucket = "receipts"
	assert.NoError(t, settings.Validate())
}
