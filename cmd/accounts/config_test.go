package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	assert.Equal(t, DefaultPrefix, cfg.Server.Prefix)
	assert.Equal(t, DefaultDriver, cfg.Database.Driver)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.Equal(t, accounts.DefaultSessionTTL, cfg.Session.TTL)
	assert.Equal(t, accounts.DefaultSessionCookie, cfg.Session.CookieName)
	assert.Equal(t, "log", cfg.Mail.Sender)
	assert.Equal(t, accounts.DefaultSettings(), cfg.Accounts.Settings())
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[server]
addr = ":9090"

[session]
signing_key = "from-file"
ttl = "2h"

[accounts]
activate_mode = "user"
min_password_length = 8
reset_code_ttl = "1h"
`), 0o600))

	t.Setenv("ACCOUNTS_SESSION_SIGNING_KEY", "from-env")
	t.Setenv("ACCOUNTS_DATABASE_DRIVER", "postgres")
	t.Setenv("ACCOUNTS_SETTINGS_ALLOW_REGISTRATION", "false")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "from-env", cfg.Session.SigningKey)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "postgres", cfg.Database.Driver)

	settings := cfg.Accounts.Settings()
	assert.False(t, settings.AllowRegistration)
	assert.True(t, settings.RequiresActivation())
	assert.Equal(t, 8, settings.MinPasswordLength)
	assert.Equal(t, time.Hour, settings.ResetCodeTTL)
}

func TestLoadConfigRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\naddr="), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARN").String())
	assert.Equal(t, "INFO", parseLevel("").String())
}
