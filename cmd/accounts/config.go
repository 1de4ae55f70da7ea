package main

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	accounts "github.com/goliatone/go-accounts"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath = "config.toml"
	DefaultHTTPAddr   = ":8080"
	DefaultPrefix     = "/api/auth"
	DefaultDriver     = "sqlite"
	DefaultDSN        = "file:accounts.db?cache=shared"
	DefaultMailFrom   = "no-reply@localhost"
	EnvPrefix         = "ACCOUNTS_"
)

// Config is the root configuration loaded from TOML and then from the
// environment. Environment variables use the ACCOUNTS_ prefix, for example
// ACCOUNTS_DATABASE_DSN.
type Config struct {
	Log      LogConfig      `toml:"log" envPrefix:"LOG_"`
	Server   ServerConfig   `toml:"server" envPrefix:"SERVER_"`
	Database DatabaseConfig `toml:"database" envPrefix:"DATABASE_"`
	Session  SessionConfig  `toml:"session" envPrefix:"SESSION_"`
	Mail     MailConfig     `toml:"mail" envPrefix:"MAIL_"`
	Accounts AccountsConfig `toml:"accounts" envPrefix:"SETTINGS_"`
	// Features switches go-featuregate keys such as users.signup, e.g.
	// ACCOUNTS_FEATURES="users.signup:false"
	Features map[string]bool `toml:"features" env:"FEATURES"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level" env:"LEVEL"`
	Format string `toml:"format" env:"FORMAT"`
}

// ServerConfig holds the HTTP listen address and the route prefix.
type ServerConfig struct {
	Addr   string `toml:"addr" env:"ADDR"`
	Prefix string `toml:"prefix" env:"PREFIX"`
	Debug  bool   `toml:"debug" env:"DEBUG"`
}

// DatabaseConfig selects the driver ("sqlite" or "postgres") and DSN.
type DatabaseConfig struct {
	Driver      string `toml:"driver" env:"DRIVER"`
	DSN         string `toml:"dsn" env:"DSN"`
	AutoMigrate bool   `toml:"auto_migrate" env:"AUTO_MIGRATE"`
}

// SessionConfig configures session tokens and the session cookie.
type SessionConfig struct {
	SigningKey   string        `toml:"signing_key" env:"SIGNING_KEY"`
	Issuer       string        `toml:"issuer" env:"ISSUER"`
	TTL          time.Duration `toml:"ttl" env:"TTL"`
	RememberTTL  time.Duration `toml:"remember_ttl" env:"REMEMBER_TTL"`
	CookieName   string        `toml:"cookie_name" env:"COOKIE_NAME"`
	SecureCookie bool          `toml:"secure_cookie" env:"SECURE_COOKIE"`
}

// MailConfig selects the sender ("log" or "smtp") and its settings.
type MailConfig struct {
	Sender        string        `toml:"sender" env:"SENDER"`
	From          string        `toml:"from" env:"FROM"`
	Host          string        `toml:"host" env:"HOST"`
	Port          int           `toml:"port" env:"PORT"`
	Username      string        `toml:"username" env:"USERNAME"`
	Password      string        `toml:"password" env:"PASSWORD"`
	TLS           string        `toml:"tls" env:"TLS"`
	Timeout       time.Duration `toml:"timeout" env:"TIMEOUT"`
	ActivationURL string        `toml:"activation_url" env:"ACTIVATION_URL"`
	ResetURL      string        `toml:"reset_url" env:"RESET_URL"`
}

// AccountsConfig holds the settings defaults. Values stored with
// "accounts settings set" take precedence at request time.
type AccountsConfig struct {
	AllowRegistration  bool          `toml:"allow_registration" env:"ALLOW_REGISTRATION"`
	AllowPasswordReset bool          `toml:"allow_password_reset" env:"ALLOW_PASSWORD_RESET"`
	ActivateMode       string        `toml:"activate_mode" env:"ACTIVATE_MODE"`
	ActivationRedirect string        `toml:"activation_redirect" env:"ACTIVATION_REDIRECT"`
	MinPasswordLength  int           `toml:"min_password_length" env:"MIN_PASSWORD_LENGTH"`
	ResetCodeTTL       time.Duration `toml:"reset_code_ttl" env:"RESET_CODE_TTL"`
	DeterministicIDs   bool          `toml:"deterministic_ids" env:"DETERMINISTIC_IDS"`
}

// Settings converts the defaults into accounts.Settings
func (c AccountsConfig) Settings() accounts.Settings {
	return accounts.Settings{
		AllowRegistration:  c.AllowRegistration,
		AllowPasswordReset: c.AllowPasswordReset,
		ActivateMode:       c.ActivateMode,
		ActivationRedirect: c.ActivationRedirect,
		MinPasswordLength:  c.MinPasswordLength,
		ResetCodeTTL:       c.ResetCodeTTL,
	}
}

func defaultConfig() Config {
	defaults := accounts.DefaultSettings()
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:   DefaultHTTPAddr,
			Prefix: DefaultPrefix,
		},
		Database: DatabaseConfig{
			Driver:      DefaultDriver,
			DSN:         DefaultDSN,
			AutoMigrate: true,
		},
		Session: SessionConfig{
			TTL:          accounts.DefaultSessionTTL,
			RememberTTL:  accounts.DefaultRememberTTL,
			CookieName:   accounts.DefaultSessionCookie,
			SecureCookie: true,
		},
		Mail: MailConfig{
			Sender: "log",
			From:   DefaultMailFrom,
			Port:   587,
			TLS:    "opportunistic",
		},
		Accounts: AccountsConfig{
			AllowRegistration:  defaults.AllowRegistration,
			AllowPasswordReset: defaults.AllowPasswordReset,
			ActivateMode:       defaults.ActivateMode,
			MinPasswordLength:  defaults.MinPasswordLength,
			ResetCodeTTL:       defaults.ResetCodeTTL,
		},
	}
}

// LoadConfig reads path (a missing file is not an error) and applies
// environment overrides on top.
func LoadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}
