package accounts

import (
	"context"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
)

const (
	// ActivateModeAuto activates accounts on registration
	ActivateModeAuto = "auto"
	// ActivateModeUser requires the user to confirm an emailed code
	ActivateModeUser = "user"
)

// Keys understood by ResolveSettings
const (
	SettingAllowRegistration  = "allow_registration"
	SettingAllowPasswordReset = "allow_password_reset"
	SettingActivateMode       = "activate_mode"
	SettingActivationRedirect = "activation_redirect"
	SettingMinPasswordLength  = "min_password_length"
	SettingResetCodeTTL       = "reset_code_ttl"
)

// DefaultMinPasswordLength is the shortest password accepted by default
var DefaultMinPasswordLength = 4

// DefaultResetCodeTTL is how long a password reset code stays valid
var DefaultResetCodeTTL = 24 * time.Hour

// Settings is resolved once per request and passed to the services.
type Settings struct {
	AllowRegistration  bool
	AllowPasswordReset bool
	ActivateMode       string
	ActivationRedirect string
	MinPasswordLength  int
	ResetCodeTTL       time.Duration
}

// DefaultSettings returns open registration with immediate activation.
func DefaultSettings() Settings {
	return Settings{
		AllowRegistration:  true,
		AllowPasswordReset: true,
		ActivateMode:       ActivateModeAuto,
		MinPasswordLength:  DefaultMinPasswordLength,
		ResetCodeTTL:       DefaultResetCodeTTL,
	}
}

// RequiresActivation reports whether new accounts start pending
func (s Settings) RequiresActivation() bool {
	return strings.EqualFold(strings.TrimSpace(s.ActivateMode), ActivateModeUser)
}

// PasswordPolicy derives the password rules from the settings
func (s Settings) PasswordPolicy() PasswordPolicy {
	return PasswordPolicy{MinLength: s.MinPasswordLength}
}

// SettingsStore is the persistent key/value settings collaborator.
type SettingsStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
}

// StaticSettings is an in-memory SettingsStore
type StaticSettings map[string]string

// Get implements SettingsStore
func (s StaticSettings) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := s[key]
	return v, ok, nil
}

// ResolveSettings reads every known key from store, keeping defaults for
// keys that are not set.
func ResolveSettings(ctx context.Context, store SettingsStore, defaults Settings) (Settings, error) {
	out := defaults
	if store == nil {
		return out, nil
	}

	get := func(key string) (string, bool, error) {
		v, ok, err := store.Get(ctx, key)
		if err != nil {
			return "", false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read setting").
				WithMetadata(map[string]any{"key": key})
		}
		return strings.TrimSpace(v), ok, nil
	}

	if v, ok, err := get(SettingAllowRegistration); err != nil {
		return defaults, err
	} else if ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return defaults, invalidSetting(SettingAllowRegistration, v)
		}
		out.AllowRegistration = b
	}

	if v, ok, err := get(SettingAllowPasswordReset); err != nil {
		return defaults, err
	} else if ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return defaults, invalidSetting(SettingAllowPasswordReset, v)
		}
		out.AllowPasswordReset = b
	}

	if v, ok, err := get(SettingActivateMode); err != nil {
		return defaults, err
	} else if ok {
		out.ActivateMode = v
	}

	if v, ok, err := get(SettingActivationRedirect); err != nil {
		return defaults, err
	} else if ok {
		out.ActivationRedirect = v
	}

	if v, ok, err := get(SettingMinPasswordLength); err != nil {
		return defaults, err
	} else if ok {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return defaults, invalidSetting(SettingMinPasswordLength, v)
		}
		out.MinPasswordLength = n
	}

	if v, ok, err := get(SettingResetCodeTTL); err != nil {
		return defaults, err
	} else if ok {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return defaults, invalidSetting(SettingResetCodeTTL, v)
		}
		out.ResetCodeTTL = d
	}

	return out, nil
}

// invalidSetting is a server misconfiguration, never a client error.
func invalidSetting(key, value string) error {
	return goerrors.New("invalid setting value", goerrors.CategoryInternal).
		WithCode(goerrors.CodeInternal).
		WithMetadata(map[string]any{"key": key, "value": value})
}

// SettingsGate exposes the registration and password reset switches of a
// SettingsStore as a feature gate, for hosts that gate other components on
// the same switches. The services read these settings themselves, so
// passing a SettingsGate to WithFeatureGate adds nothing.
type SettingsGate struct {
	store    SettingsStore
	defaults Settings
}

var _ gate.FeatureGate = (*SettingsGate)(nil)

// NewSettingsGate builds a gate over store
func NewSettingsGate(store SettingsStore, defaults Settings) *SettingsGate {
	return &SettingsGate{store: store, defaults: defaults}
}

// Enabled implements gate.FeatureGate. Unknown keys are enabled.
func (g *SettingsGate) Enabled(ctx context.Context, key string, _ ...gate.ResolveOption) (bool, error) {
	settings, err := ResolveSettings(ctx, g.store, g.defaults)
	if err != nil {
		return false, err
	}

	switch key {
	case gate.FeatureUsersSignup:
		return settings.AllowRegistration, nil
	case gate.FeatureUsersPasswordReset:
		return settings.AllowPasswordReset, nil
	default:
		return true, nil
	}
}
