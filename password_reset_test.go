package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordReset_Flow(t *testing.T) {
	f := newFixture(t)
	profile := f.register(t, "ada@example.com", accounts.DefaultSettings())
	settings := accounts.DefaultSettings()

	require.NoError(t, f.passwordReset.RequestReset(context.Background(), "ada@example.com", settings))

	code := f.mailer.code(accounts.TemplatePasswordReset)
	require.NotEmpty(t, code)

	stored := f.account(t, profile.ID)
	assert.NotEmpty(t, stored.ResetHash)
	assert.NotNil(t, stored.ResetRequestedAt)

	require.NoError(t, f.passwordReset.ResetPassword(context.Background(), code, "new-secret", settings))

	_, _, err := f.sessions.SignIn(context.Background(), accounts.Credentials{Login: "ada@example.com", Password: "hello"})
	assert.True(t, accounts.IsAuthenticationFailed(err))

	f.signIn(t, "ada@example.com", "new-secret")

	stored = f.account(t, profile.ID)
	assert.Empty(t, stored.ResetHash)
	assert.Nil(t, stored.ResetRequestedAt)

	types := f.sink.types()
	assert.Contains(t, types, accounts.ActivityEventPasswordResetRequested)
	assert.Contains(t, types, accounts.ActivityEventPasswordResetSuccess)
}

func TestPasswordReset_CodeIsSingleUse(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", accounts.DefaultSettings())
	settings := accounts.DefaultSettings()

	require.NoError(t, f.passwordReset.RequestReset(context.Background(), "ada@example.com", settings))
	code := f.mailer.code(accounts.TemplatePasswordReset)

	require.NoError(t, f.passwordReset.ResetPassword(context.Background(), code, "new-secret", settings))

	err := f.passwordReset.ResetPassword(context.Background(), code, "another-secret", settings)
	require.Error(t, err)
	assert.True(t, accounts.IsValidationFailed(err))
}

func TestPasswordReset_UnknownEmailLooksLikeSuccess(t *testing.T) {
	f := newFixture(t)

	err := f.passwordReset.RequestReset(context.Background(), "nobody@example.com", accounts.DefaultSettings())
	require.NoError(t, err)
	assert.Zero(t, f.mailer.sent)
}

func TestPasswordReset_ExpiredCode(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", accounts.DefaultSettings())

	now := time.Now()
	f.passwordReset.WithClock(func() time.Time { return now })

	settings := accounts.DefaultSettings()
	settings.ResetCodeTTL = time.Hour

	require.NoError(t, f.passwordReset.RequestReset(context.Background(), "ada@example.com", settings))
	code := f.mailer.code(accounts.TemplatePasswordReset)

	now = now.Add(2 * time.Hour)

	err := f.passwordReset.ResetPassword(context.Background(), code, "new-secret", settings)
	require.Error(t, err)
	assert.True(t, accounts.IsValidationFailed(err))
	assert.Equal(t, "the password reset code is invalid or has expired", accounts.FieldErrors(err)["code"])

	f.signIn(t, "ada@example.com", "hello")
}

func TestPasswordReset_WeakPasswordKeepsCode(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", accounts.DefaultSettings())
	settings := accounts.DefaultSettings()

	require.NoError(t, f.passwordReset.RequestReset(context.Background(), "ada@example.com", settings))
	code := f.mailer.code(accounts.TemplatePasswordReset)

	err := f.passwordReset.ResetPassword(context.Background(), code, "abc", settings)
	require.Error(t, err)
	assert.Contains(t, accounts.FieldErrors(err), "password")

	require.NoError(t, f.passwordReset.ResetPassword(context.Background(), code, "long-enough", settings))
}

func TestPasswordReset_InvalidCode(t *testing.T) {
	f := newFixture(t)

	for _, code := range []string{"", "123", "00000000-0000-0000-0000-000000000000!abc"} {
		err := f.passwordReset.ResetPassword(context.Background(), code, "new-secret", accounts.DefaultSettings())
		require.Error(t, err, code)
		assert.True(t, accounts.IsValidationFailed(err), code)
	}
}

func TestPasswordReset_Disabled(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", accounts.DefaultSettings())

	settings := accounts.DefaultSettings()
	settings.AllowPasswordReset = false

	err := f.passwordReset.RequestReset(context.Background(), "ada@example.com", settings)
	require.ErrorIs(t, err, accounts.ErrPasswordResetDisabled)
	assert.Zero(t, f.mailer.sent)
}

func TestPasswordReset_FeatureGate(t *testing.T) {
	f := newFixture(t)
	stub := &stubFeatureGate{enabled: map[string]bool{gate.FeatureUsersPasswordReset: false}}
	f.passwordReset.WithFeatureGate(stub)

	err := f.passwordReset.RequestReset(context.Background(), "ada@example.com", accounts.DefaultSettings())
	require.Error(t, err)
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeRegistrationDisabled))
	assert.Equal(t, []string{gate.FeatureUsersPasswordReset}, stub.calls)
}

func TestPasswordReset_SameCodeRacingResetsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", accounts.DefaultSettings())
	settings := accounts.DefaultSettings()
	ctx := context.Background()

	require.NoError(t, f.passwordReset.RequestReset(ctx, "ada@example.com", settings))
	code := f.mailer.code(accounts.TemplatePasswordReset)

	// both requests pass the code check before either one writes
	var innerErr error
	hasher := &interleavingHasher{PasswordHasher: testHasher}
	hasher.duringHash = func() {
		innerErr = f.passwordReset.ResetPassword(ctx, code, "inner-secret", settings)
	}
	f.passwordReset.WithHasher(hasher)

	outerErr := f.passwordReset.ResetPassword(ctx, code, "outer-secret", settings)

	require.NoError(t, innerErr)
	require.Error(t, outerErr)
	assert.True(t, accounts.IsValidationFailed(outerErr))
	assert.Contains(t, accounts.FieldErrors(outerErr), "code")

	f.signIn(t, "ada@example.com", "inner-secret")
	_, _, err := f.sessions.SignIn(ctx, accounts.Credentials{Login: "ada@example.com", Password: "outer-secret"})
	assert.ErrorIs(t, err, accounts.ErrAuthenticationFailed)

	successes := 0
	for _, eventType := range f.sink.types() {
		if eventType == accounts.ActivityEventPasswordResetSuccess {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
}

func TestPasswordReset_NewCodeSupersedesOneInFlight(t *testing.T) {
	f := newFixture(t)
	f.register(t, "ada@example.com", accounts.DefaultSettings())
	settings := accounts.DefaultSettings()
	ctx := context.Background()

	require.NoError(t, f.passwordReset.RequestReset(ctx, "ada@example.com", settings))
	first := f.mailer.code(accounts.TemplatePasswordReset)

	hasher := &interleavingHasher{PasswordHasher: testHasher}
	hasher.duringHash = func() {
		require.NoError(t, f.passwordReset.RequestReset(ctx, "ada@example.com", settings))
	}
	f.passwordReset.WithHasher(hasher)

	err := f.passwordReset.ResetPassword(ctx, first, "new-secret", settings)
	require.Error(t, err)
	assert.True(t, accounts.IsValidationFailed(err))

	second := f.mailer.code(accounts.TemplatePasswordReset)
	require.NotEqual(t, first, second)
	require.NoError(t, f.passwordReset.ResetPassword(ctx, second, "new-secret", settings))
	f.signIn(t, "ada@example.com", "new-secret")
}
