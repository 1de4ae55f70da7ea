package accounts_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegister_ActivatesImmediatelyByDefault(t *testing.T) {
	f := newFixture(t)

	profile, err := f.registration.Register(context.Background(), accounts.RegistrationInput{
		Email:                "john@example.com",
		Name:                 "John Doe",
		Password:             "hello",
		PasswordConfirmation: "hello",
	}, accounts.DefaultSettings())
	require.NoError(t, err)

	assert.Equal(t, "John Doe", profile.Name)
	assert.Equal(t, "john@example.com", profile.Email)
	assert.Equal(t, accounts.StatusActive, profile.Status)
	assert.NotNil(t, profile.ActivatedAt)

	stored := f.account(t, profile.ID)
	assert.NotEqual(t, "hello", stored.PasswordHash)
	assert.NoError(t, testHasher.ComparePasswordAndHash("hello", stored.PasswordHash))
	assert.Empty(t, stored.ActivationHash)
	assert.Zero(t, f.mailer.sent)

	assert.Equal(t, []accounts.ActivityEventType{accounts.ActivityEventRegistered}, f.sink.types())
}

func TestRegister_NormalizesEmail(t *testing.T) {
	f := newFixture(t)

	profile := f.register(t, "  John@Example.COM ", accounts.DefaultSettings())
	assert.Equal(t, "john@example.com", profile.Email)

	_, err := f.registration.Register(context.Background(), registrationInput("JOHN@example.com"), accounts.DefaultSettings())
	require.Error(t, err)
	assert.Equal(t, "email has already been taken", accounts.FieldErrors(err)["email"])
}

func TestRegister_Disabled(t *testing.T) {
	f := newFixture(t)

	settings := accounts.DefaultSettings()
	settings.AllowRegistration = false

	_, err := f.registration.Register(context.Background(), registrationInput("john@example.com"), settings)
	require.Error(t, err)
	assert.True(t, accounts.IsRegistrationDisabled(err))

	code, result := accounts.ResultFromError(err)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "disabled", result.Status)

	_, err = f.store.GetByEmail(context.Background(), "john@example.com")
	assert.True(t, accounts.IsAccountNotFound(err))

	// re-enabling lets the same registration through
	f.register(t, "john@example.com", accounts.DefaultSettings())
}

func TestRegister_FeatureGateDisablesSignup(t *testing.T) {
	f := newFixture(t)
	stub := &stubFeatureGate{enabled: map[string]bool{gate.FeatureUsersSignup: false}}
	f.registration.WithFeatureGate(stub)

	_, err := f.registration.Register(context.Background(), registrationInput("john@example.com"), accounts.DefaultSettings())
	require.Error(t, err)
	assert.True(t, accounts.IsRegistrationDisabled(err))
	assert.Equal(t, []string{gate.FeatureUsersSignup}, stub.calls)
}

func TestRegister_ValidationFailures(t *testing.T) {
	tests := []struct {
		name   string
		input  accounts.RegistrationInput
		fields []string
	}{
		{
			name:   "empty payload",
			input:  accounts.RegistrationInput{},
			fields: []string{"email", "name", "password", "password_confirmation"},
		},
		{
			name: "bad email",
			input: accounts.RegistrationInput{
				Email: "not-an-email", Name: "Ada", Password: "hello", PasswordConfirmation: "hello",
			},
			fields: []string{"email"},
		},
		{
			name: "short password",
			input: accounts.RegistrationInput{
				Email: "ada@example.com", Name: "Ada", Password: "abc", PasswordConfirmation: "abc",
			},
			fields: []string{"password"},
		},
		{
			name: "confirmation mismatch",
			input: accounts.RegistrationInput{
				Email: "ada@example.com", Name: "Ada", Password: "hello", PasswordConfirmation: "hullo",
			},
			fields: []string{"password_confirmation"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			_, err := f.registration.Register(context.Background(), tt.input, accounts.DefaultSettings())
			require.Error(t, err)
			assert.True(t, accounts.IsValidationFailed(err))

			fields := accounts.FieldErrors(err)
			for _, field := range tt.fields {
				assert.Contains(t, fields, field)
			}

			code, result := accounts.ResultFromError(err)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, "validation_failed", result.Status)

			_, err = f.store.GetByEmail(context.Background(), tt.input.Email)
			assert.True(t, accounts.IsAccountNotFound(err))
		})
	}
}

func TestRegister_UserModeSendsActivationCode(t *testing.T) {
	f := newFixture(t)

	mailer := new(MockMailer)
	var sentCode string
	mailer.On("Send", mock.Anything, accounts.Recipient{Name: "Ada", Email: "ada@example.com"}, accounts.TemplateActivation, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) {
			sentCode = args.String(3)
		}).
		Return(nil).
		Once()
	f.registration.WithMailer(mailer)

	profile := f.register(t, "ada@example.com", userMode())
	assert.Equal(t, accounts.StatusPendingActivation, profile.Status)
	assert.Nil(t, profile.ActivatedAt)

	mailer.AssertExpectations(t)

	code, err := accounts.ParseCode(sentCode)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, code.SubjectID)

	stored := f.account(t, profile.ID)
	assert.NotEmpty(t, stored.ActivationHash)
	assert.NotContains(t, stored.ActivationHash, code.Secret)
}

func TestRegister_MailFailureKeepsAccount(t *testing.T) {
	f := newFixture(t)

	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything, accounts.TemplateActivation, mock.Anything).
		Return(errors.New("smtp down"))
	f.registration.WithMailer(mailer)

	profile := f.register(t, "ada@example.com", userMode())
	assert.Equal(t, accounts.StatusPendingActivation, f.account(t, profile.ID).Status)

	event, ok := f.sink.last(accounts.ActivityEventMailDeliveryFailed)
	require.True(t, ok)
	assert.Equal(t, profile.ID.String(), event.AccountID)
	assert.Equal(t, "activation", event.Metadata["template"])

	assert.Equal(t, []accounts.ActivityEventType{
		accounts.ActivityEventMailDeliveryFailed,
		accounts.ActivityEventRegistered,
	}, f.sink.types())
}

func TestRegister_HooksFireInOrder(t *testing.T) {
	f := newFixture(t)

	var calls []string
	f.registration.WithHooks(accounts.HookFuncs{
		OnBeforeRegister: func(_ context.Context, candidate *accounts.Account) error {
			calls = append(calls, "before:"+candidate.Email)
			return nil
		},
		OnRegistered: func(_ context.Context, account *accounts.Account) {
			calls = append(calls, "registered:"+account.Email)
		},
	})

	f.register(t, "ada@example.com", accounts.DefaultSettings())
	assert.Equal(t, []string{"before:ada@example.com", "registered:ada@example.com"}, calls)
}

func TestRegister_BeforeRegisterRejects(t *testing.T) {
	f := newFixture(t)

	registered := false
	f.registration.WithHooks(accounts.HookFuncs{
		OnBeforeRegister: func(context.Context, *accounts.Account) error {
			return errors.New("invitations only")
		},
		OnRegistered: func(context.Context, *accounts.Account) {
			registered = true
		},
	})

	_, err := f.registration.Register(context.Background(), registrationInput("ada@example.com"), accounts.DefaultSettings())
	require.Error(t, err)
	assert.True(t, accounts.IsValidationFailed(err))
	assert.Contains(t, err.Error(), "invitations only")
	assert.False(t, registered)

	_, err = f.store.GetByEmail(context.Background(), "ada@example.com")
	assert.True(t, accounts.IsAccountNotFound(err))
}

func TestRegister_StoreConflictIsValidationError(t *testing.T) {
	f := newFixture(t)

	store := &stubStore{AccountStore: f.store, createErr: accounts.ErrEmailTaken}
	svc := accounts.NewRegistrationService(store).WithHasher(testHasher)

	_, err := svc.Register(context.Background(), registrationInput("ada@example.com"), accounts.DefaultSettings())
	require.Error(t, err)
	assert.True(t, accounts.IsValidationFailed(err))
	assert.Equal(t, "email has already been taken", accounts.FieldErrors(err)["email"])
}

func TestRegister_DeterministicIDs(t *testing.T) {
	f := newFixture(t)
	f.registration.WithDeterministicIDs(true)

	profile := f.register(t, "ada@example.com", accounts.DefaultSettings())

	expected, err := hashid.NewUUID("ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, expected, profile.ID)
}

func TestRegister_DeterministicIDAfterEmailChange(t *testing.T) {
	f := newFixture(t)
	f.registration.WithDeterministicIDs(true)
	ctx := context.Background()

	first := f.register(t, "ada@example.com", accounts.DefaultSettings())
	session := f.signIn(t, "ada@example.com", "hello")

	email := "grace@example.com"
	_, err := f.sessions.UpdateProfile(ctx, session, accounts.ProfileUpdateInput{Email: &email}, accounts.DefaultSettings())
	require.NoError(t, err)

	// the seed id is still held by the renamed account
	second, err := f.registration.Register(ctx, registrationInput("ada@example.com"), userMode())
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, "ada@example.com", second.Email)
	assert.Equal(t, accounts.StatusPendingActivation, second.Status)

	// the activation code names the id the account was finally stored under
	_, err = f.activation.Activate(ctx, f.mailer.code(accounts.TemplateActivation), userMode())
	require.NoError(t, err)

	assert.Equal(t, "grace@example.com", f.account(t, first.ID).Email)
	assert.Equal(t, accounts.StatusActive, f.account(t, second.ID).Status)
}

func TestRegister_IDConflictIsNotReportedAsEmailTaken(t *testing.T) {
	f := newFixture(t)

	store := &stubStore{AccountStore: f.store, createErr: accounts.ErrAccountIDTaken}
	svc := accounts.NewRegistrationService(store).WithHasher(testHasher)

	_, err := svc.Register(context.Background(), registrationInput("ada@example.com"), accounts.DefaultSettings())
	require.Error(t, err)
	assert.False(t, accounts.IsValidationFailed(err))
	assert.Empty(t, accounts.FieldErrors(err))

	code, _ := accounts.ResultFromError(err)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestRegister_CancelledContext(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.registration.Register(ctx, registrationInput("ada@example.com"), accounts.DefaultSettings())
	require.Error(t, err)

	_, err = f.store.GetByEmail(context.Background(), "ada@example.com")
	assert.True(t, accounts.IsAccountNotFound(err))
}
