package accounts

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// RegistrationService creates accounts.
type RegistrationService struct {
	store            AccountStore
	hasher           PasswordHasher
	codec            *CodeCodec
	mailer           Mailer
	hooks            Hooks
	activity         ActivitySink
	featureGate      gate.FeatureGate
	logger           Logger
	deterministicIDs bool
}

// NewRegistrationService creates a service with sane defaults.
func NewRegistrationService(store AccountStore) *RegistrationService {
	return &RegistrationService{
		store:    store,
		hasher:   NewBcryptHasher(defaultHashCost),
		codec:    NewCodeCodec(),
		mailer:   noopMailer{},
		hooks:    HookFuncs{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithHasher overrides the password hasher.
func (s *RegistrationService) WithHasher(hasher PasswordHasher) *RegistrationService {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithCodeCodec overrides the activation code codec.
func (s *RegistrationService) WithCodeCodec(codec *CodeCodec) *RegistrationService {
	if codec != nil {
		s.codec = codec
	}
	return s
}

// WithMailer sets the mailer used to deliver activation codes.
func (s *RegistrationService) WithMailer(mailer Mailer) *RegistrationService {
	s.mailer = normalizeMailer(mailer)
	return s
}

// WithHooks sets the lifecycle hooks.
func (s *RegistrationService) WithHooks(hooks Hooks) *RegistrationService {
	s.hooks = normalizeHooks(hooks)
	return s
}

// WithActivitySink sets the sink used to emit registration events.
func (s *RegistrationService) WithActivitySink(sink ActivitySink) *RegistrationService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithFeatureGate adds a gate check on gate.FeatureUsersSignup on top of
// the AllowRegistration setting.
func (s *RegistrationService) WithFeatureGate(featureGate gate.FeatureGate) *RegistrationService {
	s.featureGate = featureGate
	return s
}

// WithDeterministicIDs derives account ids from the email using hashid.
func (s *RegistrationService) WithDeterministicIDs(enabled bool) *RegistrationService {
	s.deterministicIDs = enabled
	return s
}

// WithLogger overrides the logger used by the service.
func (s *RegistrationService) WithLogger(logger Logger) *RegistrationService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Register validates input and creates an account. Depending on
// settings.ActivateMode the account is active immediately or pending with an
// activation code mailed to its owner.
func (s *RegistrationService) Register(ctx context.Context, input RegistrationInput, settings Settings) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during registration",
		)
	default:
		return s.register(ctx, input, settings)
	}
}

func (s *RegistrationService) register(ctx context.Context, input RegistrationInput, settings Settings) (*Profile, error) {
	if err := requireFeature(ctx, settings.AllowRegistration, s.featureGate, gate.FeatureUsersSignup, ErrRegistrationDisabled); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := input.Validate(ctx, s.store, settings.PasswordPolicy()); err != nil {
		return nil, err
	}

	email := NormalizeEmail(input.Email)
	candidate := &Account{
		ID:    s.newID(email),
		Name:  strings.TrimSpace(input.Name),
		Email: email,
	}

	if err := s.hooks.BeforeRegister(ctx, candidate); err != nil {
		return nil, hookRejection(err)
	}

	hash, err := s.hasher.HashPassword(input.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	candidate.PasswordHash = hash

	activationCode, err := s.prepareStatus(candidate, settings)
	if err != nil {
		return nil, err
	}

	account, err := s.store.Create(ctx, candidate)
	if err != nil && IsAccountIDTaken(err) {
		// the email seed belongs to an account that has since changed its
		// email, fall back to a random id
		candidate.ID = uuid.New()
		if activationCode, err = s.prepareStatus(candidate, settings); err != nil {
			return nil, err
		}
		account, err = s.store.Create(ctx, candidate)
	}
	if err != nil {
		if IsEmailTaken(err) {
			return nil, NewValidationError("", map[string]string{"email": emailTakenMessage})
		}
		return nil, internalError(err, "failed to create account")
	}

	if activationCode != "" {
		deliver(ctx, s.mailer, s.activity, s.logger, account, TemplateActivation, activationCode)
	}

	s.hooks.Registered(ctx, account)

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventRegistered,
		AccountID: account.ID.String(),
		ToStatus:  account.Status,
		Metadata: map[string]any{
			"activate_mode": settings.ActivateMode,
		},
	})

	return NewProfile(account), nil
}

// prepareStatus sets the initial status of candidate and returns the
// external activation code when one is required.
func (s *RegistrationService) prepareStatus(candidate *Account, settings Settings) (string, error) {
	if !settings.RequiresActivation() {
		now := time.Now().UTC()
		candidate.Status = StatusActive
		candidate.ActivatedAt = &now
		return "", nil
	}

	external, stored, err := s.codec.Issue(candidate.ID)
	if err != nil {
		return "", err
	}
	candidate.Status = StatusPendingActivation
	candidate.ActivationHash = stored
	return external, nil
}

func (s *RegistrationService) newID(email string) uuid.UUID {
	if s.deterministicIDs {
		if id, err := hashid.NewUUID(email); err == nil {
			return id
		}
	}
	return uuid.New()
}

// hookRejection keeps rich errors from hooks and turns plain ones into a
// validation failure carrying the hook message.
func hookRejection(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return NewValidationError(err.Error(), nil)
}

// deliver sends a code and never fails the caller: the mutation that
// produced the code is already persisted.
func deliver(ctx context.Context, mailer Mailer, sink ActivitySink, logger Logger, account *Account, kind TemplateKind, code string) {
	err := normalizeMailer(mailer).Send(ctx, recipientOf(account), kind, code)
	if err == nil {
		return
	}

	normalizeLogger(logger).Warn("failed to deliver %s mail to account %s: %v", kind, account.ID, err)

	recordActivity(ctx, sink, logger, ActivityEvent{
		EventType: ActivityEventMailDeliveryFailed,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"template": string(kind),
			"error":    err.Error(),
		},
	})
}
