package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
)

const invalidResetCodeMessage = "the password reset code is invalid or has expired"

// PasswordResetService issues and consumes password reset codes.
type PasswordResetService struct {
	store       AccountStore
	hasher      PasswordHasher
	codec       *CodeCodec
	mailer      Mailer
	activity    ActivitySink
	featureGate gate.FeatureGate
	logger      Logger
	now         func() time.Time
}

// NewPasswordResetService creates a service with sane defaults.
func NewPasswordResetService(store AccountStore) *PasswordResetService {
	return &PasswordResetService{
		store:    store,
		hasher:   NewBcryptHasher(defaultHashCost),
		codec:    NewCodeCodec(),
		mailer:   noopMailer{},
		activity: noopActivitySink{},
		logger:   defLogger{},
		now:      time.Now,
	}
}

// WithHasher overrides the password hasher.
func (s *PasswordResetService) WithHasher(hasher PasswordHasher) *PasswordResetService {
	if hasher != nil {
		s.hasher = hasher
	}
	return s
}

// WithCodeCodec overrides the reset code codec.
func (s *PasswordResetService) WithCodeCodec(codec *CodeCodec) *PasswordResetService {
	if codec != nil {
		s.codec = codec
	}
	return s
}

// WithMailer sets the mailer used to deliver reset codes.
func (s *PasswordResetService) WithMailer(mailer Mailer) *PasswordResetService {
	s.mailer = normalizeMailer(mailer)
	return s
}

// WithActivitySink sets the sink used to emit password reset events.
func (s *PasswordResetService) WithActivitySink(sink ActivitySink) *PasswordResetService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithFeatureGate requires gate.FeatureUsersPasswordReset for both steps.
func (s *PasswordResetService) WithFeatureGate(featureGate gate.FeatureGate) *PasswordResetService {
	s.featureGate = featureGate
	return s
}

// WithClock overrides the time source used for code expiry.
func (s *PasswordResetService) WithClock(now func() time.Time) *PasswordResetService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithLogger overrides the logger used by the service.
func (s *PasswordResetService) WithLogger(logger Logger) *PasswordResetService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// RequestReset issues a reset code for email and mails it. The result is
// the same whether or not the email is registered.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string, settings Settings) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return s.requestReset(ctx, email, settings)
	}
}

func (s *PasswordResetService) requestReset(ctx context.Context, email string, settings Settings) error {
	if err := s.ensureEnabled(ctx, settings); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := s.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if IsAccountNotFound(err) {
			s.codec.Discard()
			return nil
		}
		return internalError(err, "failed to load account for password reset")
	}

	external, stored, err := s.codec.Issue(account.ID)
	if err != nil {
		return err
	}

	requestedAt := s.now().UTC()
	if err := s.store.SetResetCode(ctx, account.ID, stored, requestedAt); err != nil {
		if IsAccountNotFound(err) {
			return nil
		}
		return internalError(err, "failed to store password reset code")
	}

	deliver(ctx, s.mailer, s.activity, s.logger, account, TemplatePasswordReset, external)

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetRequested,
		AccountID: account.ID.String(),
	})

	return nil
}

// ResetPassword consumes a reset code and sets a new password.
func (s *PasswordResetService) ResetPassword(ctx context.Context, code, password string, settings Settings) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset",
		)
	default:
		return s.resetPassword(ctx, code, password, settings)
	}
}

func (s *PasswordResetService) resetPassword(ctx context.Context, raw, password string, settings Settings) error {
	if err := s.ensureEnabled(ctx, settings); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	code, err := ParseCode(raw)
	if err != nil {
		return invalidResetCode()
	}

	account, err := s.store.GetByID(ctx, code.SubjectID)
	if err != nil {
		if IsAccountNotFound(err) {
			s.codec.Discard()
			return invalidResetCode()
		}
		return internalError(err, "failed to load account for password reset")
	}

	if !s.codec.Match(code, account.ResetHash) || s.expired(account, settings) {
		return invalidResetCode()
	}

	if err := ValidatePassword(password, settings.PasswordPolicy()); err != nil {
		return err
	}

	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	// the code stays valid until this write; a concurrent reset with the
	// same code finds reset_hash cleared and fails here
	if account, err = s.store.ConsumeResetCode(ctx, account.ID, account.ResetHash, hash); err != nil {
		if IsCodeConsumed(err) || IsAccountNotFound(err) {
			return invalidResetCode()
		}
		return internalError(err, "failed to update account password")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		AccountID: account.ID.String(),
	})

	return nil
}

func (s *PasswordResetService) ensureEnabled(ctx context.Context, settings Settings) error {
	return requireFeature(ctx, settings.AllowPasswordReset, s.featureGate, gate.FeatureUsersPasswordReset, ErrPasswordResetDisabled)
}

func (s *PasswordResetService) expired(account *Account, settings Settings) bool {
	ttl := settings.ResetCodeTTL
	if ttl <= 0 {
		ttl = DefaultResetCodeTTL
	}
	if account.ResetRequestedAt == nil {
		return true
	}
	return s.now().After(account.ResetRequestedAt.Add(ttl))
}

func invalidResetCode() error {
	return NewValidationError(invalidResetCodeMessage, map[string]string{"code": invalidResetCodeMessage})
}
