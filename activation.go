package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const invalidCodeMessage = "the activation code is invalid"

// ActivationResult is returned by a successful activation. Redirect is set
// when the activation_redirect setting is configured.
type ActivationResult struct {
	Profile  *Profile
	Redirect string
}

// ActivationService moves pending accounts to active.
type ActivationService struct {
	store    AccountStore
	codec    *CodeCodec
	mailer   Mailer
	activity ActivitySink
	logger   Logger
}

// NewActivationService creates a service with sane defaults.
func NewActivationService(store AccountStore) *ActivationService {
	return &ActivationService{
		store:    store,
		codec:    NewCodeCodec(),
		mailer:   noopMailer{},
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithCodeCodec overrides the activation code codec.
func (s *ActivationService) WithCodeCodec(codec *CodeCodec) *ActivationService {
	if codec != nil {
		s.codec = codec
	}
	return s
}

// WithMailer sets the mailer used by ResendActivation.
func (s *ActivationService) WithMailer(mailer Mailer) *ActivationService {
	s.mailer = normalizeMailer(mailer)
	return s
}

// WithActivitySink sets the sink used to emit activation events.
func (s *ActivationService) WithActivitySink(sink ActivitySink) *ActivationService {
	s.activity = normalizeActivitySink(sink)
	return s
}

// WithLogger overrides the logger used by the service.
func (s *ActivationService) WithLogger(logger Logger) *ActivationService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Activate consumes an activation code. Malformed codes, unknown accounts,
// mismatches and accounts that are already active all fail the same way.
func (s *ActivationService) Activate(ctx context.Context, code string, settings Settings) (*ActivationResult, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation",
		)
	default:
		return s.activate(ctx, code, settings)
	}
}

func (s *ActivationService) activate(ctx context.Context, raw string, settings Settings) (*ActivationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	code, err := ParseCode(raw)
	if err != nil {
		return nil, invalidActivationCode()
	}

	account, err := s.store.GetByID(ctx, code.SubjectID)
	if err != nil {
		if IsAccountNotFound(err) {
			s.codec.Discard()
			return nil, invalidActivationCode()
		}
		return nil, internalError(err, "failed to load account for activation")
	}

	if !account.Status.CanTransition(StatusActive) || !s.codec.Match(code, account.ActivationHash) {
		return nil, invalidActivationCode()
	}

	from := account.Status
	account, err = s.store.ConsumeActivationCode(ctx, account.ID, account.ActivationHash, time.Now().UTC())
	if err != nil {
		if IsCodeConsumed(err) || IsAccountNotFound(err) {
			return nil, invalidActivationCode()
		}
		return nil, internalError(err, "failed to activate account")
	}

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType:  ActivityEventActivated,
		AccountID:  account.ID.String(),
		FromStatus: from,
		ToStatus:   account.Status,
	})

	return &ActivationResult{
		Profile:  NewProfile(account),
		Redirect: settings.ActivationRedirect,
	}, nil
}

// ResendActivation issues a fresh activation code for a pending account and
// mails it. The old code stops working. It reports success whether or not
// the email belongs to a pending account.
func (s *ActivationService) ResendActivation(ctx context.Context, email string) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during activation resend",
		)
	default:
		return s.resend(ctx, email)
	}
}

func (s *ActivationService) resend(ctx context.Context, email string) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := s.store.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if IsAccountNotFound(err) {
			s.codec.Discard()
			return nil
		}
		return internalError(err, "failed to load account for activation resend")
	}

	if account.Status != StatusPendingActivation {
		s.codec.Discard()
		return nil
	}

	external, stored, err := s.codec.Issue(account.ID)
	if err != nil {
		return err
	}

	if err := s.store.SetActivationCode(ctx, account.ID, stored); err != nil {
		// activated since it was loaded
		if IsCodeConsumed(err) {
			return nil
		}
		return internalError(err, "failed to store activation code")
	}

	deliver(ctx, s.mailer, s.activity, s.logger, account, TemplateActivation, external)

	recordActivity(ctx, s.activity, s.logger, ActivityEvent{
		EventType: ActivityEventActivationResent,
		AccountID: account.ID.String(),
	})

	return nil
}

func invalidActivationCode() error {
	return NewValidationError(invalidCodeMessage, map[string]string{"code": invalidCodeMessage})
}
