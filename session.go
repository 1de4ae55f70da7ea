package accounts

import (
	"context"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Session is the capability passed to operations that need an
// authenticated caller. It is created by SignIn and destroyed by SignOut.
type Session struct {
	AccountID uuid.UUID
	Remember  bool
	IssuedAt  time.Time
	ExpiresAt time.Time
	cleared   bool
}

// Authenticated reports whether the session identifies a signed in account
func (s *Session) Authenticated() bool {
	if s == nil || s.cleared || s.AccountID == uuid.Nil {
		return false
	}
	return s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt)
}

// Clear destroys the session
func (s *Session) Clear() {
	if s == nil {
		return
	}
	s.cleared = true
	s.AccountID = uuid.Nil
}

// Credentials is the SignIn payload
type Credentials struct {
	Login    string `form:"login" json:"login"`
	Password string `form:"password" json:"password"`
	Remember bool   `form:"remember" json:"remember"`
}

// SessionAuthenticator signs accounts in and out and serves the
// operations that require a session.
type SessionAuthenticator struct {
	store     AccountStore
	hasher    PasswordHasher
	tokens    *SessionTokens
	hooks     Hooks
	activity  ActivitySink
	logger    Logger
	dummyHash func() string
}

// NewSessionAuthenticator creates an authenticator with sane defaults.
// Sessions are created by tokens, which also serializes them for transports.
// A nil tokens gets a random signing key that does not survive restarts.
func NewSessionAuthenticator(store AccountStore, tokens *SessionTokens) *SessionAuthenticator {
	if tokens == nil {
		tokens = NewEphemeralSessionTokens()
	}
	hasher := NewBcryptHasher(defaultHashCost)
	return &SessionAuthenticator{
		store:     store,
		hasher:    hasher,
		tokens:    tokens,
		hooks:     HookFuncs{},
		activity:  noopActivitySink{},
		logger:    defLogger{},
		dummyHash: dummyHashFor(hasher),
	}
}

// WithHasher overrides the password hasher.
func (a *SessionAuthenticator) WithHasher(hasher PasswordHasher) *SessionAuthenticator {
	if hasher != nil {
		a.hasher = hasher
		a.dummyHash = dummyHashFor(hasher)
	}
	return a
}

// WithHooks sets the lifecycle hooks.
func (a *SessionAuthenticator) WithHooks(hooks Hooks) *SessionAuthenticator {
	a.hooks = normalizeHooks(hooks)
	return a
}

// WithActivitySink sets the sink used to emit session events.
func (a *SessionAuthenticator) WithActivitySink(sink ActivitySink) *SessionAuthenticator {
	a.activity = normalizeActivitySink(sink)
	return a
}

// WithLogger overrides the logger used by the authenticator.
func (a *SessionAuthenticator) WithLogger(logger Logger) *SessionAuthenticator {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Tokens returns the session token codec
func (a *SessionAuthenticator) Tokens() *SessionTokens {
	return a.tokens
}

// SignIn checks credentials and opens a session. Unknown logins, wrong
// passwords and accounts pending activation fail with the same error.
func (a *SessionAuthenticator) SignIn(ctx context.Context, creds Credentials) (*Session, *Profile, error) {
	select {
	case <-ctx.Done():
		return nil, nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign in",
		)
	default:
		return a.signIn(ctx, creds)
	}
}

func (a *SessionAuthenticator) signIn(ctx context.Context, creds Credentials) (*Session, *Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	login := NormalizeEmail(creds.Login)
	if login == "" || creds.Password == "" {
		a.compareDummy(creds.Password)
		a.recordFailure(ctx, "", "missing_credentials")
		return nil, nil, ErrAuthenticationFailed
	}

	account, err := a.store.GetByEmail(ctx, login)
	if err != nil {
		if !IsAccountNotFound(err) {
			return nil, nil, internalError(err, "failed to load account for sign in")
		}
		a.compareDummy(creds.Password)
		a.recordFailure(ctx, "", "unknown_login")
		return nil, nil, ErrAuthenticationFailed
	}

	if err := a.hasher.ComparePasswordAndHash(creds.Password, account.PasswordHash); err != nil {
		a.recordFailure(ctx, account.ID.String(), "invalid_password")
		return nil, nil, ErrAuthenticationFailed
	}

	if !account.IsActive() {
		a.recordFailure(ctx, account.ID.String(), "not_activated")
		return nil, nil, ErrAuthenticationFailed
	}

	now := time.Now().UTC()
	if err := a.store.TouchLastLogin(ctx, account.ID, now); err != nil {
		a.logger.Warn("failed to track last login for account %s: %v", account.ID, err)
	} else {
		account.LastLoginAt = &now
	}

	session := a.tokens.NewSession(account.ID, creds.Remember)

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"remember": creds.Remember,
		},
	})

	return session, NewProfile(account), nil
}

// SignOut destroys session and fires the LoggedOut hook once. A session
// that is already cleared fails with ErrAuthenticationFailed.
func (a *SessionAuthenticator) SignOut(ctx context.Context, session *Session) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during sign out",
		)
	default:
		return a.signOut(ctx, session)
	}
}

func (a *SessionAuthenticator) signOut(ctx context.Context, session *Session) error {
	if !session.Authenticated() {
		return ErrAuthenticationFailed
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	accountID := session.AccountID
	session.Clear()

	account, err := a.store.GetByID(ctx, accountID)
	if err != nil {
		if !IsAccountNotFound(err) {
			a.logger.Warn("failed to load account %s on sign out: %v", accountID, err)
		}
		account = &Account{ID: accountID}
	}

	a.hooks.LoggedOut(ctx, account)

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventLogout,
		AccountID: accountID.String(),
	})

	return nil
}

// CurrentUser returns the profile of the session account after the
// AfterGetUser hook had a chance to attach derived data.
func (a *SessionAuthenticator) CurrentUser(ctx context.Context, session *Session) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled while loading current user",
		)
	default:
		return a.currentUser(ctx, session)
	}
}

func (a *SessionAuthenticator) currentUser(ctx context.Context, session *Session) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := a.sessionAccount(ctx, session)
	if err != nil {
		return nil, err
	}
	return a.profile(ctx, account)
}

// UpdateProfile applies a partial update to the session account. The
// password is re-hashed when a new one is supplied.
func (a *SessionAuthenticator) UpdateProfile(ctx context.Context, session *Session, input ProfileUpdateInput, settings Settings) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during profile update",
		)
	default:
		return a.updateProfile(ctx, session, input, settings)
	}
}

func (a *SessionAuthenticator) updateProfile(ctx context.Context, session *Session, input ProfileUpdateInput, settings Settings) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	account, err := a.sessionAccount(ctx, session)
	if err != nil {
		return nil, err
	}

	if err := input.Validate(ctx, a.store, account, settings.PasswordPolicy()); err != nil {
		return nil, err
	}

	changes := ProfileChanges{}
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		changes.Name = &name
	}
	if input.Email != nil {
		email := NormalizeEmail(*input.Email)
		changes.Email = &email
	}
	if input.ChangesPassword() {
		hash, err := a.hasher.HashPassword(input.Password)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}
		changes.PasswordHash = &hash
	}

	if !changes.Empty() {
		account, err = a.store.UpdateProfile(ctx, account.ID, changes)
		if err != nil {
			switch {
			case IsEmailTaken(err):
				return nil, NewValidationError("", map[string]string{"email": emailTakenMessage})
			case IsAccountNotFound(err):
				return nil, ErrAuthenticationFailed
			}
			return nil, internalError(err, "failed to update profile")
		}
	}

	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		AccountID: account.ID.String(),
		Metadata: map[string]any{
			"fields": changes.Fields(),
		},
	})

	return a.profile(ctx, account)
}

func (a *SessionAuthenticator) sessionAccount(ctx context.Context, session *Session) (*Account, error) {
	if !session.Authenticated() {
		return nil, ErrAuthenticationFailed
	}

	account, err := a.store.GetByID(ctx, session.AccountID)
	if err != nil {
		if IsAccountNotFound(err) {
			return nil, ErrAuthenticationFailed
		}
		return nil, internalError(err, "failed to load session account")
	}
	return account, nil
}

func (a *SessionAuthenticator) profile(ctx context.Context, account *Account) (*Profile, error) {
	profile, err := a.hooks.AfterGetUser(ctx, account, NewProfile(account))
	if err != nil {
		return nil, internalError(err, "after get user hook failed")
	}
	if profile == nil {
		profile = NewProfile(account)
	}
	return profile, nil
}

func (a *SessionAuthenticator) compareDummy(password string) {
	if hash := a.dummyHash(); hash != "" {
		_ = a.hasher.ComparePasswordAndHash(password, hash)
	}
}

func dummyHashFor(hasher PasswordHasher) func() string {
	return sync.OnceValue(func() string {
		return randomPasswordHash(hasher)
	})
}

func (a *SessionAuthenticator) recordFailure(ctx context.Context, accountID, reason string) {
	recordActivity(ctx, a.activity, a.logger, ActivityEvent{
		EventType: ActivityEventLoginFailure,
		AccountID: accountID,
		Metadata: map[string]any{
			"reason": reason,
		},
	})
}
