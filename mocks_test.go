package accounts_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	accounts "github.com/goliatone/go-accounts"
	"github.com/goliatone/go-accounts/repository"
	"github.com/goliatone/go-featuregate/gate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testHasher = accounts.NewBcryptHasher(bcrypt.MinCost)

// newTestRepos opens a private in-memory sqlite database with the schema applied.
func newTestRepos(t *testing.T) *repository.Manager {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repository.Open(repository.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)

	repos := repository.NewManager(db)
	require.NoError(t, repos.Migrate(context.Background()))

	t.Cleanup(func() {
		_ = repos.Close()
	})

	return repos
}

// MockMailer implements accounts.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to accounts.Recipient, kind accounts.TemplateKind, code string) error {
	args := m.Called(ctx, to, kind, code)
	return args.Error(0)
}

// captureMailer keeps the last code sent per kind
type captureMailer struct {
	mu    sync.Mutex
	codes map[accounts.TemplateKind]string
	sent  int
}

func newCaptureMailer() *captureMailer {
	return &captureMailer{codes: map[accounts.TemplateKind]string{}}
}

func (c *captureMailer) Send(_ context.Context, _ accounts.Recipient, kind accounts.TemplateKind, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.codes[kind] = code
	c.sent++
	return nil
}

func (c *captureMailer) code(kind accounts.TemplateKind) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[kind]
}

// recordingSink collects activity events
type recordingSink struct {
	mu     sync.Mutex
	events []accounts.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, event accounts.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingSink) types() []accounts.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]accounts.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func (r *recordingSink) last(eventType accounts.ActivityEventType) (accounts.ActivityEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].EventType == eventType {
			return r.events[i], true
		}
	}
	return accounts.ActivityEvent{}, false
}

// stubStore wraps a real store and lets tests inject failures or run
// another operation once, right after an account is loaded by id
type stubStore struct {
	accounts.AccountStore
	createErr  error
	afterGetID func()
	fired      atomic.Bool
}

func (s *stubStore) Create(ctx context.Context, account *accounts.Account) (*accounts.Account, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.AccountStore.Create(ctx, account)
}

func (s *stubStore) GetByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error) {
	account, err := s.AccountStore.GetByID(ctx, id)
	if s.afterGetID != nil && s.fired.CompareAndSwap(false, true) {
		s.afterGetID()
	}
	return account, err
}

// interleavingHasher runs a callback once, in the middle of a compare or a
// hash, to stand in for a concurrent request on the same account
type interleavingHasher struct {
	accounts.PasswordHasher
	duringCompare func()
	duringHash    func()
	fired         atomic.Bool
}

func (h *interleavingHasher) ComparePasswordAndHash(password, hash string) error {
	err := h.PasswordHasher.ComparePasswordAndHash(password, hash)
	if h.duringCompare != nil && h.fired.CompareAndSwap(false, true) {
		h.duringCompare()
	}
	return err
}

func (h *interleavingHasher) HashPassword(password string) (string, error) {
	hash, err := h.PasswordHasher.HashPassword(password)
	if h.duringHash != nil && h.fired.CompareAndSwap(false, true) {
		h.duringHash()
	}
	return hash, err
}

// stubFeatureGate answers from a fixed map and records the keys it was asked about
type stubFeatureGate struct {
	enabled map[string]bool
	calls   []string
}

func (s *stubFeatureGate) Enabled(_ context.Context, key string, _ ...gate.ResolveOption) (bool, error) {
	s.calls = append(s.calls, key)
	if v, ok := s.enabled[key]; ok {
		return v, nil
	}
	return true, nil
}

type fixture struct {
	repos         *repository.Manager
	store         accounts.AccountStore
	mailer        *captureMailer
	sink          *recordingSink
	registration  *accounts.RegistrationService
	activation    *accounts.ActivationService
	passwordReset *accounts.PasswordResetService
	tokens        *accounts.SessionTokens
	sessions      *accounts.SessionAuthenticator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repos := newTestRepos(t)
	f := &fixture{
		repos:  repos,
		store:  repos.Accounts(),
		mailer: newCaptureMailer(),
		sink:   &recordingSink{},
	}

	codec := accounts.NewCodeCodec()

	f.registration = accounts.NewRegistrationService(f.store).
		WithHasher(testHasher).
		WithCodeCodec(codec).
		WithMailer(f.mailer).
		WithActivitySink(f.sink)

	f.activation = accounts.NewActivationService(f.store).
		WithCodeCodec(codec).
		WithMailer(f.mailer).
		WithActivitySink(f.sink)

	f.passwordReset = accounts.NewPasswordResetService(f.store).
		WithHasher(testHasher).
		WithCodeCodec(codec).
		WithMailer(f.mailer).
		WithActivitySink(f.sink)

	f.tokens = accounts.NewSessionTokens([]byte("test-signing-key"), "accounts-test")
	f.sessions = accounts.NewSessionAuthenticator(f.store, f.tokens).
		WithHasher(testHasher).
		WithActivitySink(f.sink)

	return f
}

func userMode() accounts.Settings {
	settings := accounts.DefaultSettings()
	settings.ActivateMode = accounts.ActivateModeUser
	return settings
}

func registrationInput(email string) accounts.RegistrationInput {
	return accounts.RegistrationInput{
		Email:                email,
		Name:                 "Ada",
		Password:             "hello",
		PasswordConfirmation: "hello",
	}
}

func (f *fixture) register(t *testing.T, email string, settings accounts.Settings) *accounts.Profile {
	t.Helper()
	profile, err := f.registration.Register(context.Background(), registrationInput(email), settings)
	require.NoError(t, err)
	return profile
}

func (f *fixture) account(t *testing.T, id uuid.UUID) *accounts.Account {
	t.Helper()
	account, err := f.store.GetByID(context.Background(), id)
	require.NoError(t, err)
	return account
}

func (f *fixture) signIn(t *testing.T, email, password string) *accounts.Session {
	t.Helper()
	session, _, err := f.sessions.SignIn(context.Background(), accounts.Credentials{Login: email, Password: password})
	require.NoError(t, err)
	return session
}
