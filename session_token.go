package accounts

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	// DefaultSessionTTL is the lifetime of a regular session
	DefaultSessionTTL = 24 * time.Hour
	// DefaultRememberTTL is the lifetime of a "remember me" session
	DefaultRememberTTL = 30 * 24 * time.Hour
)

// sessionClaims is the JWT payload of a serialized Session
type sessionClaims struct {
	jwt.RegisteredClaims
	Remember bool `json:"rmb,omitempty"`
}

// SessionTokens serializes sessions as HS256 signed tokens for transports
// that keep the session on the client.
type SessionTokens struct {
	signingKey  []byte
	issuer      string
	ttl         time.Duration
	rememberTTL time.Duration
	logger      Logger
	now         func() time.Time
}

// NewSessionTokens creates a token codec signing with signingKey
func NewSessionTokens(signingKey []byte, issuer string) *SessionTokens {
	return &SessionTokens{
		signingKey:  signingKey,
		issuer:      issuer,
		ttl:         DefaultSessionTTL,
		rememberTTL: DefaultRememberTTL,
		logger:      defLogger{},
		now:         time.Now,
	}
}

// NewEphemeralSessionTokens signs with a random per-process key
func NewEphemeralSessionTokens() *SessionTokens {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return NewSessionTokens(key, "")
}

// WithTTL overrides the regular and remembered session lifetimes.
func (t *SessionTokens) WithTTL(ttl, rememberTTL time.Duration) *SessionTokens {
	if ttl > 0 {
		t.ttl = ttl
	}
	if rememberTTL > 0 {
		t.rememberTTL = rememberTTL
	}
	return t
}

// WithLogger overrides the logger.
func (t *SessionTokens) WithLogger(logger Logger) *SessionTokens {
	if logger != nil {
		t.logger = logger
	}
	return t
}

// WithClock overrides the time source.
func (t *SessionTokens) WithClock(now func() time.Time) *SessionTokens {
	if now != nil {
		t.now = now
	}
	return t
}

// NewSession creates an authenticated session for accountID
func (t *SessionTokens) NewSession(accountID uuid.UUID, remember bool) *Session {
	now := t.now().UTC()
	ttl := t.ttl
	if remember {
		ttl = t.rememberTTL
	}
	return &Session{
		AccountID: accountID,
		Remember:  remember,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

// Issue signs session. Cleared or anonymous sessions cannot be issued.
func (t *SessionTokens) Issue(session *Session) (string, error) {
	if !session.Authenticated() {
		return "", ErrAuthenticationFailed
	}

	claims := &sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   session.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Remember: session.Remember,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign session token")
	}
	return signed, nil
}

// Parse validates a token and rebuilds its session. Any failure is
// reported as ErrAuthenticationFailed.
func (t *SessionTokens) Parse(tokenString string) (*Session, error) {
	if tokenString == "" {
		return nil, ErrAuthenticationFailed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithExpirationRequired(),
	}
	if t.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(t.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(tk *jwt.Token) (any, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return t.signingKey, nil
	}, parserOptions...)
	if err != nil {
		t.logger.Debug("session token rejected: %v", err)
		return nil, ErrAuthenticationFailed
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid {
		return nil, ErrAuthenticationFailed
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	session := &Session{
		AccountID: accountID,
		Remember:  claims.Remember,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
