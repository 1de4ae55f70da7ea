package accounts

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"io"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const (
	codeSeparator = "!"
	secretLen     = 32
)

// ErrMalformedCode is returned when a code cannot be decoded
var ErrMalformedCode = goerrors.New("verification code is malformed", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode("MALFORMED_CODE")

// ErrCodeMismatch is returned when a well formed code does not match the stored hash
var ErrCodeMismatch = goerrors.New("verification code does not match", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest).
	WithTextCode("CODE_MISMATCH")

// Code is a decoded single-use verification code.
//
// The secret is confidential: it should only ever leave the process inside
// the notification sent to the account owner.
type Code struct {
	SubjectID uuid.UUID
	Secret    string
}

// String encodes the code in its external "<subject>!<secret>" form
func (c Code) String() string {
	return c.SubjectID.String() + codeSeparator + c.Secret
}

// ParseCode decodes an external code.
func ParseCode(raw string) (Code, error) {
	subject, secret, ok := strings.Cut(strings.TrimSpace(raw), codeSeparator)
	if !ok || subject == "" || secret == "" {
		return Code{}, ErrMalformedCode
	}

	id, err := uuid.Parse(subject)
	if err != nil || id == uuid.Nil {
		return Code{}, ErrMalformedCode
	}

	return Code{SubjectID: id, Secret: secret}, nil
}

// CodeCodec issues and verifies single-use codes. It is shared by activation
// and password reset; each keeps its own stored hash.
type CodeCodec struct {
	random io.Reader
}

// NewCodeCodec returns a codec backed by crypto/rand
func NewCodeCodec() *CodeCodec {
	return &CodeCodec{random: rand.Reader}
}

// Issue creates a code for subjectID. The external code goes to the account
// owner, the stored hash goes to the store.
func (c *CodeCodec) Issue(subjectID uuid.UUID) (external string, storedHash string, err error) {
	secret, err := c.secret()
	if err != nil {
		return "", "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification secret")
	}

	code := Code{SubjectID: subjectID, Secret: secret}
	return code.String(), hashSecret(secret), nil
}

// Match compares the code secret against storedHash in constant time.
func (c *CodeCodec) Match(code Code, storedHash string) bool {
	if storedHash == "" || code.Secret == "" {
		return false
	}
	computed := hashSecret(code.Secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}

// Verify decodes raw and checks it against storedHash, returning the subject.
func (c *CodeCodec) Verify(raw, storedHash string) (uuid.UUID, error) {
	code, err := ParseCode(raw)
	if err != nil {
		return uuid.Nil, err
	}

	if !c.Match(code, storedHash) {
		return uuid.Nil, ErrCodeMismatch
	}

	return code.SubjectID, nil
}

// Discard performs the same work as Issue and throws the result away.
func (c *CodeCodec) Discard() {
	if secret, err := c.secret(); err == nil {
		_ = hashSecret(secret)
	}
}

func (c *CodeCodec) secret() (string, error) {
	r := c.random
	if r == nil {
		r = rand.Reader
	}

	b := make([]byte, secretLen)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func hashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
