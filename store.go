package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AccountStore is the durable account record store the services depend on.
//
// Implementations must enforce email uniqueness atomically and report a
// conflict with ErrEmailTaken, and report missing records with
// ErrAccountNotFound. Emails are passed already normalized.
//
// Writes are column scoped so concurrent operations on the same account
// never overwrite each other's fields. The Consume methods are conditional
// on the stored hash and return ErrCodeConsumed when it no longer matches.
type AccountStore interface {
	Create(ctx context.Context, account *Account) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	EmailInUse(ctx context.Context, email string, exclude uuid.UUID) (bool, error)

	UpdateProfile(ctx context.Context, id uuid.UUID, changes ProfileChanges) (*Account, error)
	TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	SetActivationCode(ctx context.Context, id uuid.UUID, hash string) error
	ConsumeActivationCode(ctx context.Context, id uuid.UUID, hash string, at time.Time) (*Account, error)

	SetResetCode(ctx context.Context, id uuid.UUID, hash string, requestedAt time.Time) error
	ConsumeResetCode(ctx context.Context, id uuid.UUID, hash, passwordHash string) (*Account, error)
}

// ProfileChanges lists the profile columns to write. Nil fields are left
// untouched.
type ProfileChanges struct {
	Name         *string
	Email        *string
	PasswordHash *string
}

// Empty reports whether no column would be written
func (c ProfileChanges) Empty() bool {
	return c.Name == nil && c.Email == nil && c.PasswordHash == nil
}

// Fields names the changed profile fields
func (c ProfileChanges) Fields() []string {
	fields := make([]string, 0, 3)
	if c.Name != nil {
		fields = append(fields, "name")
	}
	if c.Email != nil {
		fields = append(fields, "email")
	}
	if c.PasswordHash != nil {
		fields = append(fields, "password")
	}
	return fields
}
