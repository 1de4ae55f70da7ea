package repository

import (
	"context"
	"database/sql"
	"time"

	accounts "github.com/goliatone/go-accounts"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Accounts is the bun backed accounts.AccountStore.
//
// Reads go through the generic repository. Writes are issued directly and
// only touch the columns they own, so the driver's unique violation reaches
// the constraint classifier unchanged.
type Accounts struct {
	repository.Repository[*accounts.Account]
	db *bun.DB
}

var _ accounts.AccountStore = (*Accounts)(nil)

// NewAccounts creates an account store over db
func NewAccounts(db *bun.DB) *Accounts {
	handlers := repository.ModelHandlers[*accounts.Account]{
		NewRecord: func() *accounts.Account {
			return &accounts.Account{}
		},
		GetID: func(record *accounts.Account) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *accounts.Account, id uuid.UUID) {
			if record != nil {
				record.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	}

	return &Accounts{
		Repository: repository.NewRepository(db, handlers),
		db:         db,
	}
}

// Create inserts account. Email conflicts return accounts.ErrEmailTaken and
// id conflicts accounts.ErrAccountIDTaken.
func (a *Accounts) Create(ctx context.Context, account *accounts.Account) (*accounts.Account, error) {
	if account.ID == uuid.Nil {
		account.ID = uuid.New()
	}

	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now

	if _, err := a.db.NewInsert().Model(account).Exec(ctx); err != nil {
		switch {
		case isEmailConflict(err):
			return nil, accounts.ErrEmailTaken
		case isIDConflict(err):
			return nil, accounts.ErrAccountIDTaken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
	}

	return account, nil
}

// UpdateProfile writes the set columns of changes and returns the stored
// account.
func (a *Accounts) UpdateProfile(ctx context.Context, id uuid.UUID, changes accounts.ProfileChanges) (*accounts.Account, error) {
	q := a.update(id)
	if changes.Name != nil {
		q = q.Set("name = ?", *changes.Name)
	}
	if changes.Email != nil {
		q = q.Set("email = ?", accounts.NormalizeEmail(*changes.Email))
	}
	if changes.PasswordHash != nil {
		q = q.Set("password_hash = ?", *changes.PasswordHash)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		if isEmailConflict(err) {
			return nil, accounts.ErrEmailTaken
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not update account profile")
	}
	if err := expectRow(res, accounts.ErrAccountNotFound); err != nil {
		return nil, err
	}

	return a.GetByID(ctx, id)
}

// TouchLastLogin records a successful sign in
func (a *Accounts) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := a.update(id).
		Set("last_login_at = ?", at.UTC()).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not track last login")
	}
	return expectRow(res, accounts.ErrAccountNotFound)
}

// SetActivationCode replaces the activation hash of a pending account.
// Accounts that are no longer pending report accounts.ErrCodeConsumed.
func (a *Accounts) SetActivationCode(ctx context.Context, id uuid.UUID, hash string) error {
	res, err := a.update(id).
		Set("activation_hash = ?", hash).
		Where("status = ?", string(accounts.StatusPendingActivation)).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not store activation code")
	}
	return expectRow(res, accounts.ErrCodeConsumed)
}

// ConsumeActivationCode activates the account only while it is pending and
// still stores hash.
func (a *Accounts) ConsumeActivationCode(ctx context.Context, id uuid.UUID, hash string, at time.Time) (*accounts.Account, error) {
	res, err := a.update(id).
		Set("status = ?", string(accounts.StatusActive)).
		Set("activation_hash = NULL").
		Set("activated_at = ?", at.UTC()).
		Where("activation_hash = ?", hash).
		Where("status = ?", string(accounts.StatusPendingActivation)).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not activate account")
	}
	if err := expectRow(res, accounts.ErrCodeConsumed); err != nil {
		return nil, err
	}

	return a.GetByID(ctx, id)
}

// SetResetCode stores a reset hash and the time it was requested
func (a *Accounts) SetResetCode(ctx context.Context, id uuid.UUID, hash string, requestedAt time.Time) error {
	res, err := a.update(id).
		Set("reset_hash = ?", hash).
		Set("reset_requested_at = ?", requestedAt.UTC()).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not store reset code")
	}
	return expectRow(res, accounts.ErrAccountNotFound)
}

// ConsumeResetCode swaps the password hash only while the account still
// stores hash, clearing the reset columns in the same statement.
func (a *Accounts) ConsumeResetCode(ctx context.Context, id uuid.UUID, hash, passwordHash string) (*accounts.Account, error) {
	res, err := a.update(id).
		Set("password_hash = ?", passwordHash).
		Set("reset_hash = NULL").
		Set("reset_requested_at = NULL").
		Where("reset_hash = ?", hash).
		Exec(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not reset password")
	}
	if err := expectRow(res, accounts.ErrCodeConsumed); err != nil {
		return nil, err
	}

	return a.GetByID(ctx, id)
}

func (a *Accounts) update(id uuid.UUID) *bun.UpdateQuery {
	return a.db.NewUpdate().
		Model((*accounts.Account)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id.String())
}

func expectRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not read affected rows")
	}
	if n == 0 {
		return missing
	}
	return nil
}

// GetByID loads an account by id
func (a *Accounts) GetByID(ctx context.Context, id uuid.UUID) (*accounts.Account, error) {
	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		return nil, notFound(err, "failed to load account")
	}
	return record, nil
}

// GetByEmail loads an account by normalized email
func (a *Accounts) GetByEmail(ctx context.Context, email string) (*accounts.Account, error) {
	record, err := a.Repository.GetByIdentifier(ctx, accounts.NormalizeEmail(email))
	if err != nil {
		return nil, notFound(err, "failed to load account by email")
	}
	return record, nil
}

// EmailInUse reports whether another account owns email. exclude is
// ignored when it is uuid.Nil.
func (a *Accounts) EmailInUse(ctx context.Context, email string, exclude uuid.UUID) (bool, error) {
	q := a.db.NewSelect().
		Model((*accounts.Account)(nil)).
		Where("?TableAlias.email = ?", accounts.NormalizeEmail(email))

	if exclude != uuid.Nil {
		q = q.Where("?TableAlias.id <> ?", exclude.String())
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check email")
	}
	return exists, nil
}

func notFound(err error, message string) error {
	if repository.IsRecordNotFound(err) {
		return accounts.ErrAccountNotFound
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
