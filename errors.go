package accounts

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeValidationFailed tags malformed input, duplicate emails and bad codes
	TextCodeValidationFailed = "validation_failed"
	// TextCodeRegistrationDisabled tags registrations attempted while disabled
	TextCodeRegistrationDisabled = "disabled"
	// TextCodeAuthenticationFailed tags bad credentials and missing sessions
	TextCodeAuthenticationFailed = "authentication_failed"
	// TextCodeEmailTaken tags store uniqueness conflicts
	TextCodeEmailTaken = "EMAIL_TAKEN"
	// TextCodeAccountNotFound tags missing accounts
	TextCodeAccountNotFound = "ACCOUNT_NOT_FOUND"
	// TextCodeAccountIDTaken tags primary key conflicts on create
	TextCodeAccountIDTaken = "ACCOUNT_ID_TAKEN"
	// TextCodeCodeConsumed tags activation and reset codes that lost a race
	TextCodeCodeConsumed = "CODE_CONSUMED"

	fieldsMetadataKey = "fields"
)

// ErrRegistrationDisabled is returned when registration is switched off.
var ErrRegistrationDisabled = goerrors.New("user registration is disabled", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeRegistrationDisabled)

// ErrAuthenticationFailed is deliberately uniform: it does not say whether
// the account, the password or the session was the problem.
var ErrAuthenticationFailed = goerrors.New("the login credentials or session are invalid", goerrors.CategoryAuth).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeAuthenticationFailed)

// ErrPasswordResetDisabled is returned when a feature gate turns resets off.
var ErrPasswordResetDisabled = goerrors.New("password reset is disabled", goerrors.CategoryAuthz).
	WithCode(goerrors.CodeForbidden).
	WithTextCode(TextCodeRegistrationDisabled)

// ErrEmailTaken is returned by stores when the email uniqueness invariant
// would be violated.
var ErrEmailTaken = goerrors.New("email is already in use", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeEmailTaken)

// ErrAccountNotFound is returned by stores for unknown ids or emails.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithCode(goerrors.CodeNotFound).
	WithTextCode(TextCodeAccountNotFound)

// ErrAccountIDTaken is returned by stores when the id of a new account
// already exists.
var ErrAccountIDTaken = goerrors.New("account id is already in use", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeAccountIDTaken)

// ErrCodeConsumed is returned by stores when a conditional code write finds
// the stored hash changed or cleared.
var ErrCodeConsumed = goerrors.New("code was already consumed", goerrors.CategoryConflict).
	WithCode(goerrors.CodeConflict).
	WithTextCode(TextCodeCodeConsumed)

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrMismatchedHashAndPassword is returned when a password does not match its hash
var ErrMismatchedHashAndPassword = errors.New("password does not match hash")

// NewValidationError builds a validation_failed error carrying a field map.
func NewValidationError(message string, fields map[string]string) *goerrors.Error {
	if message == "" {
		message = "the given data is invalid"
	}

	err := goerrors.New(message, goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithTextCode(TextCodeValidationFailed)

	if len(fields) > 0 {
		cloned := make(map[string]string, len(fields))
		for k, v := range fields {
			cloned[k] = v
		}
		err = err.WithMetadata(map[string]any{fieldsMetadataKey: cloned})
	}

	return err
}

// FieldErrors returns the field map attached to a validation error, if any.
func FieldErrors(err error) map[string]string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Metadata == nil {
		return nil
	}

	fields, _ := richErr.Metadata[fieldsMetadataKey].(map[string]string)
	return fields
}

// HasTextCode reports whether err is a rich error tagged with code.
func HasTextCode(err error, code string) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == code
}

// IsValidationFailed reports whether err is a validation failure.
func IsValidationFailed(err error) bool {
	return HasTextCode(err, TextCodeValidationFailed)
}

// IsAuthenticationFailed reports whether err is an authentication failure.
func IsAuthenticationFailed(err error) bool {
	return HasTextCode(err, TextCodeAuthenticationFailed)
}

// IsRegistrationDisabled reports whether err signals disabled registration.
func IsRegistrationDisabled(err error) bool {
	return errors.Is(err, ErrRegistrationDisabled) || HasTextCode(err, TextCodeRegistrationDisabled)
}

// IsEmailTaken reports whether err is a uniqueness conflict on email.
func IsEmailTaken(err error) bool {
	return errors.Is(err, ErrEmailTaken) || HasTextCode(err, TextCodeEmailTaken)
}

// IsAccountNotFound reports whether err is a missing account.
func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound) || HasTextCode(err, TextCodeAccountNotFound)
}

// IsAccountIDTaken reports whether err is a primary key conflict.
func IsAccountIDTaken(err error) bool {
	return errors.Is(err, ErrAccountIDTaken) || HasTextCode(err, TextCodeAccountIDTaken)
}

// IsCodeConsumed reports whether a conditional code write lost.
func IsCodeConsumed(err error) bool {
	return errors.Is(err, ErrCodeConsumed) || HasTextCode(err, TextCodeCodeConsumed)
}

func internalError(err error, message string) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}
