package accounts

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/google/uuid"
)

const (
	maxNameLength     = 255
	maxEmailLength    = 255
	maxPasswordLength = 72
)

// PasswordPolicy holds the password rules applied on register, update and reset
type PasswordPolicy struct {
	MinLength int
}

func (p PasswordPolicy) rules() []validation.Rule {
	minLength := p.MinLength
	if minLength < 1 {
		minLength = DefaultMinPasswordLength
	}
	return []validation.Rule{
		validation.Required,
		validation.RuneLength(minLength, 0),
		validation.Length(0, maxPasswordLength),
	}
}

// RegistrationInput is the payload accepted by RegistrationService.Register
type RegistrationInput struct {
	Email                string `form:"email" json:"email"`
	Name                 string `form:"name" json:"name"`
	Password             string `form:"password" json:"password"`
	PasswordConfirmation string `form:"password_confirmation" json:"password_confirmation"`
}

// Validate checks the payload and, when store is given, that the email is
// not already registered. It returns a validation_failed error with a
// field map, or an internal error if the store lookup fails.
func (r RegistrationInput) Validate(ctx context.Context, store AccountStore, policy PasswordPolicy) error {
	r.Email = NormalizeEmail(r.Email)
	r.Name = strings.TrimSpace(r.Name)

	err := validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(0, maxEmailLength), is.Email),
		validation.Field(&r.Name, validation.Required, validation.RuneLength(1, maxNameLength)),
		validation.Field(&r.Password, policy.rules()...),
		validation.Field(
			&r.PasswordConfirmation,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)

	fields, err := validationFields(err)
	if err != nil {
		return internalError(err, "failed to validate registration")
	}

	if _, bad := fields["email"]; !bad && store != nil {
		inUse, err := store.EmailInUse(ctx, r.Email, uuid.Nil)
		if err != nil {
			return internalError(err, "failed to check email availability")
		}
		if inUse {
			fields["email"] = emailTakenMessage
		}
	}

	if len(fields) > 0 {
		return NewValidationError("", fields)
	}
	return nil
}

// ProfileUpdateInput carries a partial profile change. Nil pointers leave
// the field untouched; the password is only changed when both password
// fields are present.
type ProfileUpdateInput struct {
	Name                 *string `form:"name" json:"name,omitempty"`
	Email                *string `form:"email" json:"email,omitempty"`
	Password             string  `form:"password" json:"password,omitempty"`
	PasswordConfirmation string  `form:"password_confirmation" json:"password_confirmation,omitempty"`
}

// ChangesPassword reports whether the update carries a password change
func (r ProfileUpdateInput) ChangesPassword() bool {
	return r.Password != "" || r.PasswordConfirmation != ""
}

// Validate checks the update against current. Email uniqueness excludes
// the current account.
func (r ProfileUpdateInput) Validate(ctx context.Context, store AccountStore, current *Account, policy PasswordPolicy) error {
	errs := validation.Errors{}

	if r.Name != nil {
		errs["name"] = validation.Validate(strings.TrimSpace(*r.Name),
			validation.Required,
			validation.RuneLength(1, maxNameLength),
		)
	}

	var email string
	if r.Email != nil {
		email = NormalizeEmail(*r.Email)
		errs["email"] = validation.Validate(email,
			validation.Required,
			validation.Length(0, maxEmailLength),
			is.Email,
		)
	}

	if r.ChangesPassword() {
		errs["password"] = validation.Validate(r.Password, policy.rules()...)
		errs["password_confirmation"] = validation.Validate(r.PasswordConfirmation,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		)
	}

	fields, err := validationFields(errs.Filter())
	if err != nil {
		return internalError(err, "failed to validate profile update")
	}

	if _, bad := fields["email"]; r.Email != nil && !bad && store != nil && current != nil && email != current.Email {
		inUse, err := store.EmailInUse(ctx, email, current.ID)
		if err != nil {
			return internalError(err, "failed to check email availability")
		}
		if inUse {
			fields["email"] = emailTakenMessage
		}
	}

	if len(fields) > 0 {
		return NewValidationError("", fields)
	}
	return nil
}

// ValidatePassword applies policy to a single new password
func ValidatePassword(password string, policy PasswordPolicy) error {
	if err := validation.Validate(password, policy.rules()...); err != nil {
		return NewValidationError("", map[string]string{"password": err.Error()})
	}
	return nil
}

// ValidateStringEquals returns a rule that requires the value to equal str
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

const emailTakenMessage = "email has already been taken"

func validationFields(err error) (map[string]string, error) {
	fields := map[string]string{}
	if err == nil {
		return fields, nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return nil, err
	}

	for field, ferr := range verrs {
		if ferr != nil {
			fields[field] = ferr.Error()
		}
	}
	return fields, nil
}
