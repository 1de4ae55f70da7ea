package mail

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail indicates an email address is not valid.
var ErrInvalidEmail = errors.New("invalid email address")

// Address is an RFC 5322 address, optionally with a display name.
type Address string

// ParseAddress checks that raw is a bare email address.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return Address(""), ErrInvalidEmail
	}

	// reject "Alice <alice@example.com>" and comments
	if addr.Address != trimmed {
		return Address(""), ErrInvalidEmail
	}

	return Address(addr.Address), nil
}

// NamedAddress formats email with a display name
func NamedAddress(name, email string) Address {
	if strings.TrimSpace(name) == "" {
		return Address(email)
	}
	return Address((&mail.Address{Name: name, Address: email}).String())
}

func (a *Address) UnmarshalText(text []byte) error {
	addr, err := ParseAddress(string(text))
	if err != nil {
		return err
	}

	*a = addr

	return nil
}
