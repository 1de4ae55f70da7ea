package accounts

import "context"

// TemplateKind identifies the notification a Mailer should render
type TemplateKind string

const (
	// TemplateActivation carries an activation code
	TemplateActivation TemplateKind = "activation"
	// TemplatePasswordReset carries a password reset code
	TemplatePasswordReset TemplateKind = "password_reset"
)

// Recipient is the addressee of a notification
type Recipient struct {
	Name  string
	Email string
}

// Mailer delivers verification codes. Delivery is best-effort from the
// point of view of the services: a returned error is logged, never undone.
type Mailer interface {
	Send(ctx context.Context, to Recipient, kind TemplateKind, code string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, to Recipient, kind TemplateKind, code string) error

// Send implements Mailer.
func (f MailerFunc) Send(ctx context.Context, to Recipient, kind TemplateKind, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, to, kind, code)
}

type noopMailer struct{}

func (noopMailer) Send(context.Context, Recipient, TemplateKind, string) error {
	return nil
}

func normalizeMailer(m Mailer) Mailer {
	if m == nil {
		return noopMailer{}
	}
	return m
}

func recipientOf(account *Account) Recipient {
	return Recipient{Name: account.Name, Email: account.Email}
}
