package mail

import (
	"context"
	"log/slog"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	gomail "github.com/wneessen/go-mail"
)

// Sender delivers a rendered message
type Sender interface {
	Send(ctx context.Context, from, recipient Address, subject, body string) error
}

// SMTPSettings configures SMTPSender
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of "mandatory", "opportunistic" or "none"
	TLS     string
	Timeout time.Duration
}

// SMTPSender delivers mail over SMTP
type SMTPSender struct {
	settings SMTPSettings
}

// NewSMTPSender creates a sender for settings
func NewSMTPSender(settings SMTPSettings) *SMTPSender {
	return &SMTPSender{settings: settings}
}

// Send builds a plain text message and delivers it in one session.
func (s *SMTPSender) Send(ctx context.Context, from, recipient Address, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(string(from)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid sender address")
	}
	if err := msg.To(string(recipient)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryBadInput, "invalid recipient address")
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	client, err := gomail.NewClient(s.settings.Host, s.clientOptions()...)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create smtp client")
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to deliver mail")
	}
	return nil
}

func (s *SMTPSender) clientOptions() []gomail.Option {
	opts := []gomail.Option{}

	if s.settings.Port > 0 {
		opts = append(opts, gomail.WithPort(s.settings.Port))
	}

	if s.settings.Timeout > 0 {
		opts = append(opts, gomail.WithTimeout(s.settings.Timeout))
	}

	switch s.settings.TLS {
	case "mandatory":
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	case "none":
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS))
	default:
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	if s.settings.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.settings.Username),
			gomail.WithPassword(s.settings.Password),
		)
	}

	return opts
}

// LogSender is a Sender that logs the email instead of sending it.
// It logs addresses and codes, so it is meant for development only.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// Send logs the email to the logger.
func (s *LogSender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.logger.Info("send email",
		"from", from,
		"recipient", recipient,
		"subject", subject,
		"body", body,
	)
	return nil
}

// SentMessage is a message captured by MemorySender
type SentMessage struct {
	From      Address
	Recipient Address
	Subject   string
	Body      string
}

// MemorySender keeps messages in memory. It is safe for concurrent use.
type MemorySender struct {
	mu     sync.Mutex
	emails []SentMessage
}

func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (s *MemorySender) Send(_ context.Context, from, recipient Address, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.emails = append(s.emails, SentMessage{
		From:      from,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	return nil
}

// Emails returns a copy of the captured messages
func (s *MemorySender) Emails() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]SentMessage, len(s.emails))
	copy(out, s.emails)
	return out
}
