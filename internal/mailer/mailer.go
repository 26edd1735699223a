// Package mailer sends transactional email over SMTP.
package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/corpulate/platform/internal/app/metrics"
	"github.com/corpulate/platform/pkg/logger"
)

// Mailer delivers transactional messages.
type Mailer interface {
	// SendWelcome greets a freshly registered user.
	SendWelcome(ctx context.Context, to, firstName string) error
	// Send delivers an arbitrary plain-text message.
	Send(ctx context.Context, to, subject, body string) error
}

// Config holds SMTP connection settings.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP is a Mailer backed by an SMTP server.
type SMTP struct {
	client *mail.Client
	from   string
	log    *logger.Logger
}

var _ Mailer = (*SMTP)(nil)

// NewSMTP connects the mailer to the configured SMTP server.
func NewSMTP(cfg Config, log *logger.Logger) (*SMTP, error) {
	if log == nil {
		log = logger.NewDefault("mailer")
	}
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	return &SMTP{client: client, from: cfg.From, log: log}, nil
}

// Send delivers a plain-text message.
func (m *SMTP) Send(ctx context.Context, to, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("set from: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		metrics.RecordMail(false)
		return fmt.Errorf("send mail: %w", err)
	}
	metrics.RecordMail(true)
	m.log.WithField("to", to).Info("mail sent")
	return nil
}

// SendWelcome greets a freshly registered user.
func (m *SMTP) SendWelcome(ctx context.Context, to, firstName string) error {
	body := fmt.Sprintf(
		"Hi %s,\n\nWelcome to Corpulate! Your account is ready.\n\nYou can now browse formation packages and submit registration requests.\n\nThe Corpulate Team",
		firstName,
	)
	return m.Send(ctx, to, "Welcome to Corpulate", body)
}

// Noop is a Mailer that records nothing was configured and drops messages.
// It keeps signup working when SMTP settings are absent.
type Noop struct {
	log *logger.Logger
}

var _ Mailer = (*Noop)(nil)

// NewNoop creates a mailer that logs and discards every message.
func NewNoop(log *logger.Logger) *Noop {
	if log == nil {
		log = logger.NewDefault("mailer")
	}
	return &Noop{log: log}
}

// Send logs and discards the message.
func (m *Noop) Send(ctx context.Context, to, subject, body string) error {
	m.log.WithFields(map[string]interface{}{"to": to, "subject": subject}).Debug("mail discarded, smtp not configured")
	return nil
}

// SendWelcome logs and discards the welcome message.
func (m *Noop) SendWelcome(ctx context.Context, to, firstName string) error {
	return m.Send(ctx, to, "Welcome to Corpulate", "")
}
