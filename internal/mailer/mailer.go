// Package mailer sends transactional email for marketplace events. When
// SMTP is not configured the no-op mailer logs what would have been sent.
package mailer

import (
	"context"
	"fmt"
	"net/smtp"

	"github.com/nexushub/marketplace/internal/logging"
)

// Mailer delivers one HTML email.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// SMTPConfig carries the relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string
}

// SMTPMailer sends through a standard SMTP relay.
type SMTPMailer struct {
	cfg SMTPConfig
	log *logging.Logger
}

var _ Mailer = (*SMTPMailer)(nil)

// NewSMTP builds a mailer for the given relay.
func NewSMTP(cfg SMTPConfig, log *logging.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, log: log}
}

func (m *SMTPMailer) Send(ctx context.Context, to, subject, htmlBody string) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	msg := []byte(fmt.Sprintf(
		"From: %s <%s>\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n",
		m.cfg.FromName, m.cfg.From, to, subject, htmlBody,
	))

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}

	m.log.WithFields(map[string]any{"to": to, "subject": subject}).Debug("email sent")
	return nil
}

// Noop logs instead of sending. Used when no relay is configured.
type Noop struct {
	log *logging.Logger
}

var _ Mailer = (*Noop)(nil)

// NewNoop builds the logging-only mailer.
func NewNoop(log *logging.Logger) *Noop {
	return &Noop{log: log}
}

func (m *Noop) Send(ctx context.Context, to, subject, htmlBody string) error {
	m.log.WithFields(map[string]any{"to": to, "subject": subject}).Info("smtp not configured, would send email")
	return nil
}
