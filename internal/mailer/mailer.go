// Package mailer delivers transactional auth emails over SMTP. Delivery is a
// fire-and-forget collaborator: callers treat a send failure as a failure of
// that single operation.
package mailer

import (
	"fmt"

	"gopkg.in/gomail.v2"

	"github.com/sandeepkv93/session-authority-service/internal/config"
)

// Mailer is what the verification and password-reset services depend on.
type Mailer interface {
	SendVerificationCode(to, code string) error
	SendPasswordReset(to, token string) error
}

type SMTPMailer struct {
	dialer  *gomail.Dialer
	from    string
	baseURL string
}

func NewSMTPMailer(cfg *config.Config) (*SMTPMailer, error) {
	if cfg.SMTPHost == "" {
		return nil, fmt.Errorf("SMTP_HOST is required")
	}
	if cfg.SMTPFrom == "" {
		return nil, fmt.Errorf("SMTP_FROM is required")
	}
	return &SMTPMailer{
		dialer:  gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		from:    cfg.SMTPFrom,
		baseURL: cfg.AppBaseURL,
	}, nil
}

func (m *SMTPMailer) SendVerificationCode(to, code string) error {
	subject, html := verificationEmail(m.baseURL, to, code)
	return m.send(to, subject, html)
}

func (m *SMTPMailer) SendPasswordReset(to, token string) error {
	subject, html := passwordResetEmail(m.baseURL, token)
	return m.send(to, subject, html)
}

func (m *SMTPMailer) send(to, subject, html string) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}
