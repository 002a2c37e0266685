package smtp

import (
	"context"
	"crypto/tls"
	"fmt"

	"github.com/cuchu-notify/internal/config"
	mail "gopkg.in/mail.v2"
)

// Mailer sends HTML emails.
type Mailer interface {
	SendEmail(ctx context.Context, to, subject, html string) error
}

type sender interface {
	DialAndSend(m ...*mail.Message) error
}

type mailer struct {
	from   string
	dialer sender
}

// NewMailer returns a Mailer on cfg's SMTP settings, or nil when SMTP_HOST is unset.
func NewMailer(cfg *config.Config) Mailer {
	if cfg.SMTPHost == "" {
		return nil
	}
	d := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	if !cfg.IsProduction() {
		d.StartTLSPolicy = mail.OpportunisticStartTLS
	}
	d.TLSConfig = &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12}
	return &mailer{from: cfg.SMTPFrom, dialer: d}
}

func (m *mailer) SendEmail(ctx context.Context, to, subject, html string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := newMessage(m.from, to, subject, html)
	if err := m.dialer.DialAndSend(msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func newMessage(from, to, subject, html string) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", from)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", html)
	return msg
}
