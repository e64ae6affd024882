package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/orsela/stock-alerts-agent/internal/models"
)

// RecipientDirectory resolves an owner to an email address
type RecipientDirectory interface {
	EmailFor(ctx context.Context, owner string) (string, error)
}

// EmailConfig holds SMTP delivery configuration
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender delivers notifications over SMTP, resolving the recipient
// address through the user directory
type EmailSender struct {
	cfg       EmailConfig
	directory RecipientDirectory

	// sendMail is swappable for tests
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailSender creates an SMTP email sender
func NewEmailSender(cfg EmailConfig, directory RecipientDirectory) *EmailSender {
	return &EmailSender{
		cfg:       cfg,
		directory: directory,
		sendMail:  smtp.SendMail,
	}
}

// Channel returns the channel this sender serves
func (s *EmailSender) Channel() models.Channel {
	return models.ChannelEmail
}

// Send delivers the event by email
func (s *EmailSender) Send(ctx context.Context, event *models.NotificationEvent) error {
	recipient, err := s.directory.EmailFor(ctx, event.Owner)
	if err != nil {
		return fmt.Errorf("failed to resolve recipient for %s: %w", event.Owner, err)
	}
	if recipient == "" {
		return fmt.Errorf("owner %s has no email address", event.Owner)
	}

	msg := buildEmailMessage(s.cfg.From, recipient, event)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{recipient}, msg); err != nil {
		return fmt.Errorf("smtp send failed: %w", err)
	}

	return nil
}

// buildEmailMessage renders the full RFC 5322 message
func buildEmailMessage(from, to string, event *models.NotificationEvent) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: Stock alert: %s\r\n", event.Symbol)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(formatMessage(event))
	b.WriteString("\r\n")
	return []byte(b.String())
}
