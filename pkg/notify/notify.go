// Package notify delivers lead notifications to the sales team.
package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/pkg/errors"

	"github.com/leadvoice/leadvoice/pkg/store"
)

// Notifier is the outbound notification transport.
type Notifier interface {
	Send(ctx context.Context, recipient, subject, body string) error
}

// SMTPConfig configures the SMTP sender.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPSender sends plain-text mail over SMTP. Auth is used only when a
// username is configured.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(ctx context.Context, recipient, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	msg := strings.Join([]string{
		"From: " + s.cfg.From,
		"To: " + recipient,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="utf-8"`,
		"",
		body,
	}, "\r\n")

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{recipient}, []byte(msg)); err != nil {
		return errors.Wrapf(err, "send mail to %s", recipient)
	}
	return nil
}

// FormatLeadEmail renders the notification for a persisted lead.
func FormatLeadEmail(lead *store.Lead) (subject, body string) {
	subject = fmt.Sprintf("New Lead: %s - %s", lead.Name, lead.SelectedProduct)

	var b strings.Builder
	b.WriteString("New lead received!\n\n")
	b.WriteString("Customer Information:\n")
	fmt.Fprintf(&b, "- Name: %s\n", lead.Name)
	fmt.Fprintf(&b, "- Email: %s\n", lead.Email)
	fmt.Fprintf(&b, "- Phone: %s\n\n", lead.Phone)
	fmt.Fprintf(&b, "Selected Product: %s\n", lead.SelectedProduct)
	fmt.Fprintf(&b, "Products Discussed: %s\n\n", strings.Join(lead.ProductsDiscussed, ", "))
	if lead.Summary != "" {
		fmt.Fprintf(&b, "Conversation Summary:\n%s\n\n", lead.Summary)
	}
	fmt.Fprintf(&b, "Lead ID: %d\n", lead.ID)
	return subject, b.String()
}
