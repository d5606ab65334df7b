// Package mail sends delivery emails. Two transports are supported: console
// (log the message, for local development) and smtp.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/mattjoyce/bindery/internal/config"
	"github.com/mattjoyce/bindery/internal/log"
)

// Message is a single outbound email with plain-text and HTML bodies.
type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

//go:generate mockgen -destination=mocks/mock_mailer.go -package=mocks github.com/mattjoyce/bindery/internal/mail Mailer

// Mailer delivers a message to one recipient.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New selects the transport from config. Mode is validated at config load,
// so anything other than smtp falls back to console.
func New(cfg config.EmailConfig) Mailer {
	if cfg.Mode == "smtp" {
		return &SMTPMailer{cfg: cfg}
	}
	return &ConsoleMailer{}
}

// ConsoleMailer writes the message to the structured log instead of sending
// it. Used in development and in tests of the wiring.
type ConsoleMailer struct{}

func (m *ConsoleMailer) Send(_ context.Context, msg Message) error {
	log.WithComponent("mail").Info("email (console mode)",
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text)
	return nil
}

// SMTPMailer sends over plain SMTP with optional AUTH.
type SMTPMailer struct {
	cfg config.EmailConfig
}

func (m *SMTPMailer) Send(_ context.Context, msg Message) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	body := encodeMessage(m.cfg.From, msg)
	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{msg.To}, body); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

// encodeMessage renders a multipart/alternative MIME message so clients can
// choose between the text and HTML bodies.
func encodeMessage(from string, msg Message) []byte {
	const boundary = "bindery-alt"

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=%q\r\n", boundary)
	b.WriteString("\r\n")

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Text)
	b.WriteString("\r\n")

	if msg.HTML != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=utf-8\r\n\r\n")
		b.WriteString(msg.HTML)
		b.WriteString("\r\n")
	}

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
