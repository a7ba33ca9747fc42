package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"time"

	"recipebox/internal/config"
	"recipebox/internal/middleware"
)

// Message is a plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers email.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer returns the mailer selected by MAIL_DRIVER.
func NewMailer(cfg *config.Config) Mailer {
	if cfg.MailDriver == "smtp" {
		return &SMTPMailer{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		}
	}
	return &LogMailer{Logger: middleware.Logger}
}

// LogMailer writes messages to the log instead of sending them.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	logger := m.Logger
	if logger == nil {
		logger = middleware.Logger
	}
	logger.InfoContext(ctx, "mail delivered to log",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}

// SMTPMailer sends mail through an SMTP relay with PLAIN auth.
type SMTPMailer struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string

	// send is swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	from := m.From
	if from == "" {
		from = m.Username
	}

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}
	send := m.send
	if send == nil {
		send = smtp.SendMail
	}

	addr := net.JoinHostPort(m.Host, m.Port)
	if err := send(addr, auth, from, []string{msg.To}, compose(from, msg)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}
	return nil
}

func compose(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// OTPMessage composes the verification mail for a signup or email change.
func OTPMessage(purpose, to, code string, ttl time.Duration) Message {
	subject := "Your RecipeBox verification code"
	intro := "Use this code to finish creating your RecipeBox account."
	if purpose == "email_change" {
		subject = "Confirm your new RecipeBox email"
		intro = "Use this code to confirm your new email address."
	}
	body := fmt.Sprintf("%s\n\nYour OTP is: %s\n\nIt expires in %d minutes. If you did not request it, ignore this email.\n",
		intro, code, int(ttl.Minutes()))
	return Message{To: to, Subject: subject, Body: body}
}
