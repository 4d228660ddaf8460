package auth

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/toonranks/toonranks/pkg/config"
	"github.com/toonranks/toonranks/pkg/logging"
)

// EmailSender delivers plain-text email
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// NewEmailSender returns an SMTP sender, or a logging sender when no host is configured
func NewEmailSender(cfg config.EmailConfig) EmailSender {
	if cfg.Host == "" {
		return &LogSender{logger: logging.WithComponent("email")}
	}
	return &SMTPSender{cfg: cfg}
}

// SMTPSender sends mail through an SMTP relay using STARTTLS when offered
type SMTPSender struct {
	cfg config.EmailConfig
}

// Send implements EmailSender
func (s *SMTPSender) Send(ctx context.Context, to, subject, body string) error {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = conn.Close() }()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	client, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("failed to start TLS: %w", err)
		}
	}
	if s.cfg.Username != "" && s.cfg.Password != "" {
		if err := client.Auth(smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}
	if err := client.Mail(s.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("failed to set recipient: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start message: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(s.cfg.From, to, subject, body))); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close message: %w", err)
	}
	_ = client.Quit()
	return nil
}

func buildMessage(from, to, subject, body string) string {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return b.String()
}

// LogSender writes outgoing mail to the log instead of sending it
type LogSender struct {
	logger *zap.Logger
}

// Send implements EmailSender
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	s.logger.Info("Email not sent, SMTP is not configured",
		zap.String("to", to), zap.String("subject", subject), zap.String("body", body))
	return nil
}
