// Package email delivers transactional mail over SMTP.
package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"whisperbox/internal/config"
	"whisperbox/internal/middleware"
)

// Mailer sends a single HTML email. Implementations must honor the context
// deadline; delivery failures surface to the caller, nothing is retried.
type Mailer interface {
	Send(ctx context.Context, to, subject, html string) error
}

// SMTPMailer sends mail through a configured SMTP relay.
type SMTPMailer struct {
	host      string
	port      int
	username  string
	password  string
	tlsMode   string
	fromName  string
	fromEmail string
	timeout   time.Duration
}

// NewSMTPMailer builds an SMTPMailer from the application config.
func NewSMTPMailer(cfg *config.Config) *SMTPMailer {
	timeout := cfg.EmailTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTPMailer{
		host:      cfg.SMTPHost,
		port:      cfg.SMTPPort,
		username:  cfg.SMTPUsername,
		password:  cfg.SMTPPassword,
		tlsMode:   cfg.SMTPTLSMode,
		fromName:  cfg.FromName,
		fromEmail: cfg.FromEmail,
		timeout:   timeout,
	}
}

// Send delivers one message. The deadline is the earlier of the context
// deadline and the configured timeout.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, html string) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	client, err := m.connect(ctx, addr)
	if err != nil {
		middleware.EmailDeliveries.WithLabelValues("failure").Inc()
		return err
	}
	defer client.Close()

	if m.username != "" {
		auth := smtp.PlainAuth("", m.username, m.password, m.host)
		if err := client.Auth(auth); err != nil {
			middleware.EmailDeliveries.WithLabelValues("failure").Inc()
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(m.fromEmail); err != nil {
		middleware.EmailDeliveries.WithLabelValues("failure").Inc()
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		middleware.EmailDeliveries.WithLabelValues("failure").Inc()
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		middleware.EmailDeliveries.WithLabelValues("failure").Inc()
		return fmt.Errorf("smtp data: %w", err)
	}

	from := m.fromEmail
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.fromEmail)
	}
	if _, err := writer.Write([]byte(buildMessage(from, to, subject, html))); err != nil {
		middleware.EmailDeliveries.WithLabelValues("failure").Inc()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		middleware.EmailDeliveries.WithLabelValues("failure").Inc()
		return fmt.Errorf("smtp close: %w", err)
	}
	if err := client.Quit(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		middleware.EmailDeliveries.WithLabelValues("failure").Inc()
		return fmt.Errorf("smtp quit: %w", err)
	}

	middleware.EmailDeliveries.WithLabelValues("success").Inc()
	return nil
}

func (m *SMTPMailer) connect(ctx context.Context, addr string) (*smtp.Client, error) {
	dialer := &net.Dialer{}

	tlsMode := m.tlsMode
	if tlsMode == "" {
		tlsMode = "starttls"
	}

	switch tlsMode {
	case "tls":
		conn, err := (&tls.Dialer{
			NetDialer: dialer,
			Config:    &tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12},
		}).DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("smtp tls dial: %w", err)
		}
		client, err := smtp.NewClient(conn, m.host)
		if err != nil {
			return nil, fmt.Errorf("smtp client: %w", err)
		}
		return client, nil
	default:
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, fmt.Errorf("smtp dial: %w", err)
		}
		client, err := smtp.NewClient(conn, m.host)
		if err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("smtp client: %w", err)
		}
		if tlsMode == "starttls" {
			if err := client.StartTLS(&tls.Config{ServerName: m.host, MinVersion: tls.VersionTLS12}); err != nil {
				_ = client.Close()
				return nil, fmt.Errorf("smtp starttls: %w", err)
			}
		}
		return client, nil
	}
}

func buildMessage(from, to, subject, html string) string {
	lines := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=utf-8",
		"",
		html,
	}
	return strings.Join(lines, "\r\n")
}
