// Package mail delivers verification and password-reset codes.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/studyauth"
)

// TLS modes accepted by SMTPSettings.TLSMode.
const (
	TLSModeSTARTTLS = "starttls"
	TLSModeTLS      = "tls"
	TLSModePlain    = "plain"
)

var errHeaderInjection = errors.New("mail: header value contains line break")

type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	TLSMode  string

	FromName  string
	FromEmail string
	Timeout   time.Duration
}

// SMTPMailer sends plain-text code emails over SMTP.
type SMTPMailer struct {
	settings SMTPSettings
}

var (
	_ studyauth.Mailer              = (*SMTPMailer)(nil)
	_ studyauth.PasswordResetMailer = (*SMTPMailer)(nil)
)

func NewSMTPMailer(settings SMTPSettings) (*SMTPMailer, error) {
	if settings.Host == "" || settings.Port <= 0 {
		return nil, errors.New("mail: smtp host and port are required")
	}
	if settings.FromEmail == "" {
		return nil, errors.New("mail: from address is required")
	}
	switch settings.TLSMode {
	case "":
		settings.TLSMode = TLSModeSTARTTLS
	case TLSModeSTARTTLS, TLSModeTLS, TLSModePlain:
	default:
		return nil, fmt.Errorf("mail: unknown tls mode %q", settings.TLSMode)
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 10 * time.Second
	}
	return &SMTPMailer{settings: settings}, nil
}

func (m *SMTPMailer) SendVerificationEmail(ctx context.Context, email, code string) error {
	return m.send(ctx, email, "Your verification code", verificationBody(code))
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, email, code string) error {
	return m.send(ctx, email, "Your password reset code", resetBody(code))
}

func (m *SMTPMailer) send(ctx context.Context, to, subject, body string) error {
	s := m.settings
	from := s.FromEmail
	if s.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.FromName, s.FromEmail)
	}
	msg, err := buildMessage(from, to, subject, body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.Timeout)
	defer cancel()

	client, err := m.connect(ctx)
	if err != nil {
		return err
	}
	defer client.Close()

	if s.Username != "" {
		auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := client.Mail(s.FromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt: %w", err)
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := writer.Write([]byte(msg)); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}
	if err := client.Quit(); err != nil && !strings.Contains(err.Error(), "use of closed network connection") {
		return fmt.Errorf("smtp quit: %w", err)
	}
	return nil
}

func (m *SMTPMailer) connect(ctx context.Context) (*smtp.Client, error) {
	s := m.settings
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	tlsConfig := &tls.Config{ServerName: s.Host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if s.TLSMode == TLSModeTLS {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	} else {
		var dialer net.Dialer
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp dial: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp client: %w", err)
	}
	if s.TLSMode == TLSModeSTARTTLS {
		if err := client.StartTLS(tlsConfig); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp starttls: %w", err)
		}
	}
	return client, nil
}

func buildMessage(from, to, subject, body string) (string, error) {
	for _, v := range []string{from, to, subject} {
		if strings.ContainsAny(v, "\r\n") {
			return "", errHeaderInjection
		}
	}
	lines := []string{
		"From: " + from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}
	return strings.Join(lines, "\r\n"), nil
}

func verificationBody(code string) string {
	return "Your verification code is " + code + ".\r\n\r\nIt expires in 10 minutes. If you did not request it, ignore this email."
}

func resetBody(code string) string {
	return "Your password reset code is " + code + ".\r\n\r\nIf you did not request a reset, your password is unchanged."
}
