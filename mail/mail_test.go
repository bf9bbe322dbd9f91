package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage("Study <no-reply@x.com>", "a@b.com", "Your verification code", verificationBody("123456"))
	if err != nil {
		t.Fatalf("buildMessage: %v", err)
	}
	for _, want := range []string{
		"From: Study <no-reply@x.com>\r\n",
		"To: a@b.com\r\n",
		"Subject: Your verification code\r\n",
		"\r\n\r\nYour verification code is 123456.",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestBuildMessageRejectsHeaderInjection(t *testing.T) {
	_, err := buildMessage("no-reply@x.com", "a@b.com\r\nBcc: evil@x.com", "s", "b")
	if !errors.Is(err, errHeaderInjection) {
		t.Fatalf("expected errHeaderInjection, got %v", err)
	}
}

func TestNewSMTPMailerValidation(t *testing.T) {
	if _, err := NewSMTPMailer(SMTPSettings{Port: 587, FromEmail: "x@x.com"}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewSMTPMailer(SMTPSettings{Host: "smtp.x.com", Port: 587}); err == nil {
		t.Fatal("expected error without from address")
	}
	if _, err := NewSMTPMailer(SMTPSettings{Host: "smtp.x.com", Port: 587, FromEmail: "x@x.com", TLSMode: "ssl"}); err == nil {
		t.Fatal("expected error for unknown tls mode")
	}
	m, err := NewSMTPMailer(SMTPSettings{Host: "smtp.x.com", Port: 587, FromEmail: "x@x.com"})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	if m.settings.TLSMode != TLSModeSTARTTLS || m.settings.Timeout <= 0 {
		t.Fatalf("defaults not applied: %+v", m.settings)
	}
}

func TestSMTPMailerDialFailure(t *testing.T) {
	m, err := NewSMTPMailer(SMTPSettings{Host: "127.0.0.1", Port: 1, FromEmail: "x@x.com", TLSMode: TLSModePlain})
	if err != nil {
		t.Fatalf("NewSMTPMailer: %v", err)
	}
	if err := m.SendVerificationEmail(context.Background(), "a@b.com", "123456"); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestLogMailer(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := m.SendVerificationEmail(context.Background(), "a@b.com", "123456"); err != nil {
		t.Fatalf("SendVerificationEmail: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["email"] != "a@b.com" || entry["code"] != "123456" {
		t.Fatalf("log entry = %v", entry)
	}

	buf.Reset()
	if err := m.SendPasswordResetEmail(context.Background(), "a@b.com", "654321"); err != nil {
		t.Fatalf("SendPasswordResetEmail: %v", err)
	}
	if !strings.Contains(buf.String(), "password reset code issued") {
		t.Fatalf("unexpected log: %s", buf.String())
	}
}
