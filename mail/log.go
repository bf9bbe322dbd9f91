package mail

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/studyauth"
)

// LogMailer writes codes to a logger instead of sending them. Development only.
type LogMailer struct {
	logger *slog.Logger
}

var (
	_ studyauth.Mailer              = (*LogMailer)(nil)
	_ studyauth.PasswordResetMailer = (*LogMailer)(nil)
)

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendVerificationEmail(ctx context.Context, email, code string) error {
	m.logger.InfoContext(ctx, "verification code issued",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, email, code string) error {
	m.logger.InfoContext(ctx, "password reset code issued",
		slog.String("email", email),
		slog.String("code", code),
	)
	return nil
}
