package studyauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/studyauth/internal/rate"
)

// Login authenticates email and password and issues a session.
//
// Unknown email, password-less (external-only) account and wrong password
// all return ErrInvalidCredentials after one Argon2 derivation, so neither
// the error nor the latency tells them apart. Failed attempts count against
// the per-email and per-IP windows.
//
//	Errors: ErrInvalidCredentials, ErrLoginRateLimited, ErrStoreUnavailable, ErrSessionCreationFailed
func (e *Engine) Login(ctx context.Context, email, password string) (result *AuthResult, err error) {
	ctx, span := e.startSpan(ctx, "Login")
	defer func() { endSpan(span, err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		e.dummyVerify(password)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}
	ip := clientIPFromContext(ctx)

	if err := e.limiter.CheckLogin(ctx, email, ip); err != nil {
		if !errors.Is(err, rate.ErrRateLimited) {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricLoginRateLimited)
		e.emitAudit(ctx, auditEventLoginRateLimited, false, "", ErrLoginRateLimited, func() map[string]string {
			return map[string]string{"identifier": email}
		})
		return nil, ErrLoginRateLimited
	}

	user, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrUserStore, err)
		}
		e.dummyVerify(password)
		return nil, e.loginFailure(ctx, email, ip, "")
	}
	if !user.HasPassword() {
		e.dummyVerify(password)
		return nil, e.loginFailure(ctx, email, ip, user.ID)
	}
	if !e.hasher.Verify(user.PasswordHash, password) {
		return nil, e.loginFailure(ctx, email, ip, user.ID)
	}

	if err := e.limiter.ResetLogin(ctx, email); err != nil {
		e.logger.WarnContext(ctx, "reset login counter failed", slog.String("error", err.Error()))
	}
	if e.config.Password.UpgradeOnLogin && e.hasher.NeedsUpgrade(user.PasswordHash) {
		e.upgradePasswordHash(ctx, user, password)
	}

	result, err = e.issueSession(ctx, user)
	if err != nil {
		e.emitAudit(ctx, auditEventLoginFailure, false, user.ID, err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, user.ID, nil, nil)
	return result, nil
}

func (e *Engine) loginFailure(ctx context.Context, email, ip, userID string) error {
	if err := e.limiter.IncrementLogin(ctx, email, ip); err != nil {
		e.logger.WarnContext(ctx, "count failed login", slog.String("error", err.Error()))
	}
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, auditEventLoginFailure, false, userID, ErrInvalidCredentials, nil)
	return ErrInvalidCredentials
}

// upgradePasswordHash rehashes with the current parameters. Failure leaves
// the old hash in place and does not fail the login.
func (e *Engine) upgradePasswordHash(ctx context.Context, user *User, password string) {
	upgraded, err := e.hasher.Hash(password)
	if err != nil {
		e.logger.WarnContext(ctx, "rehash password failed", slog.String("error", err.Error()))
		return
	}
	if _, err := e.users.UpdateUser(ctx, user.ID, UserUpdate{PasswordHash: &upgraded}); err != nil {
		e.logger.WarnContext(ctx, "store upgraded password hash failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	user.PasswordHash = upgraded
	e.metricInc(MetricPasswordHashUpgraded)
}
