package studyauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const resetDeliveryTimeout = 30 * time.Second

// ChangePassword replaces the password of userID after checking the current
// one. The refresh secret is cleared so other devices must sign in again to
// obtain a new one.
//
//	Errors: ErrInvalidCredentials, ErrPasswordPolicy, ErrPasswordReuse, ErrUserNotFound
func (e *Engine) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) (err error) {
	ctx, span := e.startSpan(ctx, "ChangePassword")
	defer func() { endSpan(span, err) }()

	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() || !e.hasher.Verify(user.PasswordHash, oldPassword) {
		e.metricInc(MetricPasswordChangeInvalidOld)
		e.emitAudit(ctx, auditEventPasswordChangeInvalid, false, userID, ErrInvalidCredentials, nil)
		return ErrInvalidCredentials
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	if oldPassword == newPassword {
		e.metricInc(MetricPasswordChangeReuseRejected)
		e.emitAudit(ctx, auditEventPasswordChangeReuse, false, userID, ErrPasswordReuse, nil)
		return ErrPasswordReuse
	}

	if err := e.setPassword(ctx, userID, newPassword); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	e.emitAudit(ctx, auditEventPasswordChangeSuccess, true, userID, nil, nil)
	return nil
}

// RequestPasswordReset sends a reset code when email belongs to an account.
// Unknown emails and delivery problems are not reported to the caller.
// Issuing and mailing the code happen after the call returns, so known and
// unknown emails take the same path up to the user lookup.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := e.startSpan(ctx, "RequestPasswordReset")
	defer func() { endSpan(span, err) }()

	if e.resetOTP == nil {
		return ErrEngineNotReady
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return err
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, "", nil, nil)

	if _, err := e.users.FindUserByEmail(ctx, email); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			e.logger.WarnContext(ctx, "password reset lookup failed", slog.String("error", err.Error()))
		}
		return nil
	}
	e.background.Add(1)
	go func() {
		defer e.background.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resetDeliveryTimeout)
		defer cancel()
		if err := e.resetOTP.Issue(ctx, email); err != nil {
			e.logger.WarnContext(ctx, "password reset delivery failed", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// ConfirmPasswordReset consumes a reset code and sets newPassword. The
// password policy is checked before the code so a rejected password does
// not burn it.
//
//	Errors: ErrPasswordPolicy, ErrInvalidCode
func (e *Engine) ConfirmPasswordReset(ctx context.Context, email, code, newPassword string) (err error) {
	ctx, span := e.startSpan(ctx, "ConfirmPasswordReset")
	defer func() { endSpan(span, err) }()

	if e.resetOTP == nil {
		return ErrEngineNotReady
	}
	if err := e.checkPasswordPolicy(newPassword); err != nil {
		return err
	}
	email, err = normalizeEmail(email)
	if err != nil {
		return e.resetFailure(ctx, ErrInvalidCode)
	}

	ok, err := e.resetOTP.Verify(ctx, email, code)
	if err != nil {
		return e.resetFailure(ctx, fmt.Errorf("%w: %v", ErrInvalidCode, err))
	}
	if !ok {
		return e.resetFailure(ctx, ErrInvalidCode)
	}

	user, err := e.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return e.resetFailure(ctx, ErrInvalidCode)
		}
		return fmt.Errorf("%w: %v", ErrUserStore, err)
	}
	if err := e.setPassword(ctx, user.ID, newPassword); err != nil {
		return err
	}
	if err := e.limiter.ResetLogin(ctx, email); err != nil {
		e.logger.WarnContext(ctx, "reset login counter failed", slog.String("error", err.Error()))
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, user.ID, nil, nil)
	return nil
}

func (e *Engine) resetFailure(ctx context.Context, err error) error {
	e.metricInc(MetricPasswordResetConfirmFailure)
	e.emitAudit(ctx, auditEventPasswordResetConfirmBad, false, "", err, nil)
	return err
}

func (e *Engine) setPassword(ctx context.Context, userID, newPassword string) error {
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	cleared := ""
	if _, err := e.users.UpdateUser(ctx, userID, UserUpdate{PasswordHash: &hash, RefreshSecretHash: &cleared}); err != nil {
		return storeError(err)
	}
	return nil
}
