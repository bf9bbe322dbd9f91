package studyauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrEthical07/studyauth/internal/rate"
	"github.com/MrEthical07/studyauth/internal/stores"
)

const maxDisplayNameLength = 128

// Register stages a password sign-up and sends a verification code to the
// email. Nothing durable is written until VerifyRegistration succeeds. A
// second Register for the same email replaces the first and supersedes its
// code.
//
//	Flow: policy -> throttle -> existing-user check -> hash -> stage -> send code
//	Errors: ErrInvalidEmail, ErrPasswordPolicy, ErrRegistrationRateLimited,
//	ErrConflict, ErrDeliveryFailed
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (err error) {
	ctx, span := e.startSpan(ctx, "Register")
	defer func() { endSpan(span, err) }()

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	if err := e.checkPasswordPolicy(req.Password); err != nil {
		return err
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if len(displayName) > maxDisplayNameLength {
		displayName = displayName[:maxDisplayNameLength]
	}

	if err := e.limiter.AllowRegistration(ctx, email, clientIPFromContext(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricRegisterRateLimited)
			e.emitAudit(ctx, auditEventRegisterRateLimited, false, "", ErrRegistrationRateLimited, nil)
			return ErrRegistrationRateLimited
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if _, err := e.users.FindUserByEmail(ctx, email); err == nil {
		e.metricInc(MetricRegisterConflict)
		e.emitAudit(ctx, auditEventRegisterConflict, false, "", ErrConflict, nil)
		return ErrConflict
	} else if !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("%w: %v", ErrUserStore, err)
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	pending := &stores.PendingRegistration{
		Email:        email,
		PasswordHash: hash,
		DisplayName:  displayName,
		CreatedAt:    e.now(),
	}
	if err := e.pending.Put(ctx, pending, e.config.Registration.PendingTTL); err != nil {
		e.metricInc(MetricRegisterDeliveryFailed)
		e.emitAudit(ctx, auditEventRegisterDeliveryFailed, false, "", ErrDeliveryFailed, nil)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	if err := e.otp.Issue(ctx, email); err != nil {
		if delErr := e.pending.Delete(context.WithoutCancel(ctx), email); delErr != nil {
			e.logger.WarnContext(ctx, "discard pending registration failed", slog.String("error", delErr.Error()))
		}
		e.metricInc(MetricRegisterDeliveryFailed)
		e.emitAudit(ctx, auditEventRegisterDeliveryFailed, false, "", ErrDeliveryFailed, nil)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	e.metricInc(MetricRegisterRequested)
	e.emitAudit(ctx, auditEventRegisterRequested, true, "", nil, nil)
	return nil
}

// VerifyRegistration consumes the code sent by Register, creates the user
// from the staged data and signs them in.
//
//	Errors: ErrInvalidCode, ErrRegistrationExpired, ErrConflict, ErrSessionCreationFailed
func (e *Engine) VerifyRegistration(ctx context.Context, email, code string) (result *AuthResult, err error) {
	ctx, span := e.startSpan(ctx, "VerifyRegistration")
	defer func() { endSpan(span, err) }()

	email, err = normalizeEmail(email)
	if err != nil {
		return nil, e.registrationFailure(ctx, MetricRegistrationInvalidCode, ErrInvalidCode)
	}

	ok, err := e.otp.Verify(ctx, email, code)
	if err != nil {
		e.logger.WarnContext(ctx, "verification code lookup failed", slog.String("error", err.Error()))
		return nil, e.registrationFailure(ctx, MetricRegistrationInvalidCode, fmt.Errorf("%w: %v", ErrInvalidCode, err))
	}
	if !ok {
		return nil, e.registrationFailure(ctx, MetricRegistrationInvalidCode, ErrInvalidCode)
	}

	pending, found, err := e.pending.Take(ctx, email)
	if err != nil {
		e.logger.WarnContext(ctx, "pending registration lookup failed", slog.String("error", err.Error()))
		return nil, e.registrationFailure(ctx, MetricRegistrationExpired, fmt.Errorf("%w: %v", ErrRegistrationExpired, err))
	}
	if !found {
		return nil, e.registrationFailure(ctx, MetricRegistrationExpired, ErrRegistrationExpired)
	}

	now := e.now()
	user := &User{
		ID:           e.newUserID(),
		Email:        pending.Email,
		PasswordHash: pending.PasswordHash,
		DisplayName:  pending.DisplayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			e.metricInc(MetricRegisterConflict)
			e.emitAudit(ctx, auditEventRegisterConflict, false, "", ErrConflict, nil)
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("%w: %v", ErrUserStore, err)
	}

	result, err = e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRegistrationVerified)
	e.emitAudit(ctx, auditEventRegistrationVerified, true, user.ID, nil, nil)
	return result, nil
}

func (e *Engine) registrationFailure(ctx context.Context, metric MetricID, err error) error {
	e.metricInc(metric)
	e.emitAudit(ctx, auditEventRegistrationFailure, false, "", err, nil)
	return err
}
