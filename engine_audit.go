package studyauth

import (
	"context"
	"errors"
)

const (
	auditEventRegisterRequested       = "register_requested"
	auditEventRegisterConflict        = "register_conflict"
	auditEventRegisterRateLimited     = "register_rate_limited"
	auditEventRegisterDeliveryFailed  = "register_delivery_failed"
	auditEventRegistrationVerified    = "registration_verified"
	auditEventRegistrationFailure     = "registration_failure"
	auditEventLoginSuccess            = "login_success"
	auditEventLoginFailure            = "login_failure"
	auditEventLoginRateLimited        = "login_rate_limited"
	auditEventRefreshSuccess          = "refresh_success"
	auditEventRefreshInvalid          = "refresh_invalid"
	auditEventRefreshSecretIssued     = "refresh_secret_issued"
	auditEventRefreshRevoked          = "refresh_revoked"
	auditEventLogoutSession           = "logout_session"
	auditEventLogoutDenied            = "logout_denied"
	auditEventOAuthLogin              = "oauth_login"
	auditEventOAuthFailure            = "oauth_failure"
	auditEventPasswordChangeSuccess   = "password_change_success"
	auditEventPasswordChangeInvalid   = "password_change_invalid_old"
	auditEventPasswordChangeReuse     = "password_change_reuse_attempt"
	auditEventPasswordResetRequest    = "password_reset_request"
	auditEventPasswordResetConfirm    = "password_reset_confirm"
	auditEventPasswordResetConfirmBad = "password_reset_confirm_failure"
)

// AuditErrorCode is the stable error label attached to failed audit events.
type AuditErrorCode string

const (
	auditErrUnauthorized          AuditErrorCode = "unauthorized"
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrInvalidCode           AuditErrorCode = "invalid_code"
	auditErrRegistrationExpired   AuditErrorCode = "registration_expired"
	auditErrAccessDenied          AuditErrorCode = "access_denied"
	auditErrDeliveryFailed        AuditErrorCode = "delivery_failed"
	auditErrUserNotFound          AuditErrorCode = "user_not_found"
	auditErrPasswordPolicy        AuditErrorCode = "password_policy"
	auditErrPasswordReuse         AuditErrorCode = "password_reuse"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrDuplicate             AuditErrorCode = "duplicate"
	auditErrExternalIdentity      AuditErrorCode = "external_identity_invalid"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return auditErrUnauthorized
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited), errors.Is(err, ErrRegistrationRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrRegistrationExpired):
		return auditErrRegistrationExpired
	case errors.Is(err, ErrAccessDenied):
		return auditErrAccessDenied
	case errors.Is(err, ErrDeliveryFailed):
		return auditErrDeliveryFailed
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrPasswordPolicy), errors.Is(err, ErrInvalidEmail):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordReuse):
		return auditErrPasswordReuse
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrConflict), errors.Is(err, ErrUserExists):
		return auditErrDuplicate
	case errors.Is(err, ErrExternalIdentityInvalid):
		return auditErrExternalIdentity
	default:
		return auditErrInternal
	}
}
