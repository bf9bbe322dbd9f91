package studyauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrEthical07/studyauth/internal"
	"github.com/MrEthical07/studyauth/session"
)

// RefreshSession exchanges a refresh secret for a new access token and a
// rotated secret. The presented secret stops working once this returns. When
// SessionToken is set the session is rotated as well, keeping its absolute
// expiry.
//
//	Errors: ErrAccessDenied, ErrUserStore, ErrStoreUnavailable, ErrEngineNotReady (refresh disabled)
func (e *Engine) RefreshSession(ctx context.Context, req RefreshRequest) (result *RefreshResult, err error) {
	ctx, span := e.startSpan(ctx, "RefreshSession")
	defer func() { endSpan(span, err) }()

	if e.jwt == nil {
		return nil, ErrEngineNotReady
	}

	user, err := e.findUserByID(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.refreshFailure(ctx, req.UserID, ErrAccessDenied)
		}
		return nil, err
	}
	if !internal.MatchSecretHash(req.RefreshSecret, user.RefreshSecretHash) {
		return nil, e.refreshFailure(ctx, user.ID, ErrAccessDenied)
	}

	if req.SessionToken != "" {
		rec, err := e.sessions.Lookup(ctx, req.SessionToken)
		if err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, e.refreshFailure(ctx, user.ID, fmt.Errorf("%w: %v", ErrAccessDenied, err))
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if rec.UserID != user.ID {
			return nil, e.refreshFailure(ctx, user.ID, fmt.Errorf("%w: %v", ErrAccessDenied, session.ErrOwnerMismatch))
		}
	}

	access, expiresAt, err := e.jwt.CreateAccess(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	secret, hash, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, err
	}

	// The secret is persisted before the session moves so a store failure
	// leaves both the old secret and the old session usable.
	if _, err := e.users.UpdateUser(ctx, user.ID, UserUpdate{RefreshSecretHash: &hash}); err != nil {
		return nil, storeError(err)
	}

	result = &RefreshResult{
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		RefreshSecret:   secret,
	}
	if req.SessionToken != "" {
		issued, err := e.sessions.Rotate(ctx, req.SessionToken, user.ID)
		if err != nil {
			e.restoreRefreshHash(ctx, user)
			return nil, e.refreshFailure(ctx, user.ID, fmt.Errorf("%w: %v", ErrAccessDenied, err))
		}
		e.metricInc(MetricSessionRotated)
		result.Session = &SessionArtifact{
			Token:     issued.Token,
			ExpiresAt: issued.Record.AbsoluteExpiresAt,
		}
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, user.ID, nil, nil)
	return result, nil
}

// restoreRefreshHash puts back the secret hash a failed rotation replaced.
func (e *Engine) restoreRefreshHash(ctx context.Context, user *User) {
	prev := user.RefreshSecretHash
	if _, err := e.users.UpdateUser(ctx, user.ID, UserUpdate{RefreshSecretHash: &prev}); err != nil {
		e.logger.WarnContext(ctx, "restore refresh secret failed", slog.String("user_id", user.ID), slog.String("error", err.Error()))
	}
}

func (e *Engine) refreshFailure(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, err, nil)
	return err
}

// IssueRefreshSecret creates a refresh secret for userID, replacing any
// earlier one. Only its hash is stored.
func (e *Engine) IssueRefreshSecret(ctx context.Context, userID string) (string, error) {
	if e.jwt == nil {
		return "", ErrEngineNotReady
	}
	if _, err := e.findUserByID(ctx, userID); err != nil {
		return "", err
	}

	secret, hash, err := internal.NewRefreshSecret()
	if err != nil {
		return "", err
	}
	if _, err := e.users.UpdateUser(ctx, userID, UserUpdate{RefreshSecretHash: &hash}); err != nil {
		return "", storeError(err)
	}

	e.emitAudit(ctx, auditEventRefreshSecretIssued, true, userID, nil, nil)
	return secret, nil
}

// RevokeRefresh clears the stored refresh secret for userID.
func (e *Engine) RevokeRefresh(ctx context.Context, userID string) error {
	if _, err := e.findUserByID(ctx, userID); err != nil {
		return err
	}
	empty := ""
	if _, err := e.users.UpdateUser(ctx, userID, UserUpdate{RefreshSecretHash: &empty}); err != nil {
		return storeError(err)
	}
	e.emitAudit(ctx, auditEventRefreshRevoked, true, userID, nil, nil)
	return nil
}

// ParseAccessToken verifies an access token minted by RefreshSession.
func (e *Engine) ParseAccessToken(token string) (string, error) {
	if e.jwt == nil {
		return "", ErrEngineNotReady
	}
	claims, err := e.jwt.ParseAccess(token)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return claims.UID, nil
}
