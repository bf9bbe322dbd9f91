package studyauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/studyauth/session"
)

// Logout revokes sessionToken on behalf of userID. Logging out a session
// that is already gone succeeds; a session owned by someone else is refused.
//
//	Performance: 1 GET + 1 DEL.
func (e *Engine) Logout(ctx context.Context, userID, sessionToken string) (err error) {
	ctx, span := e.startSpan(ctx, "Logout")
	defer func() { endSpan(span, err) }()

	rec, err := e.sessions.Lookup(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			e.metricInc(MetricLogout)
			return nil
		}
		return fmt.Errorf("lookup session: %w", err)
	}
	if rec.UserID != userID {
		e.emitAudit(ctx, auditEventLogoutDenied, false, userID, ErrAccessDenied, nil)
		return ErrAccessDenied
	}

	if err := e.sessions.Revoke(ctx, sessionToken); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, userID, nil, nil)
	return nil
}
