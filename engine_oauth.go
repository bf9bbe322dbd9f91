package studyauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// OAuthComplete signs in a user asserted by an external identity provider.
//
// The account is resolved by provider subject first, then by email (which
// links the provider to an existing account), and is created without a
// password otherwise. Linking and creation require a provider-verified
// email. Name and avatar are refreshed from the provider on every call.
//
//	Errors: ErrExternalIdentityInvalid, ErrConflict, ErrSessionCreationFailed
func (e *Engine) OAuthComplete(ctx context.Context, identity ExternalIdentity) (result *AuthResult, err error) {
	ctx, span := e.startSpan(ctx, "OAuthComplete")
	defer func() { endSpan(span, err) }()

	identity.Provider = strings.ToLower(strings.TrimSpace(identity.Provider))
	identity.ProviderUserID = strings.TrimSpace(identity.ProviderUserID)
	identity.DisplayName = strings.TrimSpace(identity.DisplayName)
	if len(identity.DisplayName) > maxDisplayNameLength {
		identity.DisplayName = identity.DisplayName[:maxDisplayNameLength]
	}
	if identity.Provider == "" || identity.ProviderUserID == "" {
		return nil, e.oauthFailure(ctx, ErrExternalIdentityInvalid)
	}
	email, emailErr := normalizeEmail(identity.Email)

	user, err := e.users.FindUserByProvider(ctx, identity.Provider, identity.ProviderUserID)
	switch {
	case err == nil:
		user, err = e.refreshExternalProfile(ctx, user, identity)
		if err != nil {
			return nil, err
		}
	case errors.Is(err, ErrUserNotFound):
		if emailErr != nil || !identity.EmailVerified {
			return nil, e.oauthFailure(ctx, ErrExternalIdentityInvalid)
		}
		user, err = e.linkOrCreateExternal(ctx, email, identity)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: %v", ErrUserStore, err)
	}

	result, err = e.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricOAuthLogin)
	e.emitAudit(ctx, auditEventOAuthLogin, true, user.ID, nil, func() map[string]string {
		return map[string]string{"provider": identity.Provider}
	})
	return result, nil
}

func (e *Engine) linkOrCreateExternal(ctx context.Context, email string, identity ExternalIdentity) (*User, error) {
	existing, err := e.users.FindUserByEmail(ctx, email)
	if err == nil {
		if existing.HasExternalIdentity() {
			return nil, e.oauthFailure(ctx, ErrConflict)
		}
		update := UserUpdate{
			Provider:       &identity.Provider,
			ProviderUserID: &identity.ProviderUserID,
		}
		if existing.DisplayName == "" && identity.DisplayName != "" {
			update.DisplayName = &identity.DisplayName
		}
		if identity.AvatarURL != "" {
			update.AvatarURL = &identity.AvatarURL
		}
		linked, err := e.users.UpdateUser(ctx, existing.ID, update)
		if err != nil {
			return nil, storeError(err)
		}
		e.metricInc(MetricOAuthLinked)
		return linked, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrUserStore, err)
	}

	now := e.now()
	user := &User{
		ID:             e.newUserID(),
		Email:          email,
		DisplayName:    identity.DisplayName,
		AvatarURL:      identity.AvatarURL,
		Provider:       identity.Provider,
		ProviderUserID: identity.ProviderUserID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			return nil, e.oauthFailure(ctx, ErrConflict)
		}
		return nil, fmt.Errorf("%w: %v", ErrUserStore, err)
	}
	e.metricInc(MetricOAuthUserCreated)
	return user, nil
}

func (e *Engine) refreshExternalProfile(ctx context.Context, user *User, identity ExternalIdentity) (*User, error) {
	var update UserUpdate
	changed := false
	if identity.DisplayName != "" && identity.DisplayName != user.DisplayName {
		update.DisplayName = &identity.DisplayName
		changed = true
	}
	if identity.AvatarURL != "" && identity.AvatarURL != user.AvatarURL {
		update.AvatarURL = &identity.AvatarURL
		changed = true
	}
	if !changed {
		return user, nil
	}

	updated, err := e.users.UpdateUser(ctx, user.ID, update)
	if err != nil {
		return nil, storeError(err)
	}
	return updated, nil
}

func (e *Engine) oauthFailure(ctx context.Context, err error) error {
	e.emitAudit(ctx, auditEventOAuthFailure, false, "", err, nil)
	return err
}
