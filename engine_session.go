package studyauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
)

func (e *Engine) issueSession(ctx context.Context, user *User) (*AuthResult, error) {
	issued, err := e.sessions.Issue(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	e.metricInc(MetricSessionCreated)

	return &AuthResult{
		Profile: user.Profile(),
		Session: SessionArtifact{
			Token:     issued.Token,
			ExpiresAt: issued.Record.AbsoluteExpiresAt,
		},
	}, nil
}

// Authenticate resolves sessionToken to its owner and slides the idle window.
// Store failures are indistinguishable from a missing session.
//
//	Performance: 1 Lua EVALSHA.
func (e *Engine) Authenticate(ctx context.Context, sessionToken string) (*Principal, error) {
	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricValidateLatency, time.Since(start))
	}()

	rec, ok := e.sessions.ValidateAndTouch(ctx, sessionToken)
	if !ok {
		e.metricInc(MetricSessionRejected)
		return nil, ErrUnauthorized
	}
	e.metricInc(MetricSessionValidated)

	return &Principal{
		UserID:         rec.UserID,
		IssuedAt:       rec.IssuedAt,
		LastActivityAt: rec.LastActivityAt,
		ExpiresAt:      rec.AbsoluteExpiresAt,
		Rotation:       rec.Rotation,
	}, nil
}

// Profile returns the public view of userID.
func (e *Engine) Profile(ctx context.Context, userID string) (*PublicProfile, error) {
	user, err := e.findUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile()
	return &profile, nil
}

// ProfileUpdate changes the editable profile fields. Nil leaves a field as is;
// an empty string clears it.
type ProfileUpdate struct {
	DisplayName *string `json:"displayName,omitempty"`
	AvatarURL   *string `json:"avatarUrl,omitempty"`
}

// UpdateProfile edits the display name and avatar of userID. Email is not
// editable here: it identifies the account and is only ever set from a
// verified source.
//
//	Errors: ErrInvalidProfile, ErrUserNotFound, ErrUserStore
func (e *Engine) UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) (*PublicProfile, error) {
	var change UserUpdate
	if update.DisplayName != nil {
		name := strings.TrimSpace(*update.DisplayName)
		if len(name) > maxDisplayNameLength {
			return nil, fmt.Errorf("%w: display name longer than %d bytes", ErrInvalidProfile, maxDisplayNameLength)
		}
		change.DisplayName = &name
	}
	if update.AvatarURL != nil {
		avatar := strings.TrimSpace(*update.AvatarURL)
		if avatar != "" {
			u, err := url.Parse(avatar)
			if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
				return nil, fmt.Errorf("%w: avatar must be an absolute http(s) URL", ErrInvalidProfile)
			}
		}
		change.AvatarURL = &avatar
	}

	if change.DisplayName == nil && change.AvatarURL == nil {
		return e.Profile(ctx, userID)
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := e.users.UpdateUser(ctx, userID, change)
	if err != nil {
		return nil, storeError(err)
	}
	profile := user.Profile()
	return &profile, nil
}

func (e *Engine) findUserByID(ctx context.Context, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	user, err := e.users.FindUserByID(ctx, userID)
	if err != nil {
		return nil, storeError(err)
	}
	return user, nil
}
