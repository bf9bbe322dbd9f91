package studyauth

import (
	"context"
	"time"
)

// User is the durable account record.
type User struct {
	ID                string
	Email             string
	PasswordHash      string
	DisplayName       string
	AvatarURL         string
	Provider          string
	ProviderUserID    string
	RefreshSecretHash string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassword reports whether the account can sign in with a password.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// HasExternalIdentity reports whether the account is linked to a provider.
func (u *User) HasExternalIdentity() bool {
	return u != nil && u.Provider != "" && u.ProviderUserID != ""
}

// Profile returns the client-safe view of u.
func (u *User) Profile() PublicProfile {
	return PublicProfile{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		Provider:    u.Provider,
	}
}

// UserUpdate is a partial update. Nil fields are left unchanged.
type UserUpdate struct {
	PasswordHash      *string
	DisplayName       *string
	AvatarURL         *string
	Provider          *string
	ProviderUserID    *string
	RefreshSecretHash *string
}

// UserStore persists users. Implementations return ErrUserNotFound for
// missing users and ErrUserExists for unique-key violations.
type UserStore interface {
	FindUserByEmail(ctx context.Context, email string) (*User, error)
	FindUserByID(ctx context.Context, id string) (*User, error)
	FindUserByProvider(ctx context.Context, provider, providerUserID string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	UpdateUser(ctx context.Context, id string, update UserUpdate) (*User, error)
}

// Mailer delivers verification codes.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, email, code string) error
}

// PasswordResetMailer is optionally implemented by a Mailer that renders
// reset codes differently from sign-up codes.
type PasswordResetMailer interface {
	SendPasswordResetEmail(ctx context.Context, email, code string) error
}

// PublicProfile is the user view returned to clients.
type PublicProfile struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Provider    string `json:"provider,omitempty"`
}

// SessionArtifact carries a raw session token. The token is only ever
// available here, at issuance.
type SessionArtifact struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResult is returned by every flow that signs a user in.
type AuthResult struct {
	Profile PublicProfile   `json:"profile"`
	Session SessionArtifact `json:"session"`
}

// RegisterRequest is the input to Register.
type RegisterRequest struct {
	Email       string
	Password    string
	DisplayName string
}

// RefreshRequest is the input to RefreshSession. SessionToken is optional.
type RefreshRequest struct {
	UserID        string
	RefreshSecret string
	SessionToken  string
}

// RefreshResult carries a fresh access token and the rotated refresh secret.
type RefreshResult struct {
	AccessToken     string           `json:"accessToken"`
	AccessExpiresAt time.Time        `json:"accessExpiresAt"`
	RefreshSecret   string           `json:"refreshSecret"`
	Session         *SessionArtifact `json:"session,omitempty"`
}

// ExternalIdentity is a verified identity asserted by a third-party provider.
type ExternalIdentity struct {
	Provider       string
	ProviderUserID string
	Email          string
	EmailVerified  bool
	DisplayName    string
	AvatarURL      string
}

// Principal is the authenticated caller resolved from a session token.
type Principal struct {
	UserID         string
	IssuedAt       time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
	Rotation       uint32
}

// AccountType classifies how an email can sign in.
type AccountType uint8

const (
	// AccountNone means no account exists for the email.
	AccountNone AccountType = iota
	// AccountPassword means password sign-in only.
	AccountPassword
	// AccountExternal means external-provider sign-in only.
	AccountExternal
	// AccountLinked means both password and external-provider sign-in.
	AccountLinked
)

// String returns the wire name of t.
func (t AccountType) String() string {
	switch t {
	case AccountPassword:
		return "password"
	case AccountExternal:
		return "external"
	case AccountLinked:
		return "linked"
	default:
		return "none"
	}
}

// MarshalText encodes t by name.
func (t AccountType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}
