// Package oauth verifies third-party ID tokens and turns them into
// studyauth.ExternalIdentity values for Engine.OAuthComplete.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/studyauth"
	"google.golang.org/api/idtoken"
)

// Provider names as used in /auth/oauth/{provider} and stored on accounts.
const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

var errMissingToken = errors.New("missing id token")

// Verifier turns a raw provider token into a verified identity.
type Verifier interface {
	Provider() string
	Verify(ctx context.Context, rawToken string) (studyauth.ExternalIdentity, error)
}

// GoogleVerifier validates Google Sign-In ID tokens for one client id.
type GoogleVerifier struct {
	clientID string
	validate func(ctx context.Context, token, audience string) (*idtoken.Payload, error)
}

// NewGoogleVerifier accepts tokens whose audience is clientID.
func NewGoogleVerifier(clientID string) (*GoogleVerifier, error) {
	if strings.TrimSpace(clientID) == "" {
		return nil, errors.New("oauth: google client id required")
	}
	return &GoogleVerifier{clientID: clientID, validate: idtoken.Validate}, nil
}

// Provider returns ProviderGoogle.
func (v *GoogleVerifier) Provider() string { return ProviderGoogle }

// Verify checks the signature, audience and issuer of rawToken and maps its
// claims. Any rejection wraps studyauth.ErrExternalIdentityInvalid.
func (v *GoogleVerifier) Verify(ctx context.Context, rawToken string) (studyauth.ExternalIdentity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return studyauth.ExternalIdentity{}, invalid(errMissingToken)
	}

	payload, err := v.validate(ctx, rawToken, v.clientID)
	if err != nil {
		return studyauth.ExternalIdentity{}, invalid(err)
	}
	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return studyauth.ExternalIdentity{}, invalid(fmt.Errorf("unexpected issuer: %s", payload.Issuer))
	}
	if payload.Subject == "" {
		return studyauth.ExternalIdentity{}, invalid(errors.New("missing subject"))
	}

	return studyauth.ExternalIdentity{
		Provider:       ProviderGoogle,
		ProviderUserID: payload.Subject,
		Email:          strings.TrimSpace(strings.ToLower(stringClaim(payload.Claims, "email"))),
		EmailVerified:  boolClaim(payload.Claims, "email_verified"),
		DisplayName:    stringClaim(payload.Claims, "name"),
		AvatarURL:      stringClaim(payload.Claims, "picture"),
	}, nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %v", studyauth.ErrExternalIdentityInvalid, err)
}

func stringClaim(claims map[string]interface{}, name string) string {
	if v, ok := claims[name].(string); ok {
		return v
	}
	return ""
}

// Google sends email_verified as a bool, older tokens as the string "true".
func boolClaim(claims map[string]interface{}, name string) bool {
	switch v := claims[name].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}
