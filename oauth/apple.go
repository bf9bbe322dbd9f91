package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HendrickPhan/go-verify-apple-id-token/validator"
	"github.com/MrEthical07/studyauth"
)

const appleIssuer = "https://appleid.apple.com"

type appleClaims struct {
	Iss   string
	Sub   string
	Email string
}

// AppleVerifier validates Sign in with Apple ID tokens for one service id.
// Apple only releases addresses it has verified, relay addresses included.
type AppleVerifier struct {
	serviceID string
	verify    func(audience, token string) (appleClaims, error)
}

// NewAppleVerifier accepts tokens whose audience is serviceID. Apple's signing
// keys are fetched on demand.
func NewAppleVerifier(serviceID string) (*AppleVerifier, error) {
	if strings.TrimSpace(serviceID) == "" {
		return nil, errors.New("oauth: apple service id required")
	}
	client := validator.NewClient()
	return &AppleVerifier{
		serviceID: serviceID,
		verify: func(audience, token string) (appleClaims, error) {
			idToken, err := client.VerifyIdToken(audience, token)
			if err != nil {
				return appleClaims{}, err
			}
			return appleClaims{Iss: idToken.Iss, Sub: idToken.Sub, Email: idToken.Email}, nil
		},
	}, nil
}

// Provider returns ProviderApple.
func (v *AppleVerifier) Provider() string { return ProviderApple }

// Verify checks rawToken against Apple's keys and issuer. Any rejection wraps
// studyauth.ErrExternalIdentityInvalid.
func (v *AppleVerifier) Verify(_ context.Context, rawToken string) (studyauth.ExternalIdentity, error) {
	if strings.TrimSpace(rawToken) == "" {
		return studyauth.ExternalIdentity{}, invalid(errMissingToken)
	}

	claims, err := v.verify(v.serviceID, rawToken)
	if err != nil {
		return studyauth.ExternalIdentity{}, invalid(err)
	}
	if claims.Iss != appleIssuer {
		return studyauth.ExternalIdentity{}, invalid(fmt.Errorf("unexpected issuer: %s", claims.Iss))
	}
	if claims.Sub == "" {
		return studyauth.ExternalIdentity{}, invalid(errors.New("missing subject"))
	}

	email := strings.TrimSpace(strings.ToLower(claims.Email))
	return studyauth.ExternalIdentity{
		Provider:       ProviderApple,
		ProviderUserID: claims.Sub,
		Email:          email,
		EmailVerified:  email != "",
	}, nil
}
