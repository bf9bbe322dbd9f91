package oauth

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/studyauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func googleWith(payload *idtoken.Payload, err error) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: "client-1",
		validate: func(_ context.Context, _, audience string) (*idtoken.Payload, error) {
			if audience != "client-1" {
				return nil, errors.New("wrong audience")
			}
			return payload, err
		},
	}
}

func TestGoogleVerifierMapsClaims(t *testing.T) {
	v := googleWith(&idtoken.Payload{
		Issuer:  "https://accounts.google.com",
		Subject: "g-42",
		Claims: map[string]interface{}{
			"email":          " Person@Example.com ",
			"email_verified": true,
			"name":           "Person",
			"picture":        "https://x/p.png",
		},
	}, nil)

	id, err := v.Verify(context.Background(), "raw")
	require.NoError(t, err)
	assert.Equal(t, studyauth.ExternalIdentity{
		Provider:       "google",
		ProviderUserID: "g-42",
		Email:          "person@example.com",
		EmailVerified:  true,
		DisplayName:    "Person",
		AvatarURL:      "https://x/p.png",
	}, id)
}

func TestGoogleVerifierStringEmailVerified(t *testing.T) {
	v := googleWith(&idtoken.Payload{
		Issuer:  "accounts.google.com",
		Subject: "g-1",
		Claims:  map[string]interface{}{"email": "a@b.com", "email_verified": "true"},
	}, nil)

	id, err := v.Verify(context.Background(), "raw")
	require.NoError(t, err)
	assert.True(t, id.EmailVerified)
}

func TestGoogleVerifierRejects(t *testing.T) {
	cases := map[string]*GoogleVerifier{
		"validation error": googleWith(nil, errors.New("bad signature")),
		"wrong issuer":     googleWith(&idtoken.Payload{Issuer: "evil.com", Subject: "x"}, nil),
		"missing subject":  googleWith(&idtoken.Payload{Issuer: "accounts.google.com"}, nil),
	}
	for name, v := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), "raw")
			assert.ErrorIs(t, err, studyauth.ErrExternalIdentityInvalid)
		})
	}

	_, err := googleWith(nil, nil).Verify(context.Background(), "  ")
	assert.ErrorIs(t, err, studyauth.ErrExternalIdentityInvalid)
}

func TestNewVerifiersRequireAudience(t *testing.T) {
	_, err := NewGoogleVerifier("")
	assert.Error(t, err)
	_, err = NewAppleVerifier(" ")
	assert.Error(t, err)
}

func appleWith(claims appleClaims, err error) *AppleVerifier {
	return &AppleVerifier{
		serviceID: "com.example.web",
		verify: func(audience, _ string) (appleClaims, error) {
			if audience != "com.example.web" {
				return appleClaims{}, errors.New("wrong audience")
			}
			return claims, err
		},
	}
}

func TestAppleVerifier(t *testing.T) {
	id, err := appleWith(appleClaims{Iss: appleIssuer, Sub: "a-1", Email: "Relay@PrivateRelay.AppleID.com"}, nil).
		Verify(context.Background(), "raw")
	require.NoError(t, err)
	assert.Equal(t, "apple", id.Provider)
	assert.Equal(t, "a-1", id.ProviderUserID)
	assert.Equal(t, "relay@privaterelay.appleid.com", id.Email)
	assert.True(t, id.EmailVerified)

	id, err = appleWith(appleClaims{Iss: appleIssuer, Sub: "a-2"}, nil).Verify(context.Background(), "raw")
	require.NoError(t, err)
	assert.False(t, id.EmailVerified)

	_, err = appleWith(appleClaims{Iss: "https://evil", Sub: "a-1"}, nil).Verify(context.Background(), "raw")
	assert.ErrorIs(t, err, studyauth.ErrExternalIdentityInvalid)

	_, err = appleWith(appleClaims{}, errors.New("expired")).Verify(context.Background(), "raw")
	assert.ErrorIs(t, err, studyauth.ErrExternalIdentityInvalid)
}

func TestRegistry(t *testing.T) {
	g := googleWith(nil, nil)
	r := NewRegistry(g, nil)

	v, ok := r.Lookup(" Google ")
	require.True(t, ok)
	assert.Same(t, g, v)

	_, ok = r.Lookup("github")
	assert.False(t, ok)

	var nilRegistry *Registry
	_, ok = nilRegistry.Lookup("google")
	assert.False(t, ok)
}
