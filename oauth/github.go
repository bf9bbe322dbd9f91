package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"

	"github.com/MrEthical07/studyauth"
)

// ProviderGitHub is the provider name of GitHubVerifier.
const ProviderGitHub = "github"

const (
	githubAPIBase     = "https://api.github.com"
	githubEmailScope  = "user:email"
	maxGitHubBodySize = 1 << 20
)

// GitHubConfig holds the OAuth app credentials registered with GitHub.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// GitHubVerifier completes the GitHub web flow. The raw token it verifies is
// the authorization code GitHub returned to RedirectURL; the verifier
// exchanges it and reads the account and its primary verified email.
type GitHubVerifier struct {
	config  *oauth2.Config
	apiBase string
}

// NewGitHubVerifier requires a client id and secret.
func NewGitHubVerifier(cfg GitHubConfig) (*GitHubVerifier, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("oauth: github client id and secret required")
	}
	return &GitHubVerifier{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     github.Endpoint,
			Scopes:       []string{githubEmailScope},
		},
		apiBase: githubAPIBase,
	}, nil
}

// Provider returns ProviderGitHub.
func (v *GitHubVerifier) Provider() string { return ProviderGitHub }

// Verify exchanges code for an access token and builds the identity from
// /user and /user/emails. Exchange and API failures surface as
// studyauth.ErrExternalIdentityInvalid.
func (v *GitHubVerifier) Verify(ctx context.Context, code string) (studyauth.ExternalIdentity, error) {
	if strings.TrimSpace(code) == "" {
		return studyauth.ExternalIdentity{}, invalid(errors.New("missing authorization code"))
	}

	token, err := v.config.Exchange(ctx, code)
	if err != nil {
		return studyauth.ExternalIdentity{}, invalid(fmt.Errorf("exchange code: %w", err))
	}
	client := v.config.Client(ctx, token)

	var user githubUser
	if err := v.getJSON(ctx, client, "/user", &user); err != nil {
		return studyauth.ExternalIdentity{}, invalid(err)
	}
	if user.ID == 0 {
		return studyauth.ExternalIdentity{}, invalid(errors.New("missing github user id"))
	}

	var emails []githubEmail
	if err := v.getJSON(ctx, client, "/user/emails", &emails); err != nil {
		return studyauth.ExternalIdentity{}, invalid(err)
	}
	email, verified := primaryEmail(emails)
	if email == "" {
		email = user.Email
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return studyauth.ExternalIdentity{
		Provider:       ProviderGitHub,
		ProviderUserID: strconv.FormatInt(user.ID, 10),
		Email:          strings.TrimSpace(strings.ToLower(email)),
		EmailVerified:  verified,
		DisplayName:    name,
		AvatarURL:      user.AvatarURL,
	}, nil
}

func (v *GitHubVerifier) getJSON(ctx context.Context, client *http.Client, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("github %s: %w", path, err)
	}
	defer resp.Body.Close()

	body := io.LimitReader(resp.Body, maxGitHubBodySize)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(body)
		return fmt.Errorf("github %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		return fmt.Errorf("decode github %s: %w", path, err)
	}
	return nil
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// primaryEmail prefers the primary verified address, then any verified one.
func primaryEmail(emails []githubEmail) (string, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, true
		}
	}
	for _, e := range emails {
		if e.Verified {
			return e.Email, true
		}
	}
	return "", false
}
