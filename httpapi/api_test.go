package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrEthical07/studyauth"
	"github.com/MrEthical07/studyauth/middleware"
	"github.com/MrEthical07/studyauth/oauth"
	"github.com/MrEthical07/studyauth/store/memory"
)

type captureMailer struct {
	mu    sync.Mutex
	codes map[string]string
	sent  int
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
	m.sent++
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

func (m *captureMailer) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

type stubVerifier struct {
	identity studyauth.ExternalIdentity
}

func (s stubVerifier) Provider() string { return s.identity.Provider }

func (s stubVerifier) Verify(_ context.Context, raw string) (studyauth.ExternalIdentity, error) {
	if raw != "good-token" {
		return studyauth.ExternalIdentity{}, studyauth.ErrExternalIdentityInvalid
	}
	return s.identity, nil
}

type apiEnv struct {
	server *httptest.Server
	mailer *captureMailer
	users  *memory.UserStore
	mr     *miniredis.Miniredis
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := studyauth.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Security.EnableIPThrottle = false
	cfg.Refresh.Enabled = true
	cfg.Refresh.PrivateKey = []byte("0123456789abcdef0123456789abcdef")

	env := &apiEnv{
		mailer: &captureMailer{codes: map[string]string{}},
		users:  memory.NewUserStore(),
		mr:     mr,
	}
	engine, err := studyauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(env.users).
		WithMailer(env.mailer).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	verifiers := oauth.NewRegistry(stubVerifier{identity: studyauth.ExternalIdentity{
		Provider:       "google",
		ProviderUserID: "g-1",
		Email:          "oauth@example.com",
		EmailVerified:  true,
		DisplayName:    "OAuth User",
	}})

	env.server = httptest.NewServer(NewRouter(RouterDeps{
		Engine:    engine,
		Verifiers: verifiers,
	}))
	t.Cleanup(env.server.Close)
	return env
}

func (e *apiEnv) do(t *testing.T, method, path string, body any, cookie *http.Cookie) *http.Response {
	t.Helper()
	return e.doBearer(t, method, path, body, cookie, "")
}

func (e *apiEnv) doBearer(t *testing.T, method, path string, body any, cookie *http.Cookie, bearer string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func sessionCookie(t *testing.T, resp *http.Response) *http.Cookie {
	t.Helper()
	for _, c := range resp.Cookies() {
		if c.Name == middleware.SessionCookieName {
			return c
		}
	}
	t.Fatalf("response carries no %s cookie", middleware.SessionCookieName)
	return nil
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *apiEnv) signUp(t *testing.T, email, password string) *http.Cookie {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/auth/register", registerBody{Email: email, Password: password}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/auth/register/verify", verifyBody{Email: email, Code: e.mailer.code(email)}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return sessionCookie(t, resp)
}

func TestRegisterVerifyAndMe(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/register", registerBody{Email: "Alice@Example.com", Password: "correct horse", DisplayName: "Alice"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	code := env.mailer.code("alice@example.com")
	require.Len(t, code, 6)

	resp = env.do(t, http.MethodPost, "/auth/register/verify", verifyBody{Email: "alice@example.com", Code: code}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	cookie := sessionCookie(t, resp)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, int((7 * 24 * time.Hour).Seconds()), cookie.MaxAge)

	result := decodeBody[studyauth.AuthResult](t, resp)
	assert.Equal(t, "alice@example.com", result.Profile.Email)
	assert.Equal(t, cookie.Value, result.Session.Token)

	resp = env.do(t, http.MethodGet, "/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeBody[studyauth.PublicProfile](t, resp)
	assert.Equal(t, "Alice", profile.DisplayName)
}

func TestRegisterErrors(t *testing.T) {
	env := newAPIEnv(t)
	env.signUp(t, "taken@example.com", "correct horse")

	resp := env.do(t, http.MethodPost, "/auth/register", registerBody{Email: "taken@example.com", Password: "correct horse"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/register", registerBody{Email: "short@example.com", Password: "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/register/verify", verifyBody{Email: "nobody@example.com", Code: "000000"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeBody[errorBody](t, resp)
	assert.Equal(t, "invalid_code", body.Code)
}

func TestVerifyAfterPendingExpired(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/register", registerBody{Email: "late@example.com", Password: "correct horse"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	env.mr.Del("reg:late@example.com")

	resp = env.do(t, http.MethodPost, "/auth/register/verify", verifyBody{Email: "late@example.com", Code: env.mailer.code("late@example.com")}, nil)
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

func TestLoginAndLogout(t *testing.T) {
	env := newAPIEnv(t)
	env.signUp(t, "bob@example.com", "correct horse")

	resp := env.do(t, http.MethodPost, "/auth/login", loginBody{Email: "bob@example.com", Password: "wrong horse"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_credentials", decodeBody[errorBody](t, resp).Code)

	resp = env.do(t, http.MethodPost, "/auth/login", loginBody{Email: "bob@example.com", Password: "correct horse"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cookie := sessionCookie(t, resp)

	resp = env.do(t, http.MethodPost, "/auth/logout", nil, cookie)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	cleared := sessionCookie(t, resp)
	assert.True(t, cleared.MaxAge < 0)

	resp = env.do(t, http.MethodGet, "/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAccountType(t *testing.T) {
	env := newAPIEnv(t)
	env.signUp(t, "carol@example.com", "correct horse")

	resp := env.do(t, http.MethodGet, "/auth/account-type?email=carol@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"accountType": "password"}, decodeBody[map[string]string](t, resp))

	resp = env.do(t, http.MethodGet, "/auth/account-type?email=nobody@example.com", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]string{"accountType": "none"}, decodeBody[map[string]string](t, resp))

	resp = env.do(t, http.MethodGet, "/auth/account-type?email=not-an-email", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOAuthRoute(t *testing.T) {
	env := newAPIEnv(t)

	resp := env.do(t, http.MethodPost, "/auth/oauth/github", oauthBody{IDToken: "good-token"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/oauth/google", oauthBody{IDToken: "bad"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/oauth/google", oauthBody{IDToken: "good-token"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sessionCookie(t, resp)
	result := decodeBody[studyauth.AuthResult](t, resp)
	assert.Equal(t, "google", result.Profile.Provider)

	resp = env.do(t, http.MethodGet, "/auth/account-type?email=oauth@example.com", nil, nil)
	assert.Equal(t, map[string]string{"accountType": "external"}, decodeBody[map[string]string](t, resp))

	// Code-flow providers post the authorization code instead of an ID token.
	resp = env.do(t, http.MethodPost, "/auth/oauth/google", oauthBody{Code: "good-token"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRefreshRotatesSession(t *testing.T) {
	env := newAPIEnv(t)
	cookie := env.signUp(t, "dave@example.com", "correct horse")

	resp := env.do(t, http.MethodPost, "/auth/refresh-secret", nil, cookie)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	secret := decodeBody[refreshSecretResponse](t, resp).RefreshSecret
	require.NotEmpty(t, secret)

	user, err := env.users.FindUserByEmail(context.Background(), "dave@example.com")
	require.NoError(t, err)

	resp = env.do(t, http.MethodPost, "/auth/refresh", refreshBody{UserID: user.ID, RefreshSecret: secret}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := sessionCookie(t, resp)
	assert.NotEqual(t, cookie.Value, rotated.Value)
	result := decodeBody[studyauth.RefreshResult](t, resp)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEqual(t, secret, result.RefreshSecret)

	resp = env.do(t, http.MethodGet, "/auth/me", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = env.do(t, http.MethodGet, "/auth/me", nil, rotated)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/refresh", refreshBody{UserID: user.ID, RefreshSecret: secret}, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAccessTokenReachesProtectedRoutes(t *testing.T) {
	env := newAPIEnv(t)
	cookie := env.signUp(t, "erin@example.com", "correct horse")

	resp := env.do(t, http.MethodPost, "/auth/refresh-secret", nil, cookie)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	secret := decodeBody[refreshSecretResponse](t, resp).RefreshSecret

	user, err := env.users.FindUserByEmail(context.Background(), "erin@example.com")
	require.NoError(t, err)

	resp = env.do(t, http.MethodPost, "/auth/refresh", refreshBody{UserID: user.ID, RefreshSecret: secret}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody[studyauth.RefreshResult](t, resp)
	require.NotEmpty(t, result.AccessToken)

	resp = env.doBearer(t, http.MethodGet, "/auth/me", nil, nil, result.AccessToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "erin@example.com", profile["email"])

	resp = env.doBearer(t, http.MethodPost, "/auth/refresh-secret", nil, nil, result.AccessToken)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Session-bound routes still need a session.
	resp = env.doBearer(t, http.MethodPost, "/auth/logout", nil, nil, result.AccessToken)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.doBearer(t, http.MethodGet, "/auth/me", nil, nil, result.AccessToken+"x")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestUpdateMe(t *testing.T) {
	env := newAPIEnv(t)
	cookie := env.signUp(t, "fay@example.com", "correct horse")

	resp := env.do(t, http.MethodPatch, "/auth/me", map[string]string{"displayName": " Fay ", "avatarUrl": "https://x/f.png"}, cookie)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	profile := decodeBody[studyauth.PublicProfile](t, resp)
	assert.Equal(t, "Fay", profile.DisplayName)
	assert.Equal(t, "https://x/f.png", profile.AvatarURL)
	assert.Equal(t, "fay@example.com", profile.Email)

	resp = env.do(t, http.MethodPatch, "/auth/me", map[string]string{"avatarUrl": "javascript:alert(1)"}, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/auth/me", map[string]string{"email": "other@example.com"}, cookie)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPatch, "/auth/me", map[string]string{"displayName": "x"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPasswordResetFlow(t *testing.T) {
	env := newAPIEnv(t)
	env.signUp(t, "erin@example.com", "correct horse")

	resp := env.do(t, http.MethodPost, "/auth/password/reset", resetRequestBody{Email: "erin@example.com"}, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	// The reset code is mailed after the response.
	require.Eventually(t, func() bool { return env.mailer.count() == 2 }, 2*time.Second, 10*time.Millisecond)
	code := env.mailer.code("erin@example.com")

	resp = env.do(t, http.MethodPost, "/auth/password/reset/confirm", resetConfirmBody{Email: "erin@example.com", Code: code, NewPassword: "battery staple"}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/login", loginBody{Email: "erin@example.com", Password: "battery staple"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/password/reset", resetRequestBody{Email: "ghost@example.com"}, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}

func TestChangePassword(t *testing.T) {
	env := newAPIEnv(t)
	cookie := env.signUp(t, "frank@example.com", "correct horse")

	resp := env.do(t, http.MethodPost, "/auth/password/change", changePasswordBody{OldPassword: "wrong", NewPassword: "battery staple"}, cookie)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/password/change", changePasswordBody{OldPassword: "correct horse", NewPassword: "battery staple"}, cookie)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/auth/password/change", changePasswordBody{OldPassword: "x", NewPassword: "y"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestMalformedBody(t *testing.T) {
	env := newAPIEnv(t)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/auth/login", bytes.NewBufferString(`{"email":`))
	require.NoError(t, err)
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp2 := env.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@b.com", "extra": "x"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp2.StatusCode)
}
