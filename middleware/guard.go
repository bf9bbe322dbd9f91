package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/studyauth"
)

// SessionCookieName is the cookie carrying the opaque session token.
const SessionCookieName = "sid"

// SessionAuthenticator is the subset of *studyauth.Engine used by RequireSession.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*studyauth.Principal, error)
}

type principalContextKey struct{}
type sessionTokenContextKey struct{}

// PrincipalFromContext returns the principal injected by a guard.
func PrincipalFromContext(ctx context.Context) (*studyauth.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*studyauth.Principal)
	return p, ok
}

// SessionTokenFromContext returns the raw session token accepted by RequireSession.
func SessionTokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(sessionTokenContextKey{}).(string)
	return token, ok && token != ""
}

// WithPrincipal stores p in ctx. Exposed for handler tests.
func WithPrincipal(ctx context.Context, p *studyauth.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// RequireSession rejects requests without a live session with 401.
func RequireSession(engine SessionAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := SessionToken(r)
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			principal, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), principal)
			ctx = context.WithValue(ctx, sessionTokenContextKey{}, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionToken extracts the session token, preferring the cookie over the
// Authorization header.
func SessionToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(SessionCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
