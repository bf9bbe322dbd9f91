package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/studyauth"
)

// AccessTokenParser is the subset of *studyauth.Engine used by RequireAccessToken.
type AccessTokenParser interface {
	ParseAccessToken(token string) (string, error)
}

// RequireAccessToken accepts a Bearer access JWT and injects a principal
// carrying only the user id. It never touches the session store.
func RequireAccessToken(engine AccessTokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if engine == nil || !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			userID, err := engine.ParseAccessToken(token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), &studyauth.Principal{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionOrAccessAuthenticator is the subset of *studyauth.Engine used by
// RequireSessionOrAccessToken.
type SessionOrAccessAuthenticator interface {
	SessionAuthenticator
	AccessTokenParser
}

// RequireSessionOrAccessToken accepts a live session first, then falls back to
// a Bearer access JWT. Only the session path sets the session token in ctx, so
// handlers that act on the session itself must stay behind RequireSession.
func RequireSessionOrAccessToken(engine SessionOrAccessAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			if token, ok := SessionToken(r); ok {
				if principal, err := engine.Authenticate(r.Context(), token); err == nil {
					ctx := WithPrincipal(r.Context(), principal)
					ctx = context.WithValue(ctx, sessionTokenContextKey{}, token)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			bearer, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			userID, err := engine.ParseAccessToken(bearer)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := WithPrincipal(r.Context(), &studyauth.Principal{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
