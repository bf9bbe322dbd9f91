// Package httpapi exposes studyauth flows as a JSON HTTP API on chi.
package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/MrEthical07/studyauth"
	"github.com/MrEthical07/studyauth/middleware"
	"github.com/MrEthical07/studyauth/oauth"
)

// RouterDeps groups NewRouter's collaborators.
type RouterDeps struct {
	Engine    *studyauth.Engine
	Verifiers *oauth.Registry
	// IPLimiter guards the unauthenticated write routes. Nil disables it.
	IPLimiter *IPLimiter
	Cookies   CookieConfig
	Logger    *slog.Logger
	// Metrics is mounted at /metrics when non-nil.
	Metrics      http.Handler
	MaxBodyBytes int64
}

// NewRouter builds the full route tree.
//
// Middleware order: RequestID → RealIP → logger → Recoverer → ClientInfo.
func NewRouter(deps RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookies := deps.Cookies
	if cookies.Path == "" {
		cookies.Path = "/"
	}
	if cookies.SameSite == 0 {
		cookies.SameSite = http.SameSiteLaxMode
	}
	if cookies.MaxAge <= 0 && deps.Engine != nil {
		cookies.MaxAge = deps.Engine.SessionTTL()
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	h := &Handler{
		engine:    deps.Engine,
		verifiers: deps.Verifiers,
		cookies:   cookies,
		maxBody:   maxBody,
		logger:    logger,
	}

	throttle := func(next http.Handler) http.Handler { return next }
	if deps.IPLimiter != nil {
		throttle = deps.IPLimiter.Middleware
	}
	var requireSession, requireIdentity func(http.Handler) http.Handler
	if deps.Engine != nil {
		requireSession = middleware.RequireSession(deps.Engine)
		requireIdentity = middleware.RequireSessionOrAccessToken(deps.Engine)
	} else {
		requireSession = middleware.RequireSession(nil)
		requireIdentity = middleware.RequireSessionOrAccessToken(nil)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.ClientInfo)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
	})
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(throttle)
			r.Post("/register", h.Register)
			r.Post("/register/verify", h.VerifyRegistration)
			r.Post("/login", h.Login)
			r.Post("/refresh", h.Refresh)
			r.Post("/oauth/{provider}", h.OAuth)
			r.Post("/password/reset", h.RequestPasswordReset)
			r.Post("/password/reset/confirm", h.ConfirmPasswordReset)
		})
		r.Get("/account-type", h.AccountType)

		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/logout", h.Logout)
			r.Post("/password/change", h.ChangePassword)
		})

		// Access JWTs minted by /auth/refresh are accepted here as well.
		r.Group(func(r chi.Router) {
			r.Use(requireIdentity)
			r.Get("/me", h.Me)
			r.Patch("/me", h.UpdateMe)
			r.Post("/refresh-secret", h.IssueRefreshSecret)
			r.Delete("/refresh-secret", h.RevokeRefreshSecret)
		})
	})

	return r
}
