package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/studyauth"
	"github.com/MrEthical07/studyauth/middleware"
)

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Secure   bool
	Domain   string
	Path     string
	SameSite http.SameSite
	// MaxAge is the cookie lifetime. It should equal the session absolute TTL.
	MaxAge time.Duration
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, session studyauth.SessionArtifact) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.Token,
		Path:     h.cookies.Path,
		Domain:   h.cookies.Domain,
		MaxAge:   int(h.cookies.MaxAge / time.Second),
		Expires:  session.ExpiresAt,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: h.cookies.SameSite,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     h.cookies.Path,
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: h.cookies.SameSite,
	})
}
