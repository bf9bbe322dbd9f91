package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/studyauth"
)

// ClientInfo copies the remote address and User-Agent into the request
// context so Engine audit events can carry them. Run it after chi's
// RealIP middleware when the service sits behind a proxy.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := studyauth.WithClientIP(r.Context(), ClientIP(r))
		ctx = studyauth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the host part of r.RemoteAddr.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
