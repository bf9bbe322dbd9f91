package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPLimiterMiddleware(t *testing.T) {
	l := NewIPLimiter(IPLimiterConfig{Rate: 1, Burst: 2, CleanupInterval: time.Hour}, nil)
	defer l.Stop()

	calls := 0
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
		req.RemoteAddr = "198.51.100.1:4000"
		last = httptest.NewRecorder()
		h.ServeHTTP(last, req)
	}
	assert.Equal(t, 2, calls)
	require.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.RemoteAddr = "198.51.100.2:4000"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, "other IPs keep their own bucket")
}

func TestIPLimiterCleanup(t *testing.T) {
	l := NewIPLimiter(IPLimiterConfig{Rate: 1, Burst: 1, IdleTimeout: time.Minute, CleanupInterval: time.Hour}, nil)
	defer l.Stop()

	l.Allow("a")
	l.Allow("b")
	require.Equal(t, 2, l.Len())

	l.cleanup(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 0, l.Len())

	l.Stop()
}
