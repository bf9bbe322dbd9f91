package httpapi

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/MrEthical07/studyauth/middleware"
	"golang.org/x/time/rate"
)

// IPLimiterConfig sizes the per-IP token buckets guarding unauthenticated routes.
type IPLimiterConfig struct {
	Rate            rate.Limit
	Burst           int
	IdleTimeout     time.Duration
	CleanupInterval time.Duration
}

// DefaultIPLimiterConfig allows 30 requests per minute per IP with a burst of 10.
func DefaultIPLimiterConfig() IPLimiterConfig {
	return IPLimiterConfig{
		Rate:            rate.Limit(30.0 / 60.0),
		Burst:           10,
		IdleTimeout:     10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPLimiter is an in-process per-IP limiter. A janitor goroutine evicts idle
// entries until Stop is called.
type IPLimiter struct {
	config IPLimiterConfig
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*ipEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewIPLimiter(config IPLimiterConfig, logger *slog.Logger) *IPLimiter {
	if config.Burst <= 0 {
		config.Burst = 1
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = time.Minute
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &IPLimiter{
		config:  config,
		logger:  logger,
		entries: make(map[string]*ipEntry),
		stopCh:  make(chan struct{}),
	}
	go l.cleanupLoop()
	return l
}

// Stop terminates the janitor. Safe to call more than once.
func (l *IPLimiter) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
}

// Middleware answers 429 with Retry-After once an IP exhausts its bucket.
func (l *IPLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := middleware.ClientIP(r)
		if !l.Allow(ip) {
			l.logger.WarnContext(r.Context(), "rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", strconv.Itoa(l.retryAfterSeconds()))
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Allow consumes one token for ip.
func (l *IPLimiter) Allow(ip string) bool {
	now := time.Now()

	l.mu.Lock()
	e, ok := l.entries[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.config.Rate, l.config.Burst)}
		l.entries[ip] = e
	}
	e.lastAccess = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Len reports the number of tracked IPs.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *IPLimiter) retryAfterSeconds() int {
	if l.config.Rate <= 0 {
		return 60
	}
	return int(math.Ceil(1 / float64(l.config.Rate)))
}

func (l *IPLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup(time.Now())
		case <-l.stopCh:
			return
		}
	}
}

func (l *IPLimiter) cleanup(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for ip, e := range l.entries {
		if now.Sub(e.lastAccess) > l.config.IdleTimeout {
			delete(l.entries, ip)
		}
	}
}
