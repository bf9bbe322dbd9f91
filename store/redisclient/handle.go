// Package redisclient owns the process-wide Redis connection shared by the
// session manager, OTP issuer, pending-registration store and limiters.
package redisclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the handle.
type Options struct {
	Addrs       []string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
	PoolSize    int
}

// Handle lazily opens one UniversalClient on first use.
type Handle struct {
	opts Options

	once   sync.Once
	client redis.UniversalClient
	err    error
}

func New(opts Options) *Handle {
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return &Handle{opts: opts}
}

// Client returns the shared client, connecting and pinging it the first time.
// A failed first connect is sticky: the process is expected to exit.
func (h *Handle) Client(ctx context.Context) (redis.UniversalClient, error) {
	h.once.Do(func() {
		if len(h.opts.Addrs) == 0 {
			h.err = fmt.Errorf("redis: no address configured")
			return
		}
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:       h.opts.Addrs,
			Username:    h.opts.Username,
			Password:    h.opts.Password,
			DB:          h.opts.DB,
			DialTimeout: h.opts.DialTimeout,
			PoolSize:    h.opts.PoolSize,
		})

		pingCtx, cancel := context.WithTimeout(ctx, h.opts.DialTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			h.err = fmt.Errorf("redis connection failed: %w", err)
			return
		}
		h.client = client
	})
	return h.client, h.err
}

// Close releases the client if it was opened.
func (h *Handle) Close() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}
