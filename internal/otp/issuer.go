package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/studyauth/internal"
	"github.com/MrEthical07/studyauth/internal/stores"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the lifetime of a freshly issued code.
const DefaultTTL = 600 * time.Second

var (
	// ErrStore is returned when the code could not be persisted.
	ErrStore = errors.New("otp store failed")
	// ErrSend is returned when the sender rejected the code.
	ErrSend = errors.New("otp delivery failed")
)

// Sender delivers a code to the address it was issued for.
type Sender interface {
	SendVerificationEmail(ctx context.Context, email, code string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, email, code string) error

// SendVerificationEmail calls f.
func (f SenderFunc) SendVerificationEmail(ctx context.Context, email, code string) error {
	return f(ctx, email, code)
}

// Config tunes an Issuer.
type Config struct {
	Prefix      string
	TTL         time.Duration
	MaxAttempts int
}

// Issuer generates, stores, delivers and verifies codes.
type Issuer struct {
	codes       *stores.OTPCodeStore
	sender      Sender
	ttl         time.Duration
	maxAttempts int
	generate    func() (string, error)
}

// NewIssuer builds an Issuer on the shared Redis handle.
func NewIssuer(rdb redis.UniversalClient, sender Sender, cfg Config) (*Issuer, error) {
	if rdb == nil {
		return nil, errors.New("otp: redis client required")
	}
	if sender == nil {
		return nil, errors.New("otp: sender required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxAttempts < 0 {
		return nil, errors.New("otp: max attempts must be >= 0")
	}

	return &Issuer{
		codes:       stores.NewOTPCodeStore(rdb, cfg.Prefix),
		sender:      sender,
		ttl:         cfg.TTL,
		maxAttempts: cfg.MaxAttempts,
		generate:    internal.NewOTP,
	}, nil
}

// TTL returns the code lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue stores a new code for email and sends it. It succeeds only when both
// steps succeed; on a send failure the stored code is removed again.
func (i *Issuer) Issue(ctx context.Context, email string) error {
	code, err := i.generate()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := i.codes.Put(ctx, email, code, i.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	if err := i.sender.SendVerificationEmail(ctx, email, code); err != nil {
		_ = i.codes.Delete(context.WithoutCancel(ctx), email)
		return fmt.Errorf("%w: %v", ErrSend, err)
	}

	return nil
}

// Verify reports whether code is the live code for email and consumes it on
// a match. Expired, never issued, malformed and wrong codes all yield false.
// A non-nil error means the store could not be consulted.
func (i *Issuer) Verify(ctx context.Context, email, code string) (bool, error) {
	canonical, err := internal.CanonicalOTP(code)
	if err == nil {
		ok, err := i.codes.Consume(ctx, email, canonical)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	if _, err := i.codes.RecordFailure(ctx, email, i.maxAttempts); err != nil {
		return false, err
	}
	return false, nil
}

// Revoke discards any live code for email.
func (i *Issuer) Revoke(ctx context.Context, email string) error {
	return i.codes.Delete(ctx, email)
}
